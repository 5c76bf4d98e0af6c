package checkin

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetgate/fleetgate-server/internal/events"
	"github.com/fleetgate/fleetgate-server/internal/models"
)

// CertificateManager is the external certificate collaborator. Issuance
// internals (SCEP, CA management) live behind it.
type CertificateManager interface {
	RenewIfDue(ctx context.Context, dev *models.Device, devType *models.DeviceType, certType models.CertificateType) (bool, error)
	HasValid(ctx context.Context, dev *models.Device, certType models.CertificateType) (bool, error)
}

// SecretManager is the external device-secret collaborator
type SecretManager interface {
	RenewIfDue(ctx context.Context, dev *models.Device, devType *models.DeviceType) (secret string, renewed bool, err error)
}

// FreshnessGate auto-renews certificates and secrets that are inside their
// renew-before-expiry window. When a renewal happens during a request the
// gate flags config slot 1 for re-push, so the updated material goes out on
// this round trip instead of the next one.
type FreshnessGate struct {
	certs   CertificateManager
	secrets SecretManager
	events  *events.Publisher
	timeout time.Duration
}

// NewFreshnessGate creates a freshness gate. timeout bounds each
// collaborator call.
func NewFreshnessGate(certs CertificateManager, secrets SecretManager, pub *events.Publisher, timeout time.Duration) *FreshnessGate {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FreshnessGate{certs: certs, secrets: secrets, events: pub, timeout: timeout}
}

// Refresh runs the renewal checks for a device. Collaborator failures are
// logged and reported but never abort the check-in; the request completes
// with whatever material is currently valid. Returns the plaintext secret
// when the device secret was rotated.
func (g *FreshnessGate) Refresh(ctx context.Context, dev *models.Device, devType *models.DeviceType) (secret string, renewed bool) {
	if devType.CertificatesEnabled {
		for _, certType := range g.certTypes(devType) {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			ok, err := g.certs.RenewIfDue(callCtx, dev, devType, certType)
			cancel()
			if err != nil {
				log.Error().Err(err).
					Str("device", dev.DeviceUUID).
					Str("type", string(certType)).
					Msg("certificate renewal failed")
				g.events.Publish(ctx, &dev.ID, models.EventTypeError, models.EventLevelError,
					"renewal-failed", "certificate renewal failed",
					models.Variables{"certType": string(certType), "error": err.Error()})
				continue
			}
			if ok {
				renewed = true
				g.events.Publish(ctx, &dev.ID, models.EventTypeRenewal, models.EventLevelInfo,
					string(certType), "certificate renewed", nil)
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	s, rotated, err := g.secrets.RenewIfDue(callCtx, dev, devType)
	cancel()
	if err != nil {
		log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("secret renewal failed")
		g.events.Publish(ctx, &dev.ID, models.EventTypeError, models.EventLevelError,
			"renewal-failed", "secret renewal failed",
			models.Variables{"error": err.Error()})
	} else if rotated {
		secret = s
		renewed = true
		g.events.Publish(ctx, &dev.ID, models.EventTypeRenewal, models.EventLevelInfo,
			"device-secret", "device secret rotated", nil)
	}

	if renewed {
		// Config slot 1 carries the credential material
		dev.SetReinstallConfig(1, true)
	}

	return secret, renewed
}

// HasValidCertificate reports certificate validity through the gate's
// collaborator
func (g *FreshnessGate) HasValidCertificate(ctx context.Context, dev *models.Device, certType models.CertificateType) bool {
	ok, err := g.certs.HasValid(ctx, dev, certType)
	if err != nil {
		log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("certificate validity check failed")
		return false
	}
	return ok
}

func (g *FreshnessGate) certTypes(devType *models.DeviceType) []models.CertificateType {
	types := []models.CertificateType{}
	if devType.VpnEnabled {
		types = append(types, models.CertificateVpnClient)
	}
	types = append(types, models.CertificateHTTPSServer)
	return types
}
