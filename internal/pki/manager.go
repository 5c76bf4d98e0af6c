package pki

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
	"github.com/fleetgate/fleetgate-server/pkg/crypto"
)

// CertManager checks certificate freshness and triggers renewal through
// the configured Signer.
type CertManager struct {
	store  storage.Store
	signer Signer
}

// NewCertManager creates a certificate manager
func NewCertManager(store storage.Store, signer Signer) *CertManager {
	return &CertManager{store: store, signer: signer}
}

// RenewIfDue renews the device's certificate of the given type when it is
// missing or inside the device type's renew-before-expiry window. Returns
// whether a renewal happened.
func (m *CertManager) RenewIfDue(ctx context.Context, dev *models.Device, dt *models.DeviceType, certType models.CertificateType) (bool, error) {
	cert, err := m.store.GetCertificate(ctx, dev.ID, certType)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("load certificate: %w", err)
	}

	if cert != nil {
		renewAt := cert.NotAfter.AddDate(0, 0, -dt.CertRenewBeforeDays)
		if time.Now().Before(renewAt) {
			return false, nil
		}
	}

	signed, err := m.signer.Sign(ctx, SignRequest{
		CommonName: dev.DeviceUUID,
		Type:       certType,
	})
	if err != nil {
		return false, fmt.Errorf("sign certificate: %w", err)
	}

	renewed := &models.Certificate{
		DeviceID:     dev.ID,
		Type:         certType,
		SerialNumber: signed.SerialNumber,
		CertPEM:      signed.CertPEM,
		CAPEM:        signed.CAPEM,
		KeyPEM:       signed.KeyPEM,
		NotBefore:    signed.NotBefore,
		NotAfter:     signed.NotAfter,
	}
	if err := m.store.UpsertCertificate(ctx, renewed); err != nil {
		return false, fmt.Errorf("store certificate: %w", err)
	}

	log.Info().
		Str("device", dev.DeviceUUID).
		Str("type", string(certType)).
		Time("not_after", signed.NotAfter).
		Msg("certificate renewed")

	return true, nil
}

// HasValid reports whether the device holds a currently valid certificate
// of the given type
func (m *CertManager) HasValid(ctx context.Context, dev *models.Device, certType models.CertificateType) (bool, error) {
	cert, err := m.store.GetCertificate(ctx, dev.ID, certType)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cert.ValidAt(time.Now()), nil
}

// DeviceSecretManager rotates per-device shared secrets. The plaintext is
// returned exactly once, on the check-in that rotated it; only the bcrypt
// hash is stored.
type DeviceSecretManager struct{}

// NewDeviceSecretManager creates a secret manager
func NewDeviceSecretManager() *DeviceSecretManager {
	return &DeviceSecretManager{}
}

// RenewIfDue rotates the device secret when it is missing or inside the
// renew window. The caller persists the mutated device.
func (m *DeviceSecretManager) RenewIfDue(ctx context.Context, dev *models.Device, dt *models.DeviceType) (string, bool, error) {
	if dev.SecretExpiresAt != nil {
		renewAt := dev.SecretExpiresAt.AddDate(0, 0, -dt.CertRenewBeforeDays)
		if dev.SecretHash != "" && time.Now().Before(renewAt) {
			return "", false, nil
		}
	} else if dev.SecretHash != "" {
		// Hash without expiry: legacy secret, keep it
		return "", false, nil
	}

	secret, err := crypto.GenerateRandomString(32)
	if err != nil {
		return "", false, fmt.Errorf("generate secret: %w", err)
	}

	hash, err := crypto.HashPassword(secret)
	if err != nil {
		return "", false, fmt.Errorf("hash secret: %w", err)
	}

	ttl := dt.SecretTTLDays
	if ttl <= 0 {
		ttl = 365
	}
	expires := time.Now().AddDate(0, 0, ttl)

	dev.SecretHash = hash
	dev.SecretExpiresAt = &expires

	return secret, true, nil
}
