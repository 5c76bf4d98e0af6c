package checkin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetgate/fleetgate-server/internal/events"
	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

type fakeCertManager struct {
	renewed map[models.CertificateType]bool
	err     error
	valid   bool
	calls   []models.CertificateType
}

func (f *fakeCertManager) RenewIfDue(ctx context.Context, dev *models.Device, devType *models.DeviceType, certType models.CertificateType) (bool, error) {
	f.calls = append(f.calls, certType)
	if f.err != nil {
		return false, f.err
	}
	return f.renewed[certType], nil
}

func (f *fakeCertManager) HasValid(ctx context.Context, dev *models.Device, certType models.CertificateType) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.valid, nil
}

type fakeSecretManager struct {
	secret  string
	rotated bool
	err     error
}

func (f *fakeSecretManager) RenewIfDue(ctx context.Context, dev *models.Device, devType *models.DeviceType) (string, bool, error) {
	return f.secret, f.rotated, f.err
}

func newTestGate(certs CertificateManager, secrets SecretManager) *FreshnessGate {
	pub := events.NewPublisher(nil, storage.NewMemoryStore())
	return NewFreshnessGate(certs, secrets, pub, time.Second)
}

func TestRefreshCertRenewalSetsConfigFlag(t *testing.T) {
	certs := &fakeCertManager{renewed: map[models.CertificateType]bool{
		models.CertificateVpnClient: true,
	}}
	gate := newTestGate(certs, &fakeSecretManager{})

	dev := &models.Device{}
	devType := &models.DeviceType{CertificatesEnabled: true, VpnEnabled: true}

	_, renewed := gate.Refresh(context.Background(), dev, devType)
	if !renewed {
		t.Fatal("expected renewal")
	}
	if !dev.ReinstallConfig1 {
		t.Error("renewal must flag config slot 1 for re-push")
	}

	// Both relevant certificate types were checked
	if len(certs.calls) != 2 {
		t.Errorf("cert checks = %v, want vpn-client and https-server", certs.calls)
	}
}

func TestRefreshSecretRotationReturnsPlaintext(t *testing.T) {
	gate := newTestGate(&fakeCertManager{}, &fakeSecretManager{secret: "s3cret", rotated: true})

	dev := &models.Device{}
	secret, renewed := gate.Refresh(context.Background(), dev, &models.DeviceType{})
	if !renewed || secret != "s3cret" {
		t.Errorf("secret = %q renewed = %v, want rotated plaintext", secret, renewed)
	}
	if !dev.ReinstallConfig1 {
		t.Error("secret rotation must flag config slot 1")
	}
}

func TestRefreshNothingDue(t *testing.T) {
	gate := newTestGate(&fakeCertManager{}, &fakeSecretManager{})

	dev := &models.Device{}
	secret, renewed := gate.Refresh(context.Background(), dev, &models.DeviceType{CertificatesEnabled: true})
	if renewed || secret != "" {
		t.Errorf("secret = %q renewed = %v, want no renewal", secret, renewed)
	}
	if dev.ReinstallConfig1 {
		t.Error("no renewal must not flag config slot 1")
	}
}

func TestRefreshCollaboratorFailureIsNonFatal(t *testing.T) {
	certs := &fakeCertManager{err: errors.New("scep unreachable")}
	secrets := &fakeSecretManager{err: errors.New("rng failure")}
	gate := newTestGate(certs, secrets)

	dev := &models.Device{}
	secret, renewed := gate.Refresh(context.Background(), dev, &models.DeviceType{CertificatesEnabled: true})
	if renewed || secret != "" {
		t.Error("failures must not report renewal")
	}
	if dev.ReinstallConfig1 {
		t.Error("failures must not flag config slot 1")
	}
}

func TestRefreshSkipsCertsWhenDisabled(t *testing.T) {
	certs := &fakeCertManager{}
	gate := newTestGate(certs, &fakeSecretManager{})

	gate.Refresh(context.Background(), &models.Device{}, &models.DeviceType{})
	if len(certs.calls) != 0 {
		t.Errorf("cert checks = %v, want none when certificates disabled", certs.calls)
	}
}

func TestHasValidCertificate(t *testing.T) {
	gate := newTestGate(&fakeCertManager{valid: true}, &fakeSecretManager{})
	if !gate.HasValidCertificate(context.Background(), &models.Device{}, models.CertificateVpnClient) {
		t.Error("expected valid certificate")
	}

	gate = newTestGate(&fakeCertManager{err: errors.New("down")}, &fakeSecretManager{})
	if gate.HasValidCertificate(context.Background(), &models.Device{}, models.CertificateVpnClient) {
		t.Error("collaborator failure must report not valid")
	}
}
