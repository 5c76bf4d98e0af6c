package pki

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

// SignRequest asks the signer for a device certificate
type SignRequest struct {
	CommonName string
	Type       models.CertificateType
	Validity   time.Duration
}

// SignedCertificate is the signer's result
type SignedCertificate struct {
	SerialNumber string
	CertPEM      string
	CAPEM        string
	KeyPEM       string
	NotBefore    time.Time
	NotAfter     time.Time
}

// Signer issues device certificates. Production deployments back this with
// the SCEP enrollment service; the interface is all this core consumes.
type Signer interface {
	Sign(ctx context.Context, req SignRequest) (*SignedCertificate, error)
}

// SelfSigner is a development Signer backed by an in-process CA
type SelfSigner struct {
	caCert *x509.Certificate
	caKey  *ecdsa.PrivateKey
	caPEM  string
}

// NewSelfSigner creates a SelfSigner with a fresh CA
func NewSelfSigner(caName string) (*SelfSigner, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ca key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: caName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create ca certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &SelfSigner{
		caCert: cert,
		caKey:  key,
		caPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
	}, nil
}

// Sign issues a leaf certificate for a device
func (s *SelfSigner) Sign(ctx context.Context, req SignRequest) (*SignedCertificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	validity := req.Validity
	if validity <= 0 {
		validity = 365 * 24 * time.Hour
	}

	notBefore := time.Now().Add(-time.Hour)
	notAfter := time.Now().Add(validity)

	extUsage := x509.ExtKeyUsageClientAuth
	if req.Type == models.CertificateHTTPSServer {
		extUsage = x509.ExtKeyUsageServerAuth
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: req.CommonName},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{extUsage},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, s.caCert, &key.PublicKey, s.caKey)
	if err != nil {
		return nil, fmt.Errorf("create device certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal device key: %w", err)
	}

	return &SignedCertificate{
		SerialNumber: serial.Text(16),
		CertPEM:      string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		CAPEM:        s.caPEM,
		KeyPEM:       string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	return serial, nil
}
