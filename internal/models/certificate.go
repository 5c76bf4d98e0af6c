package models

import (
	"time"

	"github.com/google/uuid"
)

// CertificateType identifies which certificate a device holds
type CertificateType string

const (
	CertificateVpnClient   CertificateType = "vpn-client"
	CertificateHTTPSServer CertificateType = "https-server"
)

// Certificate holds certificate material for one device and certificate
// type. Issuance is external; this core only reads validity and triggers
// renewal.
type Certificate struct {
	BaseModel

	DeviceID     uuid.UUID       `json:"deviceId" db:"device_id"`
	Type         CertificateType `json:"type" db:"type"`
	SerialNumber string          `json:"serialNumber" db:"serial_number"`

	CertPEM string `json:"certPem" db:"cert_pem"`
	CAPEM   string `json:"caPem" db:"ca_pem"`
	KeyPEM  string `json:"-" db:"key_pem"`

	NotBefore time.Time `json:"notBefore" db:"not_before"`
	NotAfter  time.Time `json:"notAfter" db:"not_after"`
}

// ValidAt reports whether the certificate covers the given instant
func (c *Certificate) ValidAt(t time.Time) bool {
	return c.CertPEM != "" && !t.Before(c.NotBefore) && t.Before(c.NotAfter)
}
