package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

// ========== Certificate Methods ==========

// UpsertCertificate creates or replaces a device's certificate of one type
func (s *PostgresStore) UpsertCertificate(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == uuid.Nil {
		cert.ID = uuid.New()
	}

	now := time.Now()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	cert.UpdatedAt = now

	query := `
        INSERT INTO certificates (
            id, created_at, updated_at, device_id, type, serial_number,
            cert_pem, ca_pem, key_pem, not_before, not_after
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (device_id, type) DO UPDATE SET
            updated_at = EXCLUDED.updated_at,
            serial_number = EXCLUDED.serial_number,
            cert_pem = EXCLUDED.cert_pem,
            ca_pem = EXCLUDED.ca_pem,
            key_pem = EXCLUDED.key_pem,
            not_before = EXCLUDED.not_before,
            not_after = EXCLUDED.not_after`

	_, err := s.getDB().ExecContext(ctx, query,
		cert.ID, cert.CreatedAt, cert.UpdatedAt, cert.DeviceID, cert.Type,
		cert.SerialNumber, cert.CertPEM, cert.CAPEM, cert.KeyPEM,
		cert.NotBefore, cert.NotAfter,
	)

	return err
}

// GetCertificate gets a device's certificate of one type
func (s *PostgresStore) GetCertificate(ctx context.Context, deviceID uuid.UUID, certType models.CertificateType) (*models.Certificate, error) {
	query := `
        SELECT id, created_at, updated_at, device_id, type, serial_number,
               cert_pem, ca_pem, key_pem, not_before, not_after
        FROM certificates
        WHERE device_id = $1 AND type = $2`

	cert := &models.Certificate{}
	err := s.getDB().QueryRowContext(ctx, query, deviceID, certType).Scan(
		&cert.ID, &cert.CreatedAt, &cert.UpdatedAt, &cert.DeviceID, &cert.Type,
		&cert.SerialNumber, &cert.CertPEM, &cert.CAPEM, &cert.KeyPEM,
		&cert.NotBefore, &cert.NotAfter,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return cert, nil
}

// DeleteCertificate deletes a device's certificate of one type
func (s *PostgresStore) DeleteCertificate(ctx context.Context, deviceID uuid.UUID, certType models.CertificateType) error {
	result, err := s.getDB().ExecContext(ctx,
		`DELETE FROM certificates WHERE device_id = $1 AND type = $2`, deviceID, certType)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
