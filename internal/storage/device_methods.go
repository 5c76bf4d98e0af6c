package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

// ========== Device Methods ==========

const deviceColumns = `
    id, created_at, updated_at, device_type_id, serial_number, device_uuid,
    name, enabled, secret_hash, secret_expires_at,
    reinstall_firmware1, reinstall_firmware2, reinstall_firmware3,
    reinstall_config1, reinstall_config2, reinstall_config3,
    request_config_data, request_diagnose_data,
    command_retry_count, last_command_critical,
    virtual_ip, virtual_subnet, vpn_ip, masquerade_type, masquerade_subnets,
    config_hash, firmware_version1, firmware_version2, firmware_version3,
    signal_strength, network_type, cell_id, iccid, modem,
    last_ip, connection_count, seen_at`

func scanDevice(row interface{ Scan(...interface{}) error }) (*models.Device, error) {
	device := &models.Device{}
	err := row.Scan(
		&device.ID, &device.CreatedAt, &device.UpdatedAt, &device.DeviceTypeID,
		&device.SerialNumber, &device.DeviceUUID, &device.Name, &device.Enabled,
		&device.SecretHash, &device.SecretExpiresAt,
		&device.ReinstallFirmware1, &device.ReinstallFirmware2, &device.ReinstallFirmware3,
		&device.ReinstallConfig1, &device.ReinstallConfig2, &device.ReinstallConfig3,
		&device.RequestConfigData, &device.RequestDiagnoseData,
		&device.CommandRetryCount, &device.LastCommandCritical,
		&device.VirtualIP, &device.VirtualSubnet, &device.VpnIP,
		&device.MasqueradeType, &device.MasqueradeSubnets,
		&device.ConfigHash,
		&device.FirmwareVersion1, &device.FirmwareVersion2, &device.FirmwareVersion3,
		&device.SignalStrength, &device.NetworkType, &device.CellID,
		&device.ICCID, &device.Modem,
		&device.LastIP, &device.ConnectionCount, &device.SeenAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}

// CreateDevice creates a new device
func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
        INSERT INTO devices (
            id, created_at, updated_at, device_type_id, serial_number, device_uuid,
            name, enabled, secret_hash, secret_expires_at,
            reinstall_firmware1, reinstall_firmware2, reinstall_firmware3,
            reinstall_config1, reinstall_config2, reinstall_config3,
            request_config_data, request_diagnose_data,
            command_retry_count, last_command_critical,
            virtual_ip, virtual_subnet, vpn_ip, masquerade_type, masquerade_subnets,
            config_hash, firmware_version1, firmware_version2, firmware_version3,
            signal_strength, network_type, cell_id, iccid, modem,
            last_ip, connection_count, seen_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
            $31, $32, $33, $34, $35, $36, $37
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.CreatedAt, device.UpdatedAt, device.DeviceTypeID,
		device.SerialNumber, device.DeviceUUID, device.Name, device.Enabled,
		device.SecretHash, device.SecretExpiresAt,
		device.ReinstallFirmware1, device.ReinstallFirmware2, device.ReinstallFirmware3,
		device.ReinstallConfig1, device.ReinstallConfig2, device.ReinstallConfig3,
		device.RequestConfigData, device.RequestDiagnoseData,
		device.CommandRetryCount, device.LastCommandCritical,
		device.VirtualIP, device.VirtualSubnet, device.VpnIP,
		device.MasqueradeType, device.MasqueradeSubnets,
		device.ConfigHash,
		device.FirmwareVersion1, device.FirmwareVersion2, device.FirmwareVersion3,
		device.SignalStrength, device.NetworkType, device.CellID,
		device.ICCID, device.Modem,
		device.LastIP, device.ConnectionCount, device.SeenAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetDevice gets a device by primary id
func (s *PostgresStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT` + deviceColumns + ` FROM devices WHERE id = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, id))
}

// GetDeviceByUUID gets a device by its protocol UUID
func (s *PostgresStore) GetDeviceByUUID(ctx context.Context, deviceUUID string) (*models.Device, error) {
	query := `SELECT` + deviceColumns + ` FROM devices WHERE device_uuid = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, deviceUUID))
}

// GetDeviceBySerial gets a device by serial number
func (s *PostgresStore) GetDeviceBySerial(ctx context.Context, serial string) (*models.Device, error) {
	query := `SELECT` + deviceColumns + ` FROM devices WHERE serial_number = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, serial))
}

// UpdateDevice updates a device
func (s *PostgresStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now()

	query := `
        UPDATE devices SET
            updated_at = $2, name = $3, enabled = $4,
            secret_hash = $5, secret_expires_at = $6,
            reinstall_firmware1 = $7, reinstall_firmware2 = $8, reinstall_firmware3 = $9,
            reinstall_config1 = $10, reinstall_config2 = $11, reinstall_config3 = $12,
            request_config_data = $13, request_diagnose_data = $14,
            command_retry_count = $15, last_command_critical = $16,
            virtual_ip = $17, virtual_subnet = $18, vpn_ip = $19,
            masquerade_type = $20, masquerade_subnets = $21,
            config_hash = $22,
            firmware_version1 = $23, firmware_version2 = $24, firmware_version3 = $25,
            signal_strength = $26, network_type = $27, cell_id = $28,
            iccid = $29, modem = $30,
            last_ip = $31, connection_count = $32, seen_at = $33
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.UpdatedAt, device.Name, device.Enabled,
		device.SecretHash, device.SecretExpiresAt,
		device.ReinstallFirmware1, device.ReinstallFirmware2, device.ReinstallFirmware3,
		device.ReinstallConfig1, device.ReinstallConfig2, device.ReinstallConfig3,
		device.RequestConfigData, device.RequestDiagnoseData,
		device.CommandRetryCount, device.LastCommandCritical,
		device.VirtualIP, device.VirtualSubnet, device.VpnIP,
		device.MasqueradeType, device.MasqueradeSubnets,
		device.ConfigHash,
		device.FirmwareVersion1, device.FirmwareVersion2, device.FirmwareVersion3,
		device.SignalStrength, device.NetworkType, device.CellID,
		device.ICCID, device.Modem,
		device.LastIP, device.ConnectionCount, device.SeenAt,
	)

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

// ListDevices lists devices, optionally filtered by device type
func (s *PostgresStore) ListDevices(ctx context.Context, deviceTypeID *uuid.UUID, limit, offset int) ([]*models.Device, int64, error) {
	countQuery := `SELECT COUNT(*) FROM devices`
	query := `SELECT` + deviceColumns + ` FROM devices`
	args := []interface{}{}

	if deviceTypeID != nil {
		countQuery += ` WHERE device_type_id = $1`
		query += ` WHERE device_type_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, *deviceTypeID, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	var total int64
	countArgs := args[:len(args)-2]
	if err := s.getDB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, device)
	}

	return devices, total, rows.Err()
}

// ListEndpointDevices lists the endpoint devices behind a device
func (s *PostgresStore) ListEndpointDevices(ctx context.Context, deviceID uuid.UUID) ([]*models.EndpointDevice, error) {
	query := `
        SELECT id, created_at, updated_at, device_id, name, address
        FROM endpoint_devices
        WHERE device_id = $1
        ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*models.EndpointDevice
	for rows.Next() {
		ep := &models.EndpointDevice{}
		if err := rows.Scan(&ep.ID, &ep.CreatedAt, &ep.UpdatedAt, &ep.DeviceID, &ep.Name, &ep.Address); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, rows.Err()
}
