package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

// ========== Device Type Methods ==========

const deviceTypeColumns = `
    id, created_at, updated_at, name, procedure,
    firmware1_enabled, firmware2_enabled, firmware3_enabled,
    config1_enabled, config2_enabled, config3_enabled,
    always_reinstall_config1, always_reinstall_config2, always_reinstall_config3,
    certificates_enabled, vpn_enabled, endpoint_devices_enabled,
    masquerade_enabled, variables_enabled, device_commands_enabled,
    max_command_retries, min_signal_firmware, min_signal_config,
    config_format1, config_format2, config_format3,
    firmware_url1, firmware_url2, firmware_url3,
    firmware_target_version1, firmware_target_version2, firmware_target_version3,
    default_virtual_subnet, default_masquerade_type,
    cert_renew_before_days, secret_ttl_days`

func scanDeviceType(row interface{ Scan(...interface{}) error }) (*models.DeviceType, error) {
	dt := &models.DeviceType{}
	err := row.Scan(
		&dt.ID, &dt.CreatedAt, &dt.UpdatedAt, &dt.Name, &dt.Procedure,
		&dt.Firmware1Enabled, &dt.Firmware2Enabled, &dt.Firmware3Enabled,
		&dt.Config1Enabled, &dt.Config2Enabled, &dt.Config3Enabled,
		&dt.AlwaysReinstallConfig1, &dt.AlwaysReinstallConfig2, &dt.AlwaysReinstallConfig3,
		&dt.CertificatesEnabled, &dt.VpnEnabled, &dt.EndpointDevicesEnabled,
		&dt.MasqueradeEnabled, &dt.VariablesEnabled, &dt.DeviceCommandsEnabled,
		&dt.MaxCommandRetries, &dt.MinSignalFirmware, &dt.MinSignalConfig,
		&dt.ConfigFormat1, &dt.ConfigFormat2, &dt.ConfigFormat3,
		&dt.FirmwareURL1, &dt.FirmwareURL2, &dt.FirmwareURL3,
		&dt.FirmwareTargetVersion1, &dt.FirmwareTargetVersion2, &dt.FirmwareTargetVersion3,
		&dt.DefaultVirtualSubnet, &dt.DefaultMasqueradeType,
		&dt.CertRenewBeforeDays, &dt.SecretTTLDays,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return dt, nil
}

// CreateDeviceType creates a new device type
func (s *PostgresStore) CreateDeviceType(ctx context.Context, dt *models.DeviceType) error {
	if dt.ID == uuid.Nil {
		dt.ID = uuid.New()
	}

	now := time.Now()
	dt.CreatedAt = now
	dt.UpdatedAt = now

	query := `
        INSERT INTO device_types (
            id, created_at, updated_at, name, procedure,
            firmware1_enabled, firmware2_enabled, firmware3_enabled,
            config1_enabled, config2_enabled, config3_enabled,
            always_reinstall_config1, always_reinstall_config2, always_reinstall_config3,
            certificates_enabled, vpn_enabled, endpoint_devices_enabled,
            masquerade_enabled, variables_enabled, device_commands_enabled,
            max_command_retries, min_signal_firmware, min_signal_config,
            config_format1, config_format2, config_format3,
            firmware_url1, firmware_url2, firmware_url3,
            firmware_target_version1, firmware_target_version2, firmware_target_version3,
            default_virtual_subnet, default_masquerade_type,
            cert_renew_before_days, secret_ttl_days
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
            $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
            $31, $32, $33, $34, $35, $36
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		dt.ID, dt.CreatedAt, dt.UpdatedAt, dt.Name, dt.Procedure,
		dt.Firmware1Enabled, dt.Firmware2Enabled, dt.Firmware3Enabled,
		dt.Config1Enabled, dt.Config2Enabled, dt.Config3Enabled,
		dt.AlwaysReinstallConfig1, dt.AlwaysReinstallConfig2, dt.AlwaysReinstallConfig3,
		dt.CertificatesEnabled, dt.VpnEnabled, dt.EndpointDevicesEnabled,
		dt.MasqueradeEnabled, dt.VariablesEnabled, dt.DeviceCommandsEnabled,
		dt.MaxCommandRetries, dt.MinSignalFirmware, dt.MinSignalConfig,
		dt.ConfigFormat1, dt.ConfigFormat2, dt.ConfigFormat3,
		dt.FirmwareURL1, dt.FirmwareURL2, dt.FirmwareURL3,
		dt.FirmwareTargetVersion1, dt.FirmwareTargetVersion2, dt.FirmwareTargetVersion3,
		dt.DefaultVirtualSubnet, dt.DefaultMasqueradeType,
		dt.CertRenewBeforeDays, dt.SecretTTLDays,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetDeviceType gets a device type by id
func (s *PostgresStore) GetDeviceType(ctx context.Context, id uuid.UUID) (*models.DeviceType, error) {
	query := `SELECT` + deviceTypeColumns + ` FROM device_types WHERE id = $1`
	return scanDeviceType(s.getDB().QueryRowContext(ctx, query, id))
}

// GetDeviceTypeByName gets a device type by its unique name
func (s *PostgresStore) GetDeviceTypeByName(ctx context.Context, name string) (*models.DeviceType, error) {
	query := `SELECT` + deviceTypeColumns + ` FROM device_types WHERE name = $1`
	return scanDeviceType(s.getDB().QueryRowContext(ctx, query, name))
}

// UpdateDeviceType updates a device type
func (s *PostgresStore) UpdateDeviceType(ctx context.Context, dt *models.DeviceType) error {
	dt.UpdatedAt = time.Now()

	query := `
        UPDATE device_types SET
            updated_at = $2, name = $3, procedure = $4,
            firmware1_enabled = $5, firmware2_enabled = $6, firmware3_enabled = $7,
            config1_enabled = $8, config2_enabled = $9, config3_enabled = $10,
            always_reinstall_config1 = $11, always_reinstall_config2 = $12, always_reinstall_config3 = $13,
            certificates_enabled = $14, vpn_enabled = $15, endpoint_devices_enabled = $16,
            masquerade_enabled = $17, variables_enabled = $18, device_commands_enabled = $19,
            max_command_retries = $20, min_signal_firmware = $21, min_signal_config = $22,
            config_format1 = $23, config_format2 = $24, config_format3 = $25,
            firmware_url1 = $26, firmware_url2 = $27, firmware_url3 = $28,
            firmware_target_version1 = $29, firmware_target_version2 = $30, firmware_target_version3 = $31,
            default_virtual_subnet = $32, default_masquerade_type = $33,
            cert_renew_before_days = $34, secret_ttl_days = $35
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		dt.ID, dt.UpdatedAt, dt.Name, dt.Procedure,
		dt.Firmware1Enabled, dt.Firmware2Enabled, dt.Firmware3Enabled,
		dt.Config1Enabled, dt.Config2Enabled, dt.Config3Enabled,
		dt.AlwaysReinstallConfig1, dt.AlwaysReinstallConfig2, dt.AlwaysReinstallConfig3,
		dt.CertificatesEnabled, dt.VpnEnabled, dt.EndpointDevicesEnabled,
		dt.MasqueradeEnabled, dt.VariablesEnabled, dt.DeviceCommandsEnabled,
		dt.MaxCommandRetries, dt.MinSignalFirmware, dt.MinSignalConfig,
		dt.ConfigFormat1, dt.ConfigFormat2, dt.ConfigFormat3,
		dt.FirmwareURL1, dt.FirmwareURL2, dt.FirmwareURL3,
		dt.FirmwareTargetVersion1, dt.FirmwareTargetVersion2, dt.FirmwareTargetVersion3,
		dt.DefaultVirtualSubnet, dt.DefaultMasqueradeType,
		dt.CertRenewBeforeDays, dt.SecretTTLDays,
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

// DeleteDeviceType deletes a device type
func (s *PostgresStore) DeleteDeviceType(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, `DELETE FROM device_types WHERE id = $1`, id)
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

// ListDeviceTypes lists device types
func (s *PostgresStore) ListDeviceTypes(ctx context.Context, limit, offset int) ([]*models.DeviceType, int64, error) {
	var total int64
	if err := s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM device_types`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + deviceTypeColumns + ` FROM device_types ORDER BY name LIMIT $1 OFFSET $2`
	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var types []*models.DeviceType
	for rows.Next() {
		dt, err := scanDeviceType(rows)
		if err != nil {
			return nil, 0, err
		}
		types = append(types, dt)
	}

	return types, total, rows.Err()
}
