package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

// ========== Device Command Methods ==========

const commandColumns = `
    id, created_at, updated_at, device_id, name, transaction_id, status,
    error_category, error_pid, error_message, completed_at`

func scanCommand(row interface{ Scan(...interface{}) error }) (*models.DeviceCommand, error) {
	cmd := &models.DeviceCommand{}
	err := row.Scan(
		&cmd.ID, &cmd.CreatedAt, &cmd.UpdatedAt, &cmd.DeviceID,
		&cmd.Name, &cmd.TransactionID, &cmd.Status,
		&cmd.ErrorCategory, &cmd.ErrorPid, &cmd.ErrorMessage, &cmd.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// CreateDeviceCommand creates a new device command
func (s *PostgresStore) CreateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}

	now := time.Now()
	cmd.CreatedAt = now
	cmd.UpdatedAt = now

	query := `
        INSERT INTO device_commands (
            id, created_at, updated_at, device_id, name, transaction_id, status,
            error_category, error_pid, error_message, completed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.getDB().ExecContext(ctx, query,
		cmd.ID, cmd.CreatedAt, cmd.UpdatedAt, cmd.DeviceID,
		cmd.Name, cmd.TransactionID, cmd.Status,
		cmd.ErrorCategory, cmd.ErrorPid, cmd.ErrorMessage, cmd.CompletedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetPendingCommand gets a device's pending command by transaction id
func (s *PostgresStore) GetPendingCommand(ctx context.Context, deviceID, transactionID uuid.UUID) (*models.DeviceCommand, error) {
	query := `SELECT` + commandColumns + `
        FROM device_commands
        WHERE device_id = $1 AND transaction_id = $2 AND status = $3`

	return scanCommand(s.getDB().QueryRowContext(ctx, query, deviceID, transactionID, models.CommandStatusPending))
}

// ListPendingCommands lists every pending command of a device
func (s *PostgresStore) ListPendingCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error) {
	query := `SELECT` + commandColumns + `
        FROM device_commands
        WHERE device_id = $1 AND status = $2
        ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, models.CommandStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []*models.DeviceCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, rows.Err()
}

// UpdateDeviceCommand updates a device command
func (s *PostgresStore) UpdateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	cmd.UpdatedAt = time.Now()

	query := `
        UPDATE device_commands SET
            updated_at = $2, status = $3,
            error_category = $4, error_pid = $5, error_message = $6,
            completed_at = $7
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		cmd.ID, cmd.UpdatedAt, cmd.Status,
		cmd.ErrorCategory, cmd.ErrorPid, cmd.ErrorMessage, cmd.CompletedAt,
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

// ListDeviceCommands lists a device's commands, newest first
func (s *PostgresStore) ListDeviceCommands(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.DeviceCommand, int64, error) {
	var total int64
	if err := s.getDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM device_commands WHERE device_id = $1`, deviceID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + commandColumns + `
        FROM device_commands
        WHERE device_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var commands []*models.DeviceCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, 0, err
		}
		commands = append(commands, cmd)
	}

	return commands, total, rows.Err()
}
