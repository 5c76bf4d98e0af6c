package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetgate/fleetgate-server/internal/events"
	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

// Ledger owns the device command lifecycle: issuing commands with fresh
// transaction ids, expiring stale pending ones, and folding reported
// results into the device's circuit breaker state.
//
// Ledger methods mutate the passed device in memory; the caller persists
// it when the surrounding unit of work commits.
type Ledger struct {
	events *events.Publisher
}

// NewLedger creates a command ledger
func NewLedger(pub *events.Publisher) *Ledger {
	return &Ledger{events: pub}
}

// ExpireStalePending marks every pending command of the device other than
// the one matching excludeTxn as expired, each counting as a retry.
// Returns the number of commands expired.
func (l *Ledger) ExpireStalePending(ctx context.Context, store storage.Store, dev *models.Device, excludeTxn uuid.UUID) (int, error) {
	pending, err := store.ListPendingCommands(ctx, dev.ID)
	if err != nil {
		return 0, fmt.Errorf("list pending commands: %w", err)
	}

	expired := 0
	now := time.Now()
	for _, cmd := range pending {
		if cmd.TransactionID == excludeTxn {
			continue
		}
		cmd.Status = models.CommandStatusExpired
		cmd.CompletedAt = &now
		if err := store.UpdateDeviceCommand(ctx, cmd); err != nil {
			return expired, fmt.Errorf("expire command %s: %w", cmd.TransactionID, err)
		}
		dev.CommandRetryCount++
		expired++

		log.Warn().
			Str("device", dev.DeviceUUID).
			Str("command", string(cmd.Name)).
			Str("transaction_id", cmd.TransactionID.String()).
			Msg("expired stale pending command")
	}

	return expired, nil
}

// Create issues a new command for the device with a fresh transaction id
func (l *Ledger) Create(ctx context.Context, store storage.Store, dev *models.Device, name models.CommandName) (*models.DeviceCommand, error) {
	cmd := &models.DeviceCommand{
		DeviceID:      dev.ID,
		Name:          name,
		TransactionID: uuid.New(),
		Status:        models.CommandStatusPending,
	}

	if err := store.CreateDeviceCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}

	l.events.Publish(ctx, &dev.ID, models.EventTypeCommandIssued, models.EventLevelInfo,
		string(name), "command issued",
		models.Variables{"transactionId": cmd.TransactionID.String()})

	return cmd, nil
}

// ProcessResult applies a device's acknowledgment of a previously issued
// command. A report with no matching pending command is logged and ignored;
// the check-in proceeds.
func (l *Ledger) ProcessResult(ctx context.Context, store storage.Store, dev *models.Device, devType *models.DeviceType, report *models.CommandReport) error {
	cmd, err := store.GetPendingCommand(ctx, dev.ID, report.TransactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Error().
				Str("device", dev.DeviceUUID).
				Str("transaction_id", report.TransactionID.String()).
				Msg("reported command has no matching pending entry")
			l.events.Publish(ctx, &dev.ID, models.EventTypeError, models.EventLevelError,
				"command-missing", "reported transaction id has no pending command",
				models.Variables{"transactionId": report.TransactionID.String()})
			return nil
		}
		return fmt.Errorf("find pending command: %w", err)
	}

	now := time.Now()
	cmd.CompletedAt = &now

	switch report.Status {
	case models.ReportedSuccess:
		cmd.Status = models.CommandStatusSuccess
		dev.CommandRetryCount = 0
		dev.LastCommandCritical = false

	case models.ReportedError:
		cmd.Status = models.CommandStatusError
		cmd.ErrorCategory = report.ErrorCategory
		cmd.ErrorPid = report.ErrorPid
		cmd.ErrorMessage = report.ErrorMessage
		dev.CommandRetryCount++
		if dev.CommandRetryCount > devType.MaxCommandRetries {
			l.tripBreaker(ctx, dev, cmd, "retry ceiling exceeded")
		}

	case models.ReportedCritical:
		// A critical report trips the breaker immediately, without the
		// retry ceiling comparison.
		cmd.Status = models.CommandStatusCritical
		cmd.ErrorCategory = report.ErrorCategory
		cmd.ErrorPid = report.ErrorPid
		cmd.ErrorMessage = report.ErrorMessage
		l.tripBreaker(ctx, dev, cmd, "critical command result")

	default:
		return fmt.Errorf("unknown reported status %q", report.Status)
	}

	if err := store.UpdateDeviceCommand(ctx, cmd); err != nil {
		return fmt.Errorf("update command: %w", err)
	}

	level := models.EventLevelInfo
	if cmd.Status != models.CommandStatusSuccess {
		level = models.EventLevelError
	}
	l.events.Publish(ctx, &dev.ID, models.EventTypeCommandResult, level,
		string(cmd.Name), fmt.Sprintf("command completed with status %s", cmd.Status),
		models.Variables{
			"transactionId": cmd.TransactionID.String(),
			"status":        string(cmd.Status),
			"retryCount":    dev.CommandRetryCount,
		})

	return nil
}

// tripBreaker engages the per-device circuit breaker: no further commands
// are issued until an administrator resets the device.
func (l *Ledger) tripBreaker(ctx context.Context, dev *models.Device, cmd *models.DeviceCommand, reason string) {
	dev.LastCommandCritical = true
	dev.ClearPushFlags()

	log.Error().
		Str("device", dev.DeviceUUID).
		Str("command", string(cmd.Name)).
		Int("retry_count", dev.CommandRetryCount).
		Str("reason", reason).
		Msg("command circuit breaker tripped")

	l.events.Publish(ctx, &dev.ID, models.EventTypeError, models.EventLevelCritical,
		"breaker-tripped", reason,
		models.Variables{
			"command":    string(cmd.Name),
			"retryCount": dev.CommandRetryCount,
		})
}
