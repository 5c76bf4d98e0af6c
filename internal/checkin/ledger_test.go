package checkin

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/events"
	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

func newTestLedger(store storage.Store) *Ledger {
	return NewLedger(events.NewPublisher(nil, store))
}

func seedLedgerDevice(t *testing.T, store *storage.MemoryStore) (*models.Device, *models.DeviceType) {
	t.Helper()

	devType := &models.DeviceType{
		Name:              "gw",
		Procedure:         models.ProcedureEdgeGateway,
		Firmware1Enabled:  true,
		Config1Enabled:    true,
		MaxCommandRetries: 3,
	}
	if err := store.CreateDeviceType(context.Background(), devType); err != nil {
		t.Fatalf("create device type: %v", err)
	}

	serial := "SN-100"
	dev := &models.Device{
		DeviceTypeID: devType.ID,
		SerialNumber: &serial,
		DeviceUUID:   uuid.NewString(),
		Enabled:      true,
	}
	if err := store.CreateDevice(context.Background(), dev); err != nil {
		t.Fatalf("create device: %v", err)
	}
	return dev, devType
}

func TestLedgerCreateIssuesPending(t *testing.T) {
	store := storage.NewMemoryStore()
	dev, _ := seedLedgerDevice(t, store)
	ledger := newTestLedger(store)

	cmd, err := ledger.Create(context.Background(), store, dev, models.FirmwareCommand(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cmd.Status != models.CommandStatusPending {
		t.Errorf("status = %s, want pending", cmd.Status)
	}
	if cmd.TransactionID == uuid.Nil {
		t.Error("transaction id not assigned")
	}

	pending, err := store.ListPendingCommands(context.Background(), dev.ID)
	if err != nil {
		t.Fatalf("ListPendingCommands: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
}

func TestExpireStalePending(t *testing.T) {
	store := storage.NewMemoryStore()
	dev, _ := seedLedgerDevice(t, store)
	ledger := newTestLedger(store)
	ctx := context.Background()

	stale, err := ledger.Create(ctx, store, dev, models.FirmwareCommand(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	kept, err := ledger.Create(ctx, store, dev, models.ConfigCommand(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	expired, err := ledger.ExpireStalePending(ctx, store, dev, kept.TransactionID)
	if err != nil {
		t.Fatalf("ExpireStalePending: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
	if dev.CommandRetryCount != 1 {
		t.Errorf("retry count = %d, want 1 (each expiry counts as a retry)", dev.CommandRetryCount)
	}

	pending, _ := store.ListPendingCommands(ctx, dev.ID)
	if len(pending) != 1 || pending[0].TransactionID != kept.TransactionID {
		t.Fatalf("wrong surviving pending command: %+v", pending)
	}

	// The stale one is gone for result processing
	if _, err := store.GetPendingCommand(ctx, dev.ID, stale.TransactionID); err != storage.ErrNotFound {
		t.Errorf("stale command still pending, err = %v", err)
	}
}

func TestProcessResultSuccessResetsBreakerState(t *testing.T) {
	store := storage.NewMemoryStore()
	dev, devType := seedLedgerDevice(t, store)
	ledger := newTestLedger(store)
	ctx := context.Background()

	dev.CommandRetryCount = 2
	cmd, _ := ledger.Create(ctx, store, dev, models.FirmwareCommand(1))

	err := ledger.ProcessResult(ctx, store, dev, devType, &models.CommandReport{
		TransactionID: cmd.TransactionID,
		Status:        models.ReportedSuccess,
	})
	if err != nil {
		t.Fatalf("ProcessResult: %v", err)
	}

	if dev.CommandRetryCount != 0 {
		t.Errorf("retry count = %d, want 0 after success", dev.CommandRetryCount)
	}
	if dev.LastCommandCritical {
		t.Error("critical flag should be cleared on success")
	}

	pending, _ := store.ListPendingCommands(ctx, dev.ID)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestProcessResultErrorUnderCeiling(t *testing.T) {
	store := storage.NewMemoryStore()
	dev, devType := seedLedgerDevice(t, store)
	ledger := newTestLedger(store)
	ctx := context.Background()

	cmd, _ := ledger.Create(ctx, store, dev, models.FirmwareCommand(1))

	err := ledger.ProcessResult(ctx, store, dev, devType, &models.CommandReport{
		TransactionID: cmd.TransactionID,
		Status:        models.ReportedError,
		ErrorCategory: "flash",
		ErrorMessage:  "write failed",
	})
	if err != nil {
		t.Fatalf("ProcessResult: %v", err)
	}

	if dev.CommandRetryCount != 1 {
		t.Errorf("retry count = %d, want 1", dev.CommandRetryCount)
	}
	if dev.LastCommandCritical {
		t.Error("breaker must not trip under the retry ceiling")
	}
}

func TestProcessResultErrorPastCeilingTripsBreaker(t *testing.T) {
	store := storage.NewMemoryStore()
	dev, devType := seedLedgerDevice(t, store)
	ledger := newTestLedger(store)
	ctx := context.Background()

	dev.CommandRetryCount = devType.MaxCommandRetries
	dev.ReinstallFirmware1 = true
	dev.RequestConfigData = true

	cmd, _ := ledger.Create(ctx, store, dev, models.FirmwareCommand(1))
	err := ledger.ProcessResult(ctx, store, dev, devType, &models.CommandReport{
		TransactionID: cmd.TransactionID,
		Status:        models.ReportedError,
	})
	if err != nil {
		t.Fatalf("ProcessResult: %v", err)
	}

	if !dev.LastCommandCritical {
		t.Fatal("breaker should trip when retries exceed the ceiling")
	}
	if dev.ReinstallFirmware1 || dev.RequestConfigData {
		t.Error("breaker trip must clear all push and request flags")
	}
}

func TestProcessResultCriticalTripsImmediately(t *testing.T) {
	store := storage.NewMemoryStore()
	dev, devType := seedLedgerDevice(t, store)
	ledger := newTestLedger(store)
	ctx := context.Background()

	dev.ReinstallConfig1 = true
	cmd, _ := ledger.Create(ctx, store, dev, models.ConfigCommand(1))

	err := ledger.ProcessResult(ctx, store, dev, devType, &models.CommandReport{
		TransactionID: cmd.TransactionID,
		Status:        models.ReportedCritical,
		ErrorCategory: "fs",
	})
	if err != nil {
		t.Fatalf("ProcessResult: %v", err)
	}

	// Critical bypasses the ceiling comparison entirely
	if !dev.LastCommandCritical {
		t.Fatal("breaker should trip immediately on critical")
	}
	if dev.CommandRetryCount != 0 {
		t.Errorf("retry count = %d, critical must not consume a retry", dev.CommandRetryCount)
	}
	if dev.ReinstallConfig1 {
		t.Error("breaker trip must clear push flags")
	}
}

func TestProcessResultMissingPendingIsIgnored(t *testing.T) {
	store := storage.NewMemoryStore()
	dev, devType := seedLedgerDevice(t, store)
	ledger := newTestLedger(store)

	err := ledger.ProcessResult(context.Background(), store, dev, devType, &models.CommandReport{
		TransactionID: uuid.New(),
		Status:        models.ReportedSuccess,
	})
	if err != nil {
		t.Fatalf("a report without a pending command must not fail the check-in: %v", err)
	}
	if dev.CommandRetryCount != 0 || dev.LastCommandCritical {
		t.Error("device state must not change for an unmatched report")
	}
}
