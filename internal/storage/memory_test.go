package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

func seedType(t *testing.T, store *MemoryStore) *models.DeviceType {
	t.Helper()
	dt := &models.DeviceType{
		Name:      "gw",
		Procedure: models.ProcedureEdgeGateway,
	}
	if err := store.CreateDeviceType(context.Background(), dt); err != nil {
		t.Fatalf("create device type: %v", err)
	}
	return dt
}

func TestDeviceLifecycle(t *testing.T) {
	store := NewMemoryStore()
	dt := seedType(t, store)
	ctx := context.Background()

	serial := "SN-1"
	dev := &models.Device{
		DeviceTypeID: dt.ID,
		SerialNumber: &serial,
		DeviceUUID:   uuid.NewString(),
		Enabled:      true,
	}
	if err := store.CreateDevice(ctx, dev); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if dev.ID == uuid.Nil || dev.CreatedAt.IsZero() {
		t.Error("create must assign id and timestamps")
	}

	bySerial, err := store.GetDeviceBySerial(ctx, serial)
	if err != nil {
		t.Fatalf("GetDeviceBySerial: %v", err)
	}
	byUUID, err := store.GetDeviceByUUID(ctx, dev.DeviceUUID)
	if err != nil {
		t.Fatalf("GetDeviceByUUID: %v", err)
	}
	if bySerial.ID != dev.ID || byUUID.ID != dev.ID {
		t.Error("lookups returned different devices")
	}

	bySerial.Name = "gateway-1"
	if err := store.UpdateDevice(ctx, bySerial); err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}
	got, _ := store.GetDevice(ctx, dev.ID)
	if got.Name != "gateway-1" {
		t.Errorf("name = %q after update", got.Name)
	}

	if _, err := store.GetDeviceBySerial(ctx, "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeviceDuplicateKeys(t *testing.T) {
	store := NewMemoryStore()
	dt := seedType(t, store)
	ctx := context.Background()

	serial := "SN-1"
	first := &models.Device{DeviceTypeID: dt.ID, SerialNumber: &serial, DeviceUUID: "uuid-1"}
	if err := store.CreateDevice(ctx, first); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	dupSerial := &models.Device{DeviceTypeID: dt.ID, SerialNumber: &serial, DeviceUUID: "uuid-2"}
	if err := store.CreateDevice(ctx, dupSerial); err != ErrDuplicateKey {
		t.Errorf("duplicate serial err = %v, want ErrDuplicateKey", err)
	}

	dupUUID := &models.Device{DeviceTypeID: dt.ID, DeviceUUID: "uuid-1"}
	if err := store.CreateDevice(ctx, dupUUID); err != ErrDuplicateKey {
		t.Errorf("duplicate uuid err = %v, want ErrDuplicateKey", err)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	store := NewMemoryStore()
	dt := seedType(t, store)
	ctx := context.Background()

	dev := &models.Device{DeviceTypeID: dt.ID, DeviceUUID: "uuid-1"}
	if err := store.CreateDevice(ctx, dev); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	a, _ := store.GetDevice(ctx, dev.ID)
	a.Name = "mutated"

	b, _ := store.GetDevice(ctx, dev.ID)
	if b.Name == "mutated" {
		t.Error("mutating a returned device must not affect the store")
	}
}

func TestDeviceTypeByName(t *testing.T) {
	store := NewMemoryStore()
	dt := seedType(t, store)

	got, err := store.GetDeviceTypeByName(context.Background(), "GW")
	if err != nil {
		t.Fatalf("GetDeviceTypeByName: %v", err)
	}
	if got.ID != dt.ID {
		t.Error("wrong device type returned")
	}

	if _, err := store.GetDeviceTypeByName(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPendingCommandQueries(t *testing.T) {
	store := NewMemoryStore()
	dt := seedType(t, store)
	ctx := context.Background()

	dev := &models.Device{DeviceTypeID: dt.ID, DeviceUUID: "uuid-1"}
	if err := store.CreateDevice(ctx, dev); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	pendingCmd := &models.DeviceCommand{
		DeviceID:      dev.ID,
		Name:          models.FirmwareCommand(1),
		TransactionID: uuid.New(),
		Status:        models.CommandStatusPending,
	}
	doneCmd := &models.DeviceCommand{
		DeviceID:      dev.ID,
		Name:          models.ConfigCommand(1),
		TransactionID: uuid.New(),
		Status:        models.CommandStatusSuccess,
	}
	for _, cmd := range []*models.DeviceCommand{pendingCmd, doneCmd} {
		if err := store.CreateDeviceCommand(ctx, cmd); err != nil {
			t.Fatalf("CreateDeviceCommand: %v", err)
		}
	}

	pending, err := store.ListPendingCommands(ctx, dev.ID)
	if err != nil {
		t.Fatalf("ListPendingCommands: %v", err)
	}
	if len(pending) != 1 || pending[0].TransactionID != pendingCmd.TransactionID {
		t.Errorf("pending = %+v", pending)
	}

	if _, err := store.GetPendingCommand(ctx, dev.ID, doneCmd.TransactionID); err != ErrNotFound {
		t.Errorf("terminal command must not be found as pending, err = %v", err)
	}

	all, total, err := store.ListDeviceCommands(ctx, dev.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListDeviceCommands: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("commands = %d/%d, want 2", len(all), total)
	}

	dup := &models.DeviceCommand{
		DeviceID:      dev.ID,
		Name:          models.FirmwareCommand(1),
		TransactionID: pendingCmd.TransactionID,
		Status:        models.CommandStatusPending,
	}
	if err := store.CreateDeviceCommand(ctx, dup); err != ErrDuplicateKey {
		t.Errorf("duplicate transaction id err = %v, want ErrDuplicateKey", err)
	}
}

func TestCertificateUpsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	deviceID := uuid.New()

	first := &models.Certificate{DeviceID: deviceID, Type: models.CertificateVpnClient, SerialNumber: "01"}
	if err := store.UpsertCertificate(ctx, first); err != nil {
		t.Fatalf("UpsertCertificate: %v", err)
	}

	second := &models.Certificate{DeviceID: deviceID, Type: models.CertificateVpnClient, SerialNumber: "02"}
	if err := store.UpsertCertificate(ctx, second); err != nil {
		t.Fatalf("UpsertCertificate: %v", err)
	}

	got, err := store.GetCertificate(ctx, deviceID, models.CertificateVpnClient)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if got.SerialNumber != "02" {
		t.Errorf("serial = %q, upsert must replace", got.SerialNumber)
	}
	if got.ID != first.ID {
		t.Error("upsert must keep the original row id")
	}

	if err := store.DeleteCertificate(ctx, deviceID, models.CertificateVpnClient); err != nil {
		t.Fatalf("DeleteCertificate: %v", err)
	}
	if _, err := store.GetCertificate(ctx, deviceID, models.CertificateVpnClient); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound after delete", err)
	}
}

func TestEventLogFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	deviceID := uuid.New()

	events := []*models.EventLog{
		{DeviceID: &deviceID, Type: models.EventTypeCheckin, Level: models.EventLevelInfo},
		{DeviceID: &deviceID, Type: models.EventTypeError, Level: models.EventLevelCritical},
		{Type: models.EventTypeError, Level: models.EventLevelError},
	}
	for _, e := range events {
		if err := store.CreateEventLog(ctx, e); err != nil {
			t.Fatalf("CreateEventLog: %v", err)
		}
	}

	all, total, err := store.ListEventLogs(ctx, EventLogFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("ListEventLogs: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Errorf("events = %d/%d, want 3", len(all), total)
	}

	byDevice, _, _ := store.ListEventLogs(ctx, EventLogFilters{DeviceID: &deviceID}, 10, 0)
	if len(byDevice) != 2 {
		t.Errorf("device events = %d, want 2", len(byDevice))
	}

	errType := models.EventTypeError
	critLevel := models.EventLevelCritical
	filtered, _, _ := store.ListEventLogs(ctx, EventLogFilters{Type: &errType, Level: &critLevel}, 10, 0)
	if len(filtered) != 1 {
		t.Errorf("filtered events = %d, want 1", len(filtered))
	}
}

func TestPagination(t *testing.T) {
	store := NewMemoryStore()
	dt := seedType(t, store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		dev := &models.Device{DeviceTypeID: dt.ID, DeviceUUID: uuid.NewString()}
		if err := store.CreateDevice(ctx, dev); err != nil {
			t.Fatalf("CreateDevice: %v", err)
		}
	}

	page, total, err := store.ListDevices(ctx, nil, 2, 0)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Errorf("page = %d total = %d, want 2/5", len(page), total)
	}

	tail, _, _ := store.ListDevices(ctx, nil, 10, 4)
	if len(tail) != 1 {
		t.Errorf("tail = %d, want 1", len(tail))
	}

	past, _, _ := store.ListDevices(ctx, nil, 10, 50)
	if len(past) != 0 {
		t.Errorf("past-the-end page = %d, want 0", len(past))
	}
}
