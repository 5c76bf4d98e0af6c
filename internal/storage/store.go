package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface. BeginTx returns a Store bound to a
// transaction; the check-in pipeline opens one per logical phase.
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Device methods
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDeviceByUUID(ctx context.Context, deviceUUID string) (*models.Device, error)
	GetDeviceBySerial(ctx context.Context, serial string) (*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	ListDevices(ctx context.Context, deviceTypeID *uuid.UUID, limit, offset int) ([]*models.Device, int64, error)

	// Device type methods
	CreateDeviceType(ctx context.Context, dt *models.DeviceType) error
	GetDeviceType(ctx context.Context, id uuid.UUID) (*models.DeviceType, error)
	GetDeviceTypeByName(ctx context.Context, name string) (*models.DeviceType, error)
	UpdateDeviceType(ctx context.Context, dt *models.DeviceType) error
	DeleteDeviceType(ctx context.Context, id uuid.UUID) error
	ListDeviceTypes(ctx context.Context, limit, offset int) ([]*models.DeviceType, int64, error)

	// Device command methods
	CreateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error
	GetPendingCommand(ctx context.Context, deviceID, transactionID uuid.UUID) (*models.DeviceCommand, error)
	ListPendingCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error)
	UpdateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error
	ListDeviceCommands(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.DeviceCommand, int64, error)

	// Certificate methods
	UpsertCertificate(ctx context.Context, cert *models.Certificate) error
	GetCertificate(ctx context.Context, deviceID uuid.UUID, certType models.CertificateType) (*models.Certificate, error)
	DeleteCertificate(ctx context.Context, deviceID uuid.UUID, certType models.CertificateType) error

	// Endpoint device methods
	ListEndpointDevices(ctx context.Context, deviceID uuid.UUID) ([]*models.EndpointDevice, error)

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Close the store
	Close() error
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	DeviceID  *uuid.UUID
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}
