package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

// MemoryStore implements Store with mutex-guarded maps. It backs tests and
// development mode (empty database DSN). BeginTx returns the store itself:
// mutations apply immediately and Rollback is a no-op, which is acceptable
// for the single-writer situations the memory store is used in.
type MemoryStore struct {
	mu sync.RWMutex

	devices     map[uuid.UUID]*models.Device
	deviceTypes map[uuid.UUID]*models.DeviceType
	commands    map[uuid.UUID]*models.DeviceCommand
	certs       map[uuid.UUID]*models.Certificate
	endpoints   map[uuid.UUID]*models.EndpointDevice
	users       map[uuid.UUID]*models.User
	events      []*models.EventLog
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:     make(map[uuid.UUID]*models.Device),
		deviceTypes: make(map[uuid.UUID]*models.DeviceType),
		commands:    make(map[uuid.UUID]*models.DeviceCommand),
		certs:       make(map[uuid.UUID]*models.Certificate),
		endpoints:   make(map[uuid.UUID]*models.EndpointDevice),
		users:       make(map[uuid.UUID]*models.User),
	}
}

// BeginTx returns the store itself; see type comment
func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op
func (s *MemoryStore) Commit() error { return nil }

// Rollback is a no-op
func (s *MemoryStore) Rollback() error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

func copyDevice(d *models.Device) *models.Device {
	out := *d
	if d.SerialNumber != nil {
		v := *d.SerialNumber
		out.SerialNumber = &v
	}
	if d.SecretExpiresAt != nil {
		v := *d.SecretExpiresAt
		out.SecretExpiresAt = &v
	}
	if d.SignalStrength != nil {
		v := *d.SignalStrength
		out.SignalStrength = &v
	}
	if d.SeenAt != nil {
		v := *d.SeenAt
		out.SeenAt = &v
	}
	if d.MasqueradeSubnets != nil {
		out.MasqueradeSubnets = append(models.StringList(nil), d.MasqueradeSubnets...)
	}
	return &out
}

func copyDeviceType(t *models.DeviceType) *models.DeviceType {
	out := *t
	if t.MinSignalFirmware != nil {
		v := *t.MinSignalFirmware
		out.MinSignalFirmware = &v
	}
	if t.MinSignalConfig != nil {
		v := *t.MinSignalConfig
		out.MinSignalConfig = &v
	}
	return &out
}

func copyCommand(c *models.DeviceCommand) *models.DeviceCommand {
	out := *c
	if c.CompletedAt != nil {
		v := *c.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}

// ========== Device Methods ==========

// CreateDevice creates a new device
func (s *MemoryStore) CreateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	for _, existing := range s.devices {
		if device.SerialNumber != nil && existing.SerialNumber != nil &&
			*existing.SerialNumber == *device.SerialNumber {
			return ErrDuplicateKey
		}
		if existing.DeviceTypeID == device.DeviceTypeID && existing.DeviceUUID == device.DeviceUUID {
			return ErrDuplicateKey
		}
	}

	s.devices[device.ID] = copyDevice(device)
	return nil
}

// GetDevice gets a device by primary id
func (s *MemoryStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDevice(device), nil
}

// GetDeviceByUUID gets a device by its protocol UUID
func (s *MemoryStore) GetDeviceByUUID(ctx context.Context, deviceUUID string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.DeviceUUID == deviceUUID {
			return copyDevice(device), nil
		}
	}
	return nil, ErrNotFound
}

// GetDeviceBySerial gets a device by serial number
func (s *MemoryStore) GetDeviceBySerial(ctx context.Context, serial string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, device := range s.devices {
		if device.SerialNumber != nil && *device.SerialNumber == serial {
			return copyDevice(device), nil
		}
	}
	return nil, ErrNotFound
}

// UpdateDevice updates a device
func (s *MemoryStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[device.ID]; !ok {
		return ErrNotFound
	}
	device.UpdatedAt = time.Now()
	s.devices[device.ID] = copyDevice(device)
	return nil
}

// ListDevices lists devices, optionally filtered by device type
func (s *MemoryStore) ListDevices(ctx context.Context, deviceTypeID *uuid.UUID, limit, offset int) ([]*models.Device, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Device
	for _, device := range s.devices {
		if deviceTypeID != nil && device.DeviceTypeID != *deviceTypeID {
			continue
		}
		all = append(all, copyDevice(device))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	all = paginate(all, limit, offset)
	return all, total, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ========== Device Type Methods ==========

// CreateDeviceType creates a new device type
func (s *MemoryStore) CreateDeviceType(ctx context.Context, dt *models.DeviceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dt.ID == uuid.Nil {
		dt.ID = uuid.New()
	}
	now := time.Now()
	dt.CreatedAt = now
	dt.UpdatedAt = now

	for _, existing := range s.deviceTypes {
		if strings.EqualFold(existing.Name, dt.Name) {
			return ErrDuplicateKey
		}
	}

	s.deviceTypes[dt.ID] = copyDeviceType(dt)
	return nil
}

// GetDeviceType gets a device type by id
func (s *MemoryStore) GetDeviceType(ctx context.Context, id uuid.UUID) (*models.DeviceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dt, ok := s.deviceTypes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDeviceType(dt), nil
}

// GetDeviceTypeByName gets a device type by its unique name
func (s *MemoryStore) GetDeviceTypeByName(ctx context.Context, name string) (*models.DeviceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, dt := range s.deviceTypes {
		if strings.EqualFold(dt.Name, name) {
			return copyDeviceType(dt), nil
		}
	}
	return nil, ErrNotFound
}

// UpdateDeviceType updates a device type
func (s *MemoryStore) UpdateDeviceType(ctx context.Context, dt *models.DeviceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deviceTypes[dt.ID]; !ok {
		return ErrNotFound
	}
	dt.UpdatedAt = time.Now()
	s.deviceTypes[dt.ID] = copyDeviceType(dt)
	return nil
}

// DeleteDeviceType deletes a device type
func (s *MemoryStore) DeleteDeviceType(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deviceTypes[id]; !ok {
		return ErrNotFound
	}
	delete(s.deviceTypes, id)
	return nil
}

// ListDeviceTypes lists device types
func (s *MemoryStore) ListDeviceTypes(ctx context.Context, limit, offset int) ([]*models.DeviceType, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.DeviceType
	for _, dt := range s.deviceTypes {
		all = append(all, copyDeviceType(dt))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	total := int64(len(all))
	all = paginate(all, limit, offset)
	return all, total, nil
}

// ========== Device Command Methods ==========

// CreateDeviceCommand creates a new device command
func (s *MemoryStore) CreateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	now := time.Now()
	cmd.CreatedAt = now
	cmd.UpdatedAt = now

	for _, existing := range s.commands {
		if existing.TransactionID == cmd.TransactionID {
			return ErrDuplicateKey
		}
	}

	s.commands[cmd.ID] = copyCommand(cmd)
	return nil
}

// GetPendingCommand gets a device's pending command by transaction id
func (s *MemoryStore) GetPendingCommand(ctx context.Context, deviceID, transactionID uuid.UUID) (*models.DeviceCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cmd := range s.commands {
		if cmd.DeviceID == deviceID && cmd.TransactionID == transactionID &&
			cmd.Status == models.CommandStatusPending {
			return copyCommand(cmd), nil
		}
	}
	return nil, ErrNotFound
}

// ListPendingCommands lists every pending command of a device
func (s *MemoryStore) ListPendingCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var commands []*models.DeviceCommand
	for _, cmd := range s.commands {
		if cmd.DeviceID == deviceID && cmd.Status == models.CommandStatusPending {
			commands = append(commands, copyCommand(cmd))
		}
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].CreatedAt.Before(commands[j].CreatedAt) })
	return commands, nil
}

// UpdateDeviceCommand updates a device command
func (s *MemoryStore) UpdateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.commands[cmd.ID]; !ok {
		return ErrNotFound
	}
	cmd.UpdatedAt = time.Now()
	s.commands[cmd.ID] = copyCommand(cmd)
	return nil
}

// ListDeviceCommands lists a device's commands, newest first
func (s *MemoryStore) ListDeviceCommands(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*models.DeviceCommand, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.DeviceCommand
	for _, cmd := range s.commands {
		if cmd.DeviceID == deviceID {
			all = append(all, copyCommand(cmd))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	all = paginate(all, limit, offset)
	return all, total, nil
}

// ========== Certificate Methods ==========

// UpsertCertificate creates or replaces a device's certificate of one type
func (s *MemoryStore) UpsertCertificate(ctx context.Context, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.certs {
		if existing.DeviceID == cert.DeviceID && existing.Type == cert.Type {
			cert.ID = existing.ID
			cert.CreatedAt = existing.CreatedAt
			cert.UpdatedAt = time.Now()
			out := *cert
			s.certs[id] = &out
			return nil
		}
	}

	if cert.ID == uuid.Nil {
		cert.ID = uuid.New()
	}
	now := time.Now()
	cert.CreatedAt = now
	cert.UpdatedAt = now
	out := *cert
	s.certs[cert.ID] = &out
	return nil
}

// GetCertificate gets a device's certificate of one type
func (s *MemoryStore) GetCertificate(ctx context.Context, deviceID uuid.UUID, certType models.CertificateType) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cert := range s.certs {
		if cert.DeviceID == deviceID && cert.Type == certType {
			out := *cert
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// DeleteCertificate deletes a device's certificate of one type
func (s *MemoryStore) DeleteCertificate(ctx context.Context, deviceID uuid.UUID, certType models.CertificateType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, cert := range s.certs {
		if cert.DeviceID == deviceID && cert.Type == certType {
			delete(s.certs, id)
			return nil
		}
	}
	return ErrNotFound
}

// ========== Endpoint Device Methods ==========

// ListEndpointDevices lists the endpoint devices behind a device
func (s *MemoryStore) ListEndpointDevices(ctx context.Context, deviceID uuid.UUID) ([]*models.EndpointDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var endpoints []*models.EndpointDevice
	for _, ep := range s.endpoints {
		if ep.DeviceID == deviceID {
			out := *ep
			endpoints = append(endpoints, &out)
		}
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].CreatedAt.Before(endpoints[j].CreatedAt) })
	return endpoints, nil
}

// AddEndpointDevice registers an endpoint device (admin/test helper)
func (s *MemoryStore) AddEndpointDevice(ep *models.EndpointDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	now := time.Now()
	ep.CreatedAt = now
	ep.UpdatedAt = now
	out := *ep
	s.endpoints[ep.ID] = &out
}

// ========== User Methods ==========

// CreateUser creates a new user
func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicateKey
		}
	}

	out := *user
	s.users[user.ID] = &out
	return nil
}

// GetUser gets a user by id
func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}

// GetUserByEmail gets a user by email
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			out := *user
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// ========== Event Log Methods ==========

// CreateEventLog creates an event log entry
func (s *MemoryStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	out := *event
	s.events = append(s.events, &out)
	return nil
}

// ListEventLogs lists event log entries matching the filters, newest first
func (s *MemoryStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.EventLog
	for _, event := range s.events {
		if filters.DeviceID != nil && (event.DeviceID == nil || *event.DeviceID != *filters.DeviceID) {
			continue
		}
		if filters.Type != nil && event.Type != *filters.Type {
			continue
		}
		if filters.Level != nil && event.Level != *filters.Level {
			continue
		}
		if filters.StartTime != nil && event.CreatedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && event.CreatedAt.After(*filters.EndTime) {
			continue
		}
		out := *event
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	all = paginate(all, limit, offset)
	return all, total, nil
}
