package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

// Publisher is the append-only audit sink: every event becomes a persisted
// EventLog row and, when NATS is configured, a JSON message on the fleet
// subject tree. A nil connection disables publishing but not persistence.
type Publisher struct {
	nc    *nats.Conn
	store storage.Store
}

// NewPublisher creates an event publisher. nc may be nil.
func NewPublisher(nc *nats.Conn, store storage.Store) *Publisher {
	return &Publisher{nc: nc, store: store}
}

// Envelope is the wire format of a fleet event
type Envelope struct {
	DeviceID    *uuid.UUID        `json:"deviceId,omitempty"`
	Type        models.EventType  `json:"type"`
	Level       models.EventLevel `json:"level"`
	Code        string            `json:"code,omitempty"`
	Description string            `json:"description"`
	Details     models.Variables  `json:"details,omitempty"`
	Time        time.Time         `json:"time"`
}

// Publish records an event. Failures are logged and swallowed: the audit
// sink must never fail a check-in.
func (p *Publisher) Publish(ctx context.Context, deviceID *uuid.UUID, eventType models.EventType, level models.EventLevel, code, description string, details models.Variables) {
	entry := &models.EventLog{
		DeviceID:    deviceID,
		Type:        eventType,
		Level:       level,
		Code:        code,
		Description: description,
		Details:     details,
	}

	if err := p.store.CreateEventLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("type", string(eventType)).Msg("persist event log")
	}

	if p.nc == nil {
		return
	}

	env := Envelope{
		DeviceID:    deviceID,
		Type:        eventType,
		Level:       level,
		Code:        code,
		Description: description,
		Details:     details,
		Time:        time.Now().UTC(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("marshal fleet event")
		return
	}

	if err := p.nc.Publish(subjectFor(deviceID, eventType), data); err != nil {
		log.Error().Err(err).Str("type", string(eventType)).Msg("publish fleet event")
	}
}

func subjectFor(deviceID *uuid.UUID, eventType models.EventType) string {
	suffix := strings.ToLower(string(eventType))
	if deviceID == nil {
		return fmt.Sprintf("fleet.system.%s", suffix)
	}
	return fmt.Sprintf("fleet.device.%s.%s", deviceID.String(), suffix)
}
