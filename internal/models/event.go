package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog represents an append-only audit log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	DeviceID *uuid.UUID `json:"deviceId,omitempty" db:"device_id"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Code        string     `json:"code" db:"code"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	EventTypeCheckin       EventType = "CHECKIN"
	EventTypeRegistration  EventType = "REGISTRATION"
	EventTypeCommandIssued EventType = "COMMAND_ISSUED"
	EventTypeCommandResult EventType = "COMMAND_RESULT"
	EventTypeRenewal       EventType = "RENEWAL"
	EventTypeError         EventType = "ERROR"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug    EventLevel = "DEBUG"
	EventLevelInfo     EventLevel = "INFO"
	EventLevelWarning  EventLevel = "WARNING"
	EventLevelError    EventLevel = "ERROR"
	EventLevelCritical EventLevel = "CRITICAL"
)
