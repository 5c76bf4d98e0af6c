package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommandStatus represents the lifecycle state of an issued command.
// The set is closed; the retry/expiry logic switches over it exhaustively.
type CommandStatus string

const (
	CommandStatusPending  CommandStatus = "pending"
	CommandStatusSuccess  CommandStatus = "success"
	CommandStatusError    CommandStatus = "error"
	CommandStatusCritical CommandStatus = "critical"
	CommandStatusExpired  CommandStatus = "expired"
)

// Terminal reports whether the status admits no further transitions
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandStatusSuccess, CommandStatusCritical, CommandStatusExpired:
		return true
	case CommandStatusPending, CommandStatusError:
		return false
	}
	return false
}

// ReportedStatus is the status a device reports for a completed command
type ReportedStatus string

const (
	ReportedSuccess  ReportedStatus = "success"
	ReportedError    ReportedStatus = "error"
	ReportedCritical ReportedStatus = "critical"
)

// ParseReportedStatus maps a wire status string onto a ReportedStatus
func ParseReportedStatus(s string) (ReportedStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "ok":
		return ReportedSuccess, nil
	case "error", "failed":
		return ReportedError, nil
	case "critical":
		return ReportedCritical, nil
	}
	return "", fmt.Errorf("unknown command status %q", s)
}

// CommandName identifies an instruction pushed to a device. Firmware and
// config commands are slot-qualified so an acknowledgment maps back to
// exactly one reinstall flag.
type CommandName string

const (
	CommandGetConfig   CommandName = "get-config"
	CommandGetDiagnose CommandName = "get-diagnose"
)

// FirmwareCommand returns the update command name for a firmware slot
func FirmwareCommand(slot int) CommandName {
	return CommandName(fmt.Sprintf("update-firmware%d", slot))
}

// ConfigCommand returns the update command name for a config slot
func ConfigCommand(slot int) CommandName {
	return CommandName(fmt.Sprintf("update-config%d", slot))
}

// IsFirmware reports whether the command is a firmware push
func (n CommandName) IsFirmware() bool {
	return strings.HasPrefix(string(n), "update-firmware")
}

// IsConfig reports whether the command is a config push
func (n CommandName) IsConfig() bool {
	return strings.HasPrefix(string(n), "update-config")
}

// Slot returns the feature slot of a firmware/config command, or 0
func (n CommandName) Slot() int {
	s := string(n)
	if !n.IsFirmware() && !n.IsConfig() {
		return 0
	}
	switch s[len(s)-1] {
	case '1':
		return 1
	case '2':
		return 2
	case '3':
		return 3
	}
	return 0
}

// DeviceCommand represents one issued instruction awaiting device
// acknowledgment, correlated through its transaction id.
type DeviceCommand struct {
	BaseModel

	DeviceID      uuid.UUID     `json:"deviceId" db:"device_id"`
	Name          CommandName   `json:"name" db:"name"`
	TransactionID uuid.UUID     `json:"transactionId" db:"transaction_id"`
	Status        CommandStatus `json:"status" db:"status"`

	ErrorCategory string `json:"errorCategory,omitempty" db:"error_category"`
	ErrorPid      string `json:"errorPid,omitempty" db:"error_pid"`
	ErrorMessage  string `json:"errorMessage,omitempty" db:"error_message"`

	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// CommandReport is a device's acknowledgment of a previously issued command
type CommandReport struct {
	TransactionID uuid.UUID
	Name          CommandName
	Status        ReportedStatus
	ErrorCategory string
	ErrorPid      string
	ErrorMessage  string
}
