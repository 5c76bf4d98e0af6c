package checkin

import (
	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/vpn"
)

// Request is the protocol-independent view of an inbound check-in
type Request struct {
	// Identity (one of the two, protocol-dependent)
	SerialNumber string
	DeviceUUID   string

	// DeviceType names the device type for implicit registration
	DeviceType string

	Name string

	// Reported firmware versions by slot
	FirmwareVersions map[int]string

	// GSM telemetry
	SignalStrength *int
	NetworkType    string
	CellID         string
	ICCID          string
	Modem          string

	RemoteAddr string

	// Acknowledgment of a previously issued command, if any
	Report *models.CommandReport
}

// CommandInstruction is the outbound command of a check-in response
type CommandInstruction struct {
	Name          models.CommandName `json:"name"`
	TransactionID uuid.UUID          `json:"transactionId"`
}

// ConfigPayload carries a config push, as plain text or structured data
// depending on the device type's slot format
type ConfigPayload struct {
	Slot   int                    `json:"slot"`
	Format models.ConfigFormat    `json:"format"`
	Text   string                 `json:"text,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Response is the protocol-independent check-in response; each strategy
// encodes it into its wire shape.
type Response struct {
	SerialNumber string              `json:"serialNumber,omitempty"`
	DeviceUUID   string              `json:"uuid,omitempty"`
	Error        string              `json:"error,omitempty"`
	Command      *CommandInstruction `json:"command,omitempty"`
	FirmwareURL  string              `json:"firmwareUrl,omitempty"`
	Config       *ConfigPayload      `json:"config,omitempty"`
	VPN          *vpn.ClientConfig   `json:"vpn,omitempty"`

	// Secret is set only on the check-in that rotated the device secret
	Secret string `json:"secret,omitempty"`
}
