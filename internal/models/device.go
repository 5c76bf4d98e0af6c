package models

import (
	"time"

	"github.com/google/uuid"
)

// MasqueradeType determines which subnets are hidden behind a device's
// VPN address.
type MasqueradeType string

const (
	MasqueradeNone    MasqueradeType = "none"
	MasqueradeDefault MasqueradeType = "default"
	MasqueradeCustom  MasqueradeType = "custom"
)

// Device represents one managed device. A device belongs to exactly one
// device type for its lifetime; the identity key (serial number or UUID,
// depending on the communication procedure) never changes after creation.
type Device struct {
	BaseModel

	// Identity
	DeviceTypeID uuid.UUID `json:"deviceTypeId" db:"device_type_id"`
	SerialNumber *string   `json:"serialNumber,omitempty" db:"serial_number"`
	DeviceUUID   string    `json:"deviceUuid" db:"device_uuid"`
	Name         string    `json:"name" db:"name"`

	// Administration
	Enabled bool `json:"enabled" db:"enabled"`

	// Device secret (hashed); the plaintext exists only in the response of
	// the check-in that rotated it.
	SecretHash      string     `json:"-" db:"secret_hash"`
	SecretExpiresAt *time.Time `json:"secretExpiresAt,omitempty" db:"secret_expires_at"`

	// Pending push flags per feature slot
	ReinstallFirmware1 bool `json:"reinstallFirmware1" db:"reinstall_firmware1"`
	ReinstallFirmware2 bool `json:"reinstallFirmware2" db:"reinstall_firmware2"`
	ReinstallFirmware3 bool `json:"reinstallFirmware3" db:"reinstall_firmware3"`
	ReinstallConfig1   bool `json:"reinstallConfig1" db:"reinstall_config1"`
	ReinstallConfig2   bool `json:"reinstallConfig2" db:"reinstall_config2"`
	ReinstallConfig3   bool `json:"reinstallConfig3" db:"reinstall_config3"`

	RequestConfigData   bool `json:"requestConfigData" db:"request_config_data"`
	RequestDiagnoseData bool `json:"requestDiagnoseData" db:"request_diagnose_data"`

	// Command circuit breaker state
	CommandRetryCount   int  `json:"commandRetryCount" db:"command_retry_count"`
	LastCommandCritical bool `json:"lastCommandCritical" db:"last_command_critical"`

	// VPN / network
	VirtualIP         string         `json:"virtualIp" db:"virtual_ip"`
	VirtualSubnet     string         `json:"virtualSubnet" db:"virtual_subnet"`
	VpnIP             string         `json:"vpnIp" db:"vpn_ip"`
	MasqueradeType    MasqueradeType `json:"masqueradeType" db:"masquerade_type"`
	MasqueradeSubnets StringList     `json:"masqueradeSubnets" db:"masquerade_subnets"`

	// Client-specific-configuration file identity
	ConfigHash string `json:"configHash" db:"config_hash"`

	// Reported firmware versions per slot
	FirmwareVersion1 string `json:"firmwareVersion1" db:"firmware_version1"`
	FirmwareVersion2 string `json:"firmwareVersion2" db:"firmware_version2"`
	FirmwareVersion3 string `json:"firmwareVersion3" db:"firmware_version3"`

	// GSM telemetry
	SignalStrength *int   `json:"signalStrength,omitempty" db:"signal_strength"`
	NetworkType    string `json:"networkType" db:"network_type"`
	CellID         string `json:"cellId" db:"cell_id"`
	ICCID          string `json:"iccid" db:"iccid"`
	Modem          string `json:"modem" db:"modem"`

	// Communication metadata
	LastIP          string     `json:"lastIp" db:"last_ip"`
	ConnectionCount int64      `json:"connectionCount" db:"connection_count"`
	SeenAt          *time.Time `json:"seenAt,omitempty" db:"seen_at"`
}

// ReinstallFirmware returns the reinstall flag for a firmware slot
func (d *Device) ReinstallFirmware(slot int) bool {
	switch slot {
	case 1:
		return d.ReinstallFirmware1
	case 2:
		return d.ReinstallFirmware2
	case 3:
		return d.ReinstallFirmware3
	}
	return false
}

// SetReinstallFirmware sets the reinstall flag for a firmware slot
func (d *Device) SetReinstallFirmware(slot int, v bool) {
	switch slot {
	case 1:
		d.ReinstallFirmware1 = v
	case 2:
		d.ReinstallFirmware2 = v
	case 3:
		d.ReinstallFirmware3 = v
	}
}

// ReinstallConfig returns the reinstall flag for a config slot
func (d *Device) ReinstallConfig(slot int) bool {
	switch slot {
	case 1:
		return d.ReinstallConfig1
	case 2:
		return d.ReinstallConfig2
	case 3:
		return d.ReinstallConfig3
	}
	return false
}

// SetReinstallConfig sets the reinstall flag for a config slot
func (d *Device) SetReinstallConfig(slot int, v bool) {
	switch slot {
	case 1:
		d.ReinstallConfig1 = v
	case 2:
		d.ReinstallConfig2 = v
	case 3:
		d.ReinstallConfig3 = v
	}
}

// FirmwareVersion returns the reported firmware version for a slot
func (d *Device) FirmwareVersion(slot int) string {
	switch slot {
	case 1:
		return d.FirmwareVersion1
	case 2:
		return d.FirmwareVersion2
	case 3:
		return d.FirmwareVersion3
	}
	return ""
}

// SetFirmwareVersion records the reported firmware version for a slot
func (d *Device) SetFirmwareVersion(slot int, v string) {
	switch slot {
	case 1:
		d.FirmwareVersion1 = v
	case 2:
		d.FirmwareVersion2 = v
	case 3:
		d.FirmwareVersion3 = v
	}
}

// ClearPushFlags clears every pending reinstall/request flag. Called when
// the circuit breaker trips; after that no commands are issued until an
// administrator resets the device.
func (d *Device) ClearPushFlags() {
	d.ReinstallFirmware1 = false
	d.ReinstallFirmware2 = false
	d.ReinstallFirmware3 = false
	d.ReinstallConfig1 = false
	d.ReinstallConfig2 = false
	d.ReinstallConfig3 = false
	d.RequestConfigData = false
	d.RequestDiagnoseData = false
}

// EndpointDevice represents a downstream device reachable behind a managed
// device; each one contributes a NAT rule to the VPN client configuration.
type EndpointDevice struct {
	BaseModel

	DeviceID uuid.UUID `json:"deviceId" db:"device_id"`
	Name     string    `json:"name" db:"name"`
	Address  string    `json:"address" db:"address"`
}
