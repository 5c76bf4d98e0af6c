package models

// Procedure identifies the communication procedure a device type speaks
type Procedure string

const (
	ProcedureEdgeGateway Procedure = "edge-gateway"
	ProcedureVpnClient   Procedure = "vpn-client"
	ProcedureRouter      Procedure = "router"
)

// ConfigFormat determines how a config slot's payload is delivered
type ConfigFormat string

const (
	ConfigFormatText ConfigFormat = "text"
	ConfigFormatJSON ConfigFormat = "json"
)

// DeviceType is the configuration template shared by many devices. It is
// read-only from the protocol engine's perspective.
type DeviceType struct {
	BaseModel

	Name      string    `json:"name" db:"name"`
	Procedure Procedure `json:"procedure" db:"procedure"`

	// Feature slots
	Firmware1Enabled bool `json:"firmware1Enabled" db:"firmware1_enabled"`
	Firmware2Enabled bool `json:"firmware2Enabled" db:"firmware2_enabled"`
	Firmware3Enabled bool `json:"firmware3Enabled" db:"firmware3_enabled"`
	Config1Enabled   bool `json:"config1Enabled" db:"config1_enabled"`
	Config2Enabled   bool `json:"config2Enabled" db:"config2_enabled"`
	Config3Enabled   bool `json:"config3Enabled" db:"config3_enabled"`

	AlwaysReinstallConfig1 bool `json:"alwaysReinstallConfig1" db:"always_reinstall_config1"`
	AlwaysReinstallConfig2 bool `json:"alwaysReinstallConfig2" db:"always_reinstall_config2"`
	AlwaysReinstallConfig3 bool `json:"alwaysReinstallConfig3" db:"always_reinstall_config3"`

	// Optional features
	CertificatesEnabled    bool `json:"certificatesEnabled" db:"certificates_enabled"`
	VpnEnabled             bool `json:"vpnEnabled" db:"vpn_enabled"`
	EndpointDevicesEnabled bool `json:"endpointDevicesEnabled" db:"endpoint_devices_enabled"`
	MasqueradeEnabled      bool `json:"masqueradeEnabled" db:"masquerade_enabled"`
	VariablesEnabled       bool `json:"variablesEnabled" db:"variables_enabled"`
	DeviceCommandsEnabled  bool `json:"deviceCommandsEnabled" db:"device_commands_enabled"`

	// Command retry ceiling for the circuit breaker
	MaxCommandRetries int `json:"maxCommandRetries" db:"max_command_retries"`

	// Minimum GSM signal required before pushing (nil = no gate)
	MinSignalFirmware *int `json:"minSignalFirmware,omitempty" db:"min_signal_firmware"`
	MinSignalConfig   *int `json:"minSignalConfig,omitempty" db:"min_signal_config"`

	// Config delivery format per slot
	ConfigFormat1 ConfigFormat `json:"configFormat1" db:"config_format1"`
	ConfigFormat2 ConfigFormat `json:"configFormat2" db:"config_format2"`
	ConfigFormat3 ConfigFormat `json:"configFormat3" db:"config_format3"`

	// Firmware download locations and target versions per slot
	FirmwareURL1 string `json:"firmwareUrl1" db:"firmware_url1"`
	FirmwareURL2 string `json:"firmwareUrl2" db:"firmware_url2"`
	FirmwareURL3 string `json:"firmwareUrl3" db:"firmware_url3"`

	FirmwareTargetVersion1 string `json:"firmwareTargetVersion1" db:"firmware_target_version1"`
	FirmwareTargetVersion2 string `json:"firmwareTargetVersion2" db:"firmware_target_version2"`
	FirmwareTargetVersion3 string `json:"firmwareTargetVersion3" db:"firmware_target_version3"`

	// Defaults copied onto new devices
	DefaultVirtualSubnet  string         `json:"defaultVirtualSubnet" db:"default_virtual_subnet"`
	DefaultMasqueradeType MasqueradeType `json:"defaultMasqueradeType" db:"default_masquerade_type"`

	// Renewal windows
	CertRenewBeforeDays int `json:"certRenewBeforeDays" db:"cert_renew_before_days"`
	SecretTTLDays       int `json:"secretTtlDays" db:"secret_ttl_days"`
}

// FirmwareEnabled returns whether a firmware slot is enabled
func (t *DeviceType) FirmwareEnabled(slot int) bool {
	switch slot {
	case 1:
		return t.Firmware1Enabled
	case 2:
		return t.Firmware2Enabled
	case 3:
		return t.Firmware3Enabled
	}
	return false
}

// ConfigEnabled returns whether a config slot is enabled
func (t *DeviceType) ConfigEnabled(slot int) bool {
	switch slot {
	case 1:
		return t.Config1Enabled
	case 2:
		return t.Config2Enabled
	case 3:
		return t.Config3Enabled
	}
	return false
}

// AlwaysReinstallConfig returns the always-on push flag for a config slot
func (t *DeviceType) AlwaysReinstallConfig(slot int) bool {
	switch slot {
	case 1:
		return t.AlwaysReinstallConfig1
	case 2:
		return t.AlwaysReinstallConfig2
	case 3:
		return t.AlwaysReinstallConfig3
	}
	return false
}

// ConfigFormat returns the delivery format for a config slot
func (t *DeviceType) ConfigFormat(slot int) ConfigFormat {
	switch slot {
	case 1:
		return t.ConfigFormat1
	case 2:
		return t.ConfigFormat2
	case 3:
		return t.ConfigFormat3
	}
	return ConfigFormatText
}

// FirmwareURL returns the download URL for a firmware slot
func (t *DeviceType) FirmwareURL(slot int) string {
	switch slot {
	case 1:
		return t.FirmwareURL1
	case 2:
		return t.FirmwareURL2
	case 3:
		return t.FirmwareURL3
	}
	return ""
}

// FirmwareTargetVersion returns the expected firmware version for a slot.
// An empty target disables the version-mismatch trigger for that slot.
func (t *DeviceType) FirmwareTargetVersion(slot int) string {
	switch slot {
	case 1:
		return t.FirmwareTargetVersion1
	case 2:
		return t.FirmwareTargetVersion2
	case 3:
		return t.FirmwareTargetVersion3
	}
	return ""
}
