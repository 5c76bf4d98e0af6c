package checkin

import (
	"github.com/fleetgate/fleetgate-server/internal/models"
)

// Decision is the single outbound instruction chosen for a check-in.
// Firmware takes priority over config, config over data pulls; a device is
// never asked to do two things in one round trip.
type Decision struct {
	Name models.CommandName
	Slot int
}

// slots are evaluated in ascending order for both firmware and config
var slots = []int{1, 2, 3}

// Decide evaluates the reinstall matrix for a device. It first derives
// version-mismatch reinstall flags from the reported firmware versions,
// then picks the highest-priority due command. Flag derivation mutates the
// device; the caller persists it. Returns nil when nothing is due.
func Decide(dev *models.Device, devType *models.DeviceType) *Decision {
	deriveFirmwareFlags(dev, devType)

	if dev.LastCommandCritical {
		return nil
	}

	retryOK := dev.CommandRetryCount <= devType.MaxCommandRetries

	// Pull-only procedures never receive pushes; their config travels
	// inline with get-config.
	if retryOK && devType.Procedure != models.ProcedureRouter {
		for _, slot := range slots {
			if !devType.FirmwareEnabled(slot) || !dev.ReinstallFirmware(slot) {
				continue
			}
			if !signalOK(devType.MinSignalFirmware, dev.SignalStrength) {
				continue
			}
			return &Decision{Name: models.FirmwareCommand(slot), Slot: slot}
		}

		for _, slot := range slots {
			if !devType.ConfigEnabled(slot) {
				continue
			}
			if !dev.ReinstallConfig(slot) && !devType.AlwaysReinstallConfig(slot) {
				continue
			}
			if !signalOK(devType.MinSignalConfig, dev.SignalStrength) {
				continue
			}
			return &Decision{Name: models.ConfigCommand(slot), Slot: slot}
		}
	}

	if dev.RequestConfigData || devType.Procedure == models.ProcedureRouter {
		return &Decision{Name: models.CommandGetConfig}
	}

	if dev.RequestDiagnoseData && devType.DeviceCommandsEnabled {
		return &Decision{Name: models.CommandGetDiagnose}
	}

	return nil
}

// deriveFirmwareFlags sets a slot's reinstall flag when the device reports
// a firmware version different from the type's target. Already-set flags
// (administrator pushes) are left alone.
func deriveFirmwareFlags(dev *models.Device, devType *models.DeviceType) {
	for _, slot := range slots {
		if !devType.FirmwareEnabled(slot) || dev.ReinstallFirmware(slot) {
			continue
		}
		target := devType.FirmwareTargetVersion(slot)
		if target == "" {
			continue
		}
		if dev.FirmwareVersion(slot) != target {
			dev.SetReinstallFirmware(slot, true)
		}
	}
}

// signalOK applies the minimum-signal gate: an unset threshold always
// passes; an unknown signal never does when a threshold is set.
func signalOK(min *int, signal *int) bool {
	if min == nil {
		return true
	}
	return signal != nil && *signal >= *min
}

// ClearIssuedFlag clears the device flag consumed by an issued command,
// before the device acknowledges it.
func ClearIssuedFlag(dev *models.Device, d *Decision) {
	switch {
	case d.Name.IsFirmware():
		dev.SetReinstallFirmware(d.Slot, false)
	case d.Name.IsConfig():
		dev.SetReinstallConfig(d.Slot, false)
	case d.Name == models.CommandGetConfig:
		dev.RequestConfigData = false
	case d.Name == models.CommandGetDiagnose:
		dev.RequestDiagnoseData = false
	}
}
