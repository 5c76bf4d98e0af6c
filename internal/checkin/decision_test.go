package checkin

import (
	"testing"

	"github.com/fleetgate/fleetgate-server/internal/models"
)

func intp(v int) *int { return &v }

func pushCapableType() *models.DeviceType {
	return &models.DeviceType{
		Procedure:         models.ProcedureEdgeGateway,
		Firmware1Enabled:  true,
		Firmware2Enabled:  true,
		Config1Enabled:    true,
		Config2Enabled:    true,
		MaxCommandRetries: 3,
	}
}

func TestDecidePriorityFirmwareOverConfig(t *testing.T) {
	dev := &models.Device{
		ReinstallFirmware2: true,
		ReinstallConfig1:   true,
		RequestConfigData:  true,
	}

	d := Decide(dev, pushCapableType())
	if d == nil {
		t.Fatal("expected a decision")
	}
	if d.Name != models.FirmwareCommand(2) || d.Slot != 2 {
		t.Errorf("decision = %+v, want update-firmware2", d)
	}
}

func TestDecideConfigBeforePulls(t *testing.T) {
	dev := &models.Device{
		ReinstallConfig2:  true,
		RequestConfigData: true,
	}

	d := Decide(dev, pushCapableType())
	if d == nil || d.Name != models.ConfigCommand(2) {
		t.Errorf("decision = %+v, want update-config2", d)
	}
}

func TestDecideGetConfigThenGetDiagnose(t *testing.T) {
	devType := pushCapableType()
	devType.DeviceCommandsEnabled = true

	dev := &models.Device{RequestConfigData: true, RequestDiagnoseData: true}
	if d := Decide(dev, devType); d == nil || d.Name != models.CommandGetConfig {
		t.Errorf("decision = %+v, want get-config", d)
	}

	dev = &models.Device{RequestDiagnoseData: true}
	if d := Decide(dev, devType); d == nil || d.Name != models.CommandGetDiagnose {
		t.Errorf("decision = %+v, want get-diagnose", d)
	}
}

func TestDecideGetDiagnoseRequiresFeature(t *testing.T) {
	dev := &models.Device{RequestDiagnoseData: true}
	if d := Decide(dev, pushCapableType()); d != nil {
		t.Errorf("decision = %+v, want none when device commands disabled", d)
	}
}

func TestDecideNothingDue(t *testing.T) {
	if d := Decide(&models.Device{}, pushCapableType()); d != nil {
		t.Errorf("decision = %+v, want none", d)
	}
}

func TestDecideBreakerStopsEverything(t *testing.T) {
	dev := &models.Device{
		LastCommandCritical: true,
		ReinstallFirmware1:  true,
		ReinstallConfig1:    true,
		RequestConfigData:   true,
		RequestDiagnoseData: true,
	}
	devType := pushCapableType()
	devType.DeviceCommandsEnabled = true

	if d := Decide(dev, devType); d != nil {
		t.Errorf("decision = %+v, want none while breaker engaged", d)
	}
}

func TestDecideRetryCeilingStopsPushesOnly(t *testing.T) {
	devType := pushCapableType()
	dev := &models.Device{
		CommandRetryCount:  devType.MaxCommandRetries + 1,
		ReinstallFirmware1: true,
		RequestConfigData:  true,
	}

	d := Decide(dev, devType)
	if d == nil || d.Name != models.CommandGetConfig {
		t.Errorf("decision = %+v, want get-config (pushes suppressed past ceiling)", d)
	}
}

func TestDecideVersionMismatchSetsFlag(t *testing.T) {
	devType := pushCapableType()
	devType.FirmwareTargetVersion1 = "2.0.0"

	dev := &models.Device{FirmwareVersion1: "1.9.0"}
	d := Decide(dev, devType)
	if d == nil || d.Name != models.FirmwareCommand(1) {
		t.Fatalf("decision = %+v, want update-firmware1", d)
	}
	if !dev.ReinstallFirmware1 {
		t.Error("version mismatch should set the reinstall flag")
	}

	// Matching version, no admin flag: nothing due
	dev = &models.Device{FirmwareVersion1: "2.0.0"}
	if d := Decide(dev, devType); d != nil {
		t.Errorf("decision = %+v, want none for matching version", d)
	}
}

func TestDecideEmptyTargetDisablesMismatch(t *testing.T) {
	dev := &models.Device{FirmwareVersion1: "1.0.0"}
	if d := Decide(dev, pushCapableType()); d != nil {
		t.Errorf("decision = %+v, want none without a target version", d)
	}
}

func TestDecideSignalGates(t *testing.T) {
	devType := pushCapableType()
	devType.MinSignalFirmware = intp(-85)
	devType.MinSignalConfig = intp(-90)

	// Unknown signal with gates set: no pushes at all
	dev := &models.Device{ReinstallFirmware1: true, ReinstallConfig1: true}
	if d := Decide(dev, devType); d != nil {
		t.Errorf("decision = %+v, want none for unknown signal", d)
	}

	// Signal passes config gate but not firmware gate
	dev = &models.Device{
		ReinstallFirmware1: true,
		ReinstallConfig1:   true,
		SignalStrength:     intp(-88),
	}
	d := Decide(dev, devType)
	if d == nil || d.Name != models.ConfigCommand(1) {
		t.Errorf("decision = %+v, want update-config1", d)
	}

	// Strong signal passes both, firmware wins
	dev.SignalStrength = intp(-60)
	d = Decide(dev, devType)
	if d == nil || d.Name != models.FirmwareCommand(1) {
		t.Errorf("decision = %+v, want update-firmware1", d)
	}
}

func TestDecideAlwaysReinstallConfig(t *testing.T) {
	devType := pushCapableType()
	devType.AlwaysReinstallConfig2 = true

	d := Decide(&models.Device{}, devType)
	if d == nil || d.Name != models.ConfigCommand(2) {
		t.Errorf("decision = %+v, want update-config2 from always-on slot", d)
	}
}

func TestDecideDisabledSlotsSkipped(t *testing.T) {
	devType := pushCapableType()
	devType.Firmware1Enabled = false

	dev := &models.Device{ReinstallFirmware1: true, ReinstallConfig1: true}
	d := Decide(dev, devType)
	if d == nil || d.Name != models.ConfigCommand(1) {
		t.Errorf("decision = %+v, want update-config1 when firmware slot disabled", d)
	}
}

func TestDecideRouterIsPullOnly(t *testing.T) {
	devType := pushCapableType()
	devType.Procedure = models.ProcedureRouter

	dev := &models.Device{ReinstallFirmware1: true, ReinstallConfig1: true}
	d := Decide(dev, devType)
	if d == nil || d.Name != models.CommandGetConfig {
		t.Errorf("decision = %+v, want get-config for pull-only procedure", d)
	}
}

func TestClearIssuedFlag(t *testing.T) {
	dev := &models.Device{
		ReinstallFirmware2:  true,
		ReinstallConfig3:    true,
		RequestConfigData:   true,
		RequestDiagnoseData: true,
	}

	ClearIssuedFlag(dev, &Decision{Name: models.FirmwareCommand(2), Slot: 2})
	if dev.ReinstallFirmware2 {
		t.Error("firmware flag not cleared")
	}
	ClearIssuedFlag(dev, &Decision{Name: models.ConfigCommand(3), Slot: 3})
	if dev.ReinstallConfig3 {
		t.Error("config flag not cleared")
	}
	ClearIssuedFlag(dev, &Decision{Name: models.CommandGetConfig})
	if dev.RequestConfigData {
		t.Error("get-config flag not cleared")
	}
	ClearIssuedFlag(dev, &Decision{Name: models.CommandGetDiagnose})
	if dev.RequestDiagnoseData {
		t.Error("get-diagnose flag not cleared")
	}
}
