package checkin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetgate/fleetgate-server/internal/events"
	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
	"github.com/fleetgate/fleetgate-server/internal/vpn"
)

// Strategy supplies the protocol-specific parts of a check-in: payload
// decoding, identity resolution and response encoding. The shared pipeline
// drives everything else.
type Strategy interface {
	Procedure() models.Procedure
	DecodeRequest(r *http.Request) (*Request, error)

	// Resolve finds the device for a request, creating it when the
	// protocol allows implicit registration. The bool reports creation.
	Resolve(ctx context.Context, store storage.Store, req *Request) (*models.Device, bool, error)

	// RequireFeatures validates that the device type satisfies the
	// procedure's capability requirements.
	RequireFeatures(devType *models.DeviceType) error

	WriteResponse(w http.ResponseWriter, status int, resp *Response)
}

// Pipeline is the shared check-in state machine, parameterized by a
// protocol strategy.
type Pipeline struct {
	store    storage.Store
	ledger   *Ledger
	gate     *FreshnessGate
	vpn      *vpn.Manager
	events   *events.Publisher
	strategy Strategy
}

// NewPipeline creates a check-in pipeline for one protocol
func NewPipeline(store storage.Store, ledger *Ledger, gate *FreshnessGate, vpnMgr *vpn.Manager, pub *events.Publisher, strategy Strategy) *Pipeline {
	return &Pipeline{
		store:    store,
		ledger:   ledger,
		gate:     gate,
		vpn:      vpnMgr,
		events:   pub,
		strategy: strategy,
	}
}

// ServeHTTP handles one inbound check-in
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := p.strategy.DecodeRequest(r)
	if err != nil {
		p.strategy.WriteResponse(w, http.StatusBadRequest, &Response{Error: err.Error()})
		return
	}

	dev, created, err := p.strategy.Resolve(ctx, p.store, req)
	if err != nil {
		if err == storage.ErrNotFound {
			p.strategy.WriteResponse(w, http.StatusNotFound, &Response{Error: "unknown device"})
			return
		}
		log.Error().Err(err).Str("procedure", string(p.strategy.Procedure())).Msg("device resolution failed")
		p.strategy.WriteResponse(w, http.StatusInternalServerError, &Response{Error: "internal error"})
		return
	}

	resp := &Response{DeviceUUID: dev.DeviceUUID}
	if dev.SerialNumber != nil {
		resp.SerialNumber = *dev.SerialNumber
	}

	devType, err := p.store.GetDeviceType(ctx, dev.DeviceTypeID)
	if err != nil {
		log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("load device type failed")
		p.strategy.WriteResponse(w, http.StatusInternalServerError, &Response{Error: "internal error"})
		return
	}

	// Capability requirements are a fatal, non-retryable configuration
	// error: no device state is mutated.
	if err := p.strategy.RequireFeatures(devType); err != nil {
		log.Error().Err(err).
			Str("device", dev.DeviceUUID).
			Str("device_type", devType.Name).
			Str("procedure", string(p.strategy.Procedure())).
			Msg("device type configuration error")
		p.events.Publish(ctx, &dev.ID, models.EventTypeError, models.EventLevelCritical,
			"configuration-error", err.Error(), nil)
		resp.Error = fmt.Sprintf("configuration error: %s", err)
		p.strategy.WriteResponse(w, http.StatusOK, resp)
		return
	}

	if created {
		p.events.Publish(ctx, &dev.ID, models.EventTypeRegistration, models.EventLevelInfo,
			string(p.strategy.Procedure()), "device registered", nil)
	}

	now := time.Now()

	if !dev.Enabled {
		dev.SeenAt = &now
		if err := p.store.UpdateDevice(ctx, dev); err != nil {
			log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("persist seen-at failed")
		}
		log.Warn().Str("device", dev.DeviceUUID).Msg("check-in from disabled device")
		resp.Error = "device disabled"
		p.strategy.WriteResponse(w, http.StatusOK, resp)
		return
	}

	// Phase 1: telemetry. Persisted before command processing so a crash
	// mid-request keeps at least the last-seen state.
	p.applyTelemetry(dev, req, now)
	if err := p.store.UpdateDevice(ctx, dev); err != nil {
		log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("persist telemetry failed")
		p.strategy.WriteResponse(w, http.StatusInternalServerError, &Response{Error: "internal error"})
		return
	}

	// Phase 2: command ledger, one unit of work.
	if req.Report != nil {
		if err := p.processReport(ctx, dev, devType, req.Report); err != nil {
			log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("command report processing failed")
			p.strategy.WriteResponse(w, http.StatusInternalServerError, &Response{Error: "internal error"})
			return
		}
	}

	// Phase 3: renewal gate, then the decision matrix.
	secret, _ := p.gate.Refresh(ctx, dev, devType)
	resp.Secret = secret

	if err := p.decideAndIssue(ctx, dev, devType, resp); err != nil {
		log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("command issue failed")
		p.strategy.WriteResponse(w, http.StatusInternalServerError, &Response{Error: "internal error"})
		return
	}

	// Phase 4: VPN block for VPN-bearing protocols.
	if p.strategy.Procedure() == models.ProcedureVpnClient {
		p.attachVPN(ctx, dev, devType, resp)
	}

	// Phase 5: connection counter.
	dev.ConnectionCount++
	if err := p.store.UpdateDevice(ctx, dev); err != nil {
		log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("persist connection count failed")
	}

	p.events.Publish(ctx, &dev.ID, models.EventTypeCheckin, models.EventLevelInfo,
		string(p.strategy.Procedure()), "device check-in",
		models.Variables{"command": commandName(resp)})

	p.strategy.WriteResponse(w, http.StatusOK, resp)
}

func commandName(resp *Response) string {
	if resp.Command == nil {
		return ""
	}
	return string(resp.Command.Name)
}

func (p *Pipeline) applyTelemetry(dev *models.Device, req *Request, now time.Time) {
	for slot, version := range req.FirmwareVersions {
		if version != "" {
			dev.SetFirmwareVersion(slot, version)
		}
	}
	if req.SignalStrength != nil {
		dev.SignalStrength = req.SignalStrength
	}
	if req.NetworkType != "" {
		dev.NetworkType = req.NetworkType
	}
	if req.CellID != "" {
		dev.CellID = req.CellID
	}
	if req.ICCID != "" {
		dev.ICCID = req.ICCID
	}
	if req.Modem != "" {
		dev.Modem = req.Modem
	}
	if req.Name != "" {
		dev.Name = req.Name
	}
	if req.RemoteAddr != "" {
		dev.LastIP = req.RemoteAddr
	}
	dev.SeenAt = &now
}

// processReport runs the full ledger cycle in one transaction: expire
// stale pending commands, fold in the reported result, persist the
// device's breaker state.
func (p *Pipeline) processReport(ctx context.Context, dev *models.Device, devType *models.DeviceType, report *models.CommandReport) error {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := p.ledger.ExpireStalePending(ctx, tx, dev, report.TransactionID); err != nil {
		return err
	}
	if err := p.ledger.ProcessResult(ctx, tx, dev, devType, report); err != nil {
		return err
	}
	if err := tx.UpdateDevice(ctx, dev); err != nil {
		return fmt.Errorf("persist device: %w", err)
	}

	return tx.Commit()
}

// decideAndIssue runs the reinstall matrix and, when a command is due,
// creates it and clears the consumed flag in one transaction.
func (p *Pipeline) decideAndIssue(ctx context.Context, dev *models.Device, devType *models.DeviceType, resp *Response) error {
	d := Decide(dev, devType)

	// Config payloads are built before the command is issued; a failed
	// build degrades the response and leaves the flag set for the next
	// check-in. Pull-only procedures get their current config inline with
	// get-config.
	var payload *ConfigPayload
	needPayload := d != nil && d.Name.IsConfig()
	if d != nil && d.Name == models.CommandGetConfig && p.strategy.Procedure() == models.ProcedureRouter {
		needPayload = true
	}
	if needPayload {
		slot := d.Slot
		if slot == 0 {
			slot = 1
		}
		var err error
		payload, err = p.buildConfigPayload(ctx, dev, devType, slot)
		if err != nil {
			log.Error().Err(err).
				Str("device", dev.DeviceUUID).
				Int("slot", d.Slot).
				Msg("config payload generation failed")
			p.events.Publish(ctx, &dev.ID, models.EventTypeError, models.EventLevelError,
				"config-generation", err.Error(), nil)
			resp.Error = fmt.Sprintf("config generation failed: %s", err)
			d = nil
		}
	}

	if d == nil {
		// Still persist flag derivation from the decision pass
		return p.store.UpdateDevice(ctx, dev)
	}

	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Starting a new transaction forcibly expires anything still pending
	if _, err := p.ledger.ExpireStalePending(ctx, tx, dev, uuid.Nil); err != nil {
		return err
	}

	cmd, err := p.ledger.Create(ctx, tx, dev, d.Name)
	if err != nil {
		return err
	}

	ClearIssuedFlag(dev, d)
	if err := tx.UpdateDevice(ctx, dev); err != nil {
		return fmt.Errorf("persist device: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	resp.Command = &CommandInstruction{Name: cmd.Name, TransactionID: cmd.TransactionID}
	if d.Name.IsFirmware() {
		resp.FirmwareURL = devType.FirmwareURL(d.Slot)
	}
	resp.Config = payload

	return nil
}

// buildConfigPayload renders the payload for an update-config command in
// the slot's configured format. Slot 1 of a VPN-enabled type carries the
// client VPN material; other slots carry the device settings document.
func (p *Pipeline) buildConfigPayload(ctx context.Context, dev *models.Device, devType *models.DeviceType, slot int) (*ConfigPayload, error) {
	format := devType.ConfigFormat(slot)
	payload := &ConfigPayload{Slot: slot, Format: format}

	if devType.VpnEnabled && slot == 1 {
		switch format {
		case models.ConfigFormatJSON:
			cc, err := p.vpn.AssembleClientConfig(ctx, dev, devType)
			if err != nil {
				return nil, err
			}
			payload.Data = map[string]interface{}{
				"openvpn":    cc.OpenVPN,
				"nat":        cc.NAT,
				"masquerade": cc.Masquerade,
				"routes":     cc.Routes,
			}
		default:
			raw, err := p.vpn.GenerateConfiguration(ctx, dev)
			if err != nil {
				return nil, err
			}
			payload.Text = raw
		}
		return payload, nil
	}

	settings := map[string]interface{}{
		"name":          dev.Name,
		"virtualIp":     dev.VirtualIP,
		"virtualSubnet": dev.VirtualSubnet,
		"masquerade":    string(dev.MasqueradeType),
	}
	if format == models.ConfigFormatJSON {
		payload.Data = settings
		return payload, nil
	}
	payload.Text = fmt.Sprintf("name %s\nvirtual-ip %s\nvirtual-subnet %s\nmasquerade %s\n",
		dev.Name, dev.VirtualIP, dev.VirtualSubnet, dev.MasqueradeType)
	return payload, nil
}

// attachVPN assembles the VPN block when its prerequisites hold, and
// otherwise surfaces the missing one as a response error.
func (p *Pipeline) attachVPN(ctx context.Context, dev *models.Device, devType *models.DeviceType, resp *Response) {
	if !p.gate.HasValidCertificate(ctx, dev, models.CertificateVpnClient) {
		log.Warn().Str("device", dev.DeviceUUID).Msg("no valid vpn-client certificate")
		resp.Error = "no valid certificate"
		return
	}
	if dev.VpnIP == "" {
		log.Warn().Str("device", dev.DeviceUUID).Msg("no vpn ip assigned")
		resp.Error = "no vpn ip assigned"
		return
	}

	cc, err := p.vpn.AssembleClientConfig(ctx, dev, devType)
	if err != nil {
		log.Error().Err(err).Str("device", dev.DeviceUUID).Msg("vpn configuration failed")
		p.events.Publish(ctx, &dev.ID, models.EventTypeError, models.EventLevelError,
			"vpn-generation", err.Error(), nil)
		resp.Error = fmt.Sprintf("vpn configuration failed: %s", err)
		return
	}

	resp.VPN = cc
}
