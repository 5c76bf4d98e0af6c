package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
	"github.com/fleetgate/fleetgate-server/pkg/crypto"
)

// registerDevice creates a device on its first check-in. Identity fields are
// taken from the request, network defaults from the device type. A duplicate
// key means a concurrent registration won the race; the winning row is
// fetched and used.
func registerDevice(ctx context.Context, store storage.Store, devType *models.DeviceType, serial *string, deviceUUID string) (*models.Device, error) {
	if deviceUUID == "" {
		deviceUUID = uuid.NewString()
	}
	configHash, err := crypto.GenerateRandomHex(16)
	if err != nil {
		return nil, fmt.Errorf("generate config hash: %w", err)
	}

	dev := &models.Device{
		DeviceTypeID:   devType.ID,
		SerialNumber:   serial,
		DeviceUUID:     deviceUUID,
		Enabled:        true,
		ConfigHash:     configHash,
		VirtualSubnet:  devType.DefaultVirtualSubnet,
		MasqueradeType: devType.DefaultMasqueradeType,
	}
	if dev.MasqueradeType == "" {
		dev.MasqueradeType = models.MasqueradeNone
	}

	if err := store.CreateDevice(ctx, dev); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			log.Warn().Str("uuid", deviceUUID).Msg("concurrent device registration, using existing row")
			if serial != nil {
				return store.GetDeviceBySerial(ctx, *serial)
			}
			return store.GetDeviceByUUID(ctx, deviceUUID)
		}
		return nil, fmt.Errorf("create device: %w", err)
	}

	log.Info().
		Str("uuid", dev.DeviceUUID).
		Str("device_type", devType.Name).
		Msg("device registered")

	return dev, nil
}

// lookupDeviceType resolves the device type named in a registration request
func lookupDeviceType(ctx context.Context, store storage.Store, name string) (*models.DeviceType, error) {
	if name == "" {
		return nil, storage.ErrNotFound
	}
	return store.GetDeviceTypeByName(ctx, name)
}

// remoteHost extracts the peer address without the port
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// formReport assembles a command report from form fields, if the request
// carries a transaction id.
func formReport(r *http.Request) (*models.CommandReport, error) {
	raw := strings.TrimSpace(r.PostFormValue("transaction_id"))
	if raw == "" {
		return nil, nil
	}
	txn, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction_id: %w", err)
	}
	status, err := models.ParseReportedStatus(r.PostFormValue("status"))
	if err != nil {
		return nil, err
	}
	return &models.CommandReport{
		TransactionID: txn,
		Name:          models.CommandName(r.PostFormValue("command")),
		Status:        status,
		ErrorCategory: r.PostFormValue("error_category"),
		ErrorPid:      r.PostFormValue("error_pid"),
		ErrorMessage:  r.PostFormValue("error_message"),
	}, nil
}

// formTelemetry fills the shared telemetry fields from form values
func formTelemetry(req *Request, r *http.Request) {
	req.FirmwareVersions = map[int]string{}
	for slot := 1; slot <= 3; slot++ {
		if v := strings.TrimSpace(r.PostFormValue(fmt.Sprintf("firmware_version%d", slot))); v != "" {
			req.FirmwareVersions[slot] = v
		}
	}
	if v := strings.TrimSpace(r.PostFormValue("signal_strength")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.SignalStrength = &n
		}
	}
	req.Name = strings.TrimSpace(r.PostFormValue("name"))
	req.NetworkType = strings.TrimSpace(r.PostFormValue("network_type"))
	req.CellID = strings.TrimSpace(r.PostFormValue("cell_id"))
	req.ICCID = strings.TrimSpace(r.PostFormValue("iccid"))
	req.Modem = strings.TrimSpace(r.PostFormValue("modem"))
}

// writeJSON encodes a check-in response; every procedure answers JSON
func writeJSON(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("encode check-in response")
	}
}
