package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

// VpnClientStrategy speaks the vpn-client procedure: JSON POST, UUID
// identity scoped to the device type, implicit registration, VPN-bearing.
type VpnClientStrategy struct{}

type vpnClientPayload struct {
	UUID       string `json:"uuid"`
	DeviceType string `json:"deviceType"`
	Name       string `json:"name"`

	FirmwareVersion1 string `json:"firmwareVersion1"`
	FirmwareVersion2 string `json:"firmwareVersion2"`
	FirmwareVersion3 string `json:"firmwareVersion3"`

	SignalStrength *int   `json:"signalStrength"`
	NetworkType    string `json:"networkType"`
	CellID         string `json:"cellId"`
	ICCID          string `json:"iccid"`
	Modem          string `json:"modem"`

	Report *vpnClientReport `json:"report"`
}

type vpnClientReport struct {
	TransactionID string `json:"transactionId"`
	Command       string `json:"command"`
	Status        string `json:"status"`
	ErrorCategory string `json:"errorCategory"`
	ErrorPid      string `json:"errorPid"`
	ErrorMessage  string `json:"errorMessage"`
}

func (VpnClientStrategy) Procedure() models.Procedure { return models.ProcedureVpnClient }

func (VpnClientStrategy) DecodeRequest(r *http.Request) (*Request, error) {
	var payload vpnClientPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	devUUID := strings.TrimSpace(payload.UUID)
	if devUUID == "" {
		return nil, errors.New("missing uuid")
	}

	req := &Request{
		DeviceUUID: devUUID,
		DeviceType: strings.TrimSpace(payload.DeviceType),
		Name:       strings.TrimSpace(payload.Name),
		FirmwareVersions: map[int]string{
			1: payload.FirmwareVersion1,
			2: payload.FirmwareVersion2,
			3: payload.FirmwareVersion3,
		},
		SignalStrength: payload.SignalStrength,
		NetworkType:    payload.NetworkType,
		CellID:         payload.CellID,
		ICCID:          payload.ICCID,
		Modem:          payload.Modem,
		RemoteAddr:     remoteHost(r),
	}

	if payload.Report != nil {
		txn, err := uuid.Parse(payload.Report.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("invalid transactionId: %w", err)
		}
		status, err := models.ParseReportedStatus(payload.Report.Status)
		if err != nil {
			return nil, err
		}
		req.Report = &models.CommandReport{
			TransactionID: txn,
			Name:          models.CommandName(payload.Report.Command),
			Status:        status,
			ErrorCategory: payload.Report.ErrorCategory,
			ErrorPid:      payload.Report.ErrorPid,
			ErrorMessage:  payload.Report.ErrorMessage,
		}
	}

	return req, nil
}

func (VpnClientStrategy) Resolve(ctx context.Context, store storage.Store, req *Request) (*models.Device, bool, error) {
	dev, err := store.GetDeviceByUUID(ctx, req.DeviceUUID)
	if err == nil {
		return dev, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	devType, err := lookupDeviceType(ctx, store, req.DeviceType)
	if err != nil {
		return nil, false, err
	}
	if devType.Procedure != models.ProcedureVpnClient {
		return nil, false, storage.ErrNotFound
	}

	dev, err = registerDevice(ctx, store, devType, nil, req.DeviceUUID)
	if err != nil {
		return nil, false, err
	}
	return dev, true, nil
}

// RequireFeatures demands the VPN prerequisites; a vpn-client check-in
// against a type without them is a configuration error.
func (VpnClientStrategy) RequireFeatures(devType *models.DeviceType) error {
	if !devType.VpnEnabled {
		return fmt.Errorf("device type %q has vpn disabled", devType.Name)
	}
	if !devType.CertificatesEnabled {
		return fmt.Errorf("device type %q has certificates disabled", devType.Name)
	}
	return nil
}

func (VpnClientStrategy) WriteResponse(w http.ResponseWriter, status int, resp *Response) {
	writeJSON(w, status, resp)
}
