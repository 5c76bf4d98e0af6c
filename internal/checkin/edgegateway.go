package checkin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

// EdgeGatewayStrategy speaks the edge-gateway procedure: form-encoded POST,
// globally unique serial-number identity, implicit registration.
type EdgeGatewayStrategy struct{}

func (EdgeGatewayStrategy) Procedure() models.Procedure { return models.ProcedureEdgeGateway }

func (EdgeGatewayStrategy) DecodeRequest(r *http.Request) (*Request, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	serial := strings.TrimSpace(r.PostFormValue("serial_number"))
	if serial == "" {
		return nil, errors.New("missing serial_number")
	}

	req := &Request{
		SerialNumber: serial,
		DeviceType:   strings.TrimSpace(r.PostFormValue("device_type")),
		RemoteAddr:   remoteHost(r),
	}
	formTelemetry(req, r)

	report, err := formReport(r)
	if err != nil {
		return nil, err
	}
	req.Report = report

	return req, nil
}

func (EdgeGatewayStrategy) Resolve(ctx context.Context, store storage.Store, req *Request) (*models.Device, bool, error) {
	dev, err := store.GetDeviceBySerial(ctx, req.SerialNumber)
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
	if devType.Procedure != models.ProcedureEdgeGateway {
		return nil, false, storage.ErrNotFound
	}

	serial := req.SerialNumber
	dev, err = registerDevice(ctx, store, devType, &serial, "")
	if err != nil {
		return nil, false, err
	}
	return dev, true, nil
}

func (EdgeGatewayStrategy) RequireFeatures(devType *models.DeviceType) error {
	return nil
}

func (EdgeGatewayStrategy) WriteResponse(w http.ResponseWriter, status int, resp *Response) {
	writeJSON(w, status, resp)
}
