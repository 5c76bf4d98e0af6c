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

// RouterStrategy speaks the router procedure: form-encoded POST, serial
// identity, pull-only. Routers are provisioned by an administrator up front,
// so an unknown serial is rejected instead of registered.
type RouterStrategy struct{}

func (RouterStrategy) Procedure() models.Procedure { return models.ProcedureRouter }

func (RouterStrategy) DecodeRequest(r *http.Request) (*Request, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	serial := strings.TrimSpace(r.PostFormValue("serial_number"))
	if serial == "" {
		return nil, errors.New("missing serial_number")
	}

	req := &Request{
		SerialNumber: serial,
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

func (RouterStrategy) Resolve(ctx context.Context, store storage.Store, req *Request) (*models.Device, bool, error) {
	dev, err := store.GetDeviceBySerial(ctx, req.SerialNumber)
	if err != nil {
		return nil, false, err
	}
	return dev, false, nil
}

// RequireFeatures demands config slot 1, the slot the inline get-config
// payload is rendered from.
func (RouterStrategy) RequireFeatures(devType *models.DeviceType) error {
	if !devType.Config1Enabled {
		return fmt.Errorf("device type %q has config slot 1 disabled", devType.Name)
	}
	return nil
}

func (RouterStrategy) WriteResponse(w http.ResponseWriter, status int, resp *Response) {
	writeJSON(w, status, resp)
}
