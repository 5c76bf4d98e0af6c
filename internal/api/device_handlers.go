package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

// ========== Device handlers ==========

// HandleListDevices lists devices
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)

	var deviceTypeID *uuid.UUID
	if raw := r.URL.Query().Get("device_type_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device_type_id")
			return
		}
		deviceTypeID = &id
	}

	devices, total, err := s.store.ListDevices(ctx, deviceTypeID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   total,
	})
}

// HandleGetDevice gets a device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromURL(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, dev)
}

// HandleUpdateDevice updates a device's administrative fields. Identity and
// telemetry fields are owned by the protocol engine and not settable here.
func (s *RESTServer) HandleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromURL(w, r)
	if !ok {
		return
	}

	var req struct {
		Name    *string `json:"name"`
		Enabled *bool   `json:"enabled"`

		ReinstallFirmware1 *bool `json:"reinstallFirmware1"`
		ReinstallFirmware2 *bool `json:"reinstallFirmware2"`
		ReinstallFirmware3 *bool `json:"reinstallFirmware3"`
		ReinstallConfig1   *bool `json:"reinstallConfig1"`
		ReinstallConfig2   *bool `json:"reinstallConfig2"`
		ReinstallConfig3   *bool `json:"reinstallConfig3"`

		RequestConfigData   *bool `json:"requestConfigData"`
		RequestDiagnoseData *bool `json:"requestDiagnoseData"`

		VirtualIP         *string                `json:"virtualIp"`
		VirtualSubnet     *string                `json:"virtualSubnet"`
		VpnIP             *string                `json:"vpnIp"`
		MasqueradeType    *models.MasqueradeType `json:"masqueradeType"`
		MasqueradeSubnets *models.StringList     `json:"masqueradeSubnets"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.Enabled != nil {
		dev.Enabled = *req.Enabled
	}
	if req.ReinstallFirmware1 != nil {
		dev.ReinstallFirmware1 = *req.ReinstallFirmware1
	}
	if req.ReinstallFirmware2 != nil {
		dev.ReinstallFirmware2 = *req.ReinstallFirmware2
	}
	if req.ReinstallFirmware3 != nil {
		dev.ReinstallFirmware3 = *req.ReinstallFirmware3
	}
	if req.ReinstallConfig1 != nil {
		dev.ReinstallConfig1 = *req.ReinstallConfig1
	}
	if req.ReinstallConfig2 != nil {
		dev.ReinstallConfig2 = *req.ReinstallConfig2
	}
	if req.ReinstallConfig3 != nil {
		dev.ReinstallConfig3 = *req.ReinstallConfig3
	}
	if req.RequestConfigData != nil {
		dev.RequestConfigData = *req.RequestConfigData
	}
	if req.RequestDiagnoseData != nil {
		dev.RequestDiagnoseData = *req.RequestDiagnoseData
	}
	if req.VirtualIP != nil {
		dev.VirtualIP = *req.VirtualIP
	}
	if req.VirtualSubnet != nil {
		dev.VirtualSubnet = *req.VirtualSubnet
	}
	if req.VpnIP != nil {
		dev.VpnIP = *req.VpnIP
	}
	if req.MasqueradeType != nil {
		switch *req.MasqueradeType {
		case models.MasqueradeNone, models.MasqueradeDefault, models.MasqueradeCustom:
			dev.MasqueradeType = *req.MasqueradeType
		default:
			s.respondError(w, http.StatusBadRequest, "invalid masqueradeType")
			return
		}
	}
	if req.MasqueradeSubnets != nil {
		dev.MasqueradeSubnets = *req.MasqueradeSubnets
	}

	if err := s.store.UpdateDevice(r.Context(), dev); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, dev)
}

// HandleResetBreaker clears a device's command circuit breaker so command
// issuance resumes on its next check-in.
func (s *RESTServer) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromURL(w, r)
	if !ok {
		return
	}

	dev.LastCommandCritical = false
	dev.CommandRetryCount = 0

	if err := s.store.UpdateDevice(r.Context(), dev); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("device", dev.DeviceUUID).Msg("command circuit breaker reset")

	s.respondJSON(w, http.StatusOK, dev)
}

// HandleListDeviceCommands lists a device's command history
func (s *RESTServer) HandleListDeviceCommands(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromURL(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	commands, total, err := s.store.ListDeviceCommands(r.Context(), dev.ID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"commands": commands,
		"total":    total,
	})
}

func (s *RESTServer) deviceFromURL(w http.ResponseWriter, r *http.Request) (*models.Device, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device id")
		return nil, false
	}

	dev, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "device not found")
			return nil, false
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return dev, true
}
