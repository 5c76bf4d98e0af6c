package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

// ========== Device type handlers ==========

// HandleListDeviceTypes lists device types
func (s *RESTServer) HandleListDeviceTypes(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	types, total, err := s.store.ListDeviceTypes(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"deviceTypes": types,
		"total":       total,
	})
}

// HandleCreateDeviceType creates a device type
func (s *RESTServer) HandleCreateDeviceType(w http.ResponseWriter, r *http.Request) {
	var dt models.DeviceType
	if err := json.NewDecoder(r.Body).Decode(&dt); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validateDeviceType(&dt); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if dt.MaxCommandRetries == 0 {
		dt.MaxCommandRetries = 3
	}
	if dt.CertRenewBeforeDays == 0 {
		dt.CertRenewBeforeDays = 30
	}
	if dt.SecretTTLDays == 0 {
		dt.SecretTTLDays = 365
	}

	if err := s.store.CreateDeviceType(r.Context(), &dt); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "device type already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, &dt)
}

// HandleGetDeviceType gets a device type
func (s *RESTServer) HandleGetDeviceType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device type id")
		return
	}

	dt, err := s.store.GetDeviceType(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "device type not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, dt)
}

// HandleUpdateDeviceType updates a device type
func (s *RESTServer) HandleUpdateDeviceType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device type id")
		return
	}

	dt, err := s.store.GetDeviceType(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "device type not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Decode over the existing row so omitted fields keep their values
	if err := json.NewDecoder(r.Body).Decode(dt); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dt.ID = id

	if err := validateDeviceType(dt); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateDeviceType(r.Context(), dt); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, dt)
}

// HandleDeleteDeviceType deletes a device type
func (s *RESTServer) HandleDeleteDeviceType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device type id")
		return
	}

	if err := s.store.DeleteDeviceType(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "device type not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func validateDeviceType(dt *models.DeviceType) error {
	if dt.Name == "" {
		return errors.New("name is required")
	}
	switch dt.Procedure {
	case models.ProcedureEdgeGateway, models.ProcedureVpnClient, models.ProcedureRouter:
	default:
		return errors.New("invalid procedure")
	}
	for _, f := range []models.ConfigFormat{dt.ConfigFormat1, dt.ConfigFormat2, dt.ConfigFormat3} {
		switch f {
		case "", models.ConfigFormatText, models.ConfigFormatJSON:
		default:
			return errors.New("invalid config format")
		}
	}
	if dt.MaxCommandRetries < 0 {
		return errors.New("maxCommandRetries must not be negative")
	}
	return nil
}
