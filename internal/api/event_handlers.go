package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

// ========== Event log handlers ==========

// HandleListEvents lists event log entries, newest first
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var filters storage.EventLogFilters
	q := r.URL.Query()

	if raw := q.Get("device_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device_id")
			return
		}
		filters.DeviceID = &id
	}
	if raw := q.Get("type"); raw != "" {
		t := models.EventType(raw)
		filters.Type = &t
	}
	if raw := q.Get("level"); raw != "" {
		l := models.EventLevel(raw)
		filters.Level = &l
	}
	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		filters.StartTime = &t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		filters.EndTime = &t
	}

	events, total, err := s.store.ListEventLogs(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
