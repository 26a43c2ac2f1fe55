package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleGetAllDevicePower queries every configured device concurrently
// and returns one entry per device in configuration order. Devices that
// fail to answer appear as failed entries; the response is always 200.
func (s *Server) handleGetAllDevicePower(w http.ResponseWriter, r *http.Request) {
	readings := s.aggregator.CollectAll(r.Context())
	writeJSON(w, http.StatusOK, readings)
}

// handleListDevices returns the configured device inventory.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.All())
}

// handleDevicePower queries a single device's current power draw.
func (s *Server) handleDevicePower(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.registry.Get(name); !ok {
		writeNotFound(w, "unknown device: "+name)
		return
	}

	reading, err := s.aggregator.CollectOne(r.Context(), name)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// handleDeviceHistory returns recent stored readings for a device,
// newest first. The optional limit query parameter caps the result.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is disabled")
		return
	}

	name := chi.URLParam(r, "name")
	if _, ok := s.registry.Get(name); !ok {
		writeNotFound(w, "unknown device: "+name)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.ListByDevice(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("history query failed", "device", name, "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleBackendStats reports supervision status for the power backend.
func (s *Server) handleBackendStats(w http.ResponseWriter, _ *http.Request) {
	if s.backend == nil {
		writeNotFound(w, "backend diagnostics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.backend.Stats())
}
