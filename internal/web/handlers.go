package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/stephens/tubpanel/internal/device"
	"github.com/stephens/tubpanel/internal/log"
	"github.com/stephens/tubpanel/internal/protocol"
	"github.com/stephens/tubpanel/internal/storage"
)

// Version information, set via ldflags at build time
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// StatusResponse represents the overall device status
type StatusResponse struct {
	Device  device.Status `json:"device"`
	Clients int           `json:"clients"`
	Moods   []string      `json:"moods"`
}

// SetpointRequest represents a setpoint change request
type SetpointRequest struct {
	SetTemp int `json:"set_temp"`
}

// LightRequest represents a mood change request
type LightRequest struct {
	Light int `json:"light"`
}

// VersionResponse represents version info
type VersionResponse struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
}

// handleStatus returns the controller snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatusResponse{
		Device:  s.controller.Status(),
		Clients: s.hub.ClientCount(),
		Moods:   device.Moods,
	})
}

// handleSetSetpoint changes the setpoint the same way a panel message would
func (s *Server) handleSetSetpoint(w http.ResponseWriter, r *http.Request) {
	var req SetpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SetTemp == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status := s.controller.Status()
	if req.SetTemp < status.Min || req.SetTemp > status.Max {
		writeError(w, http.StatusBadRequest, "Setpoint out of range")
		return
	}

	if !s.dispatch(w, protocol.SetTemp{SetTemp: req.SetTemp}) {
		return
	}
	writeJSON(w, s.controller.Status())
}

// handleSetLight selects a light mood
func (s *Server) handleSetLight(w http.ResponseWriter, r *http.Request) {
	var req LightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !device.ValidMood(req.Light) {
		writeError(w, http.StatusBadRequest, "Unknown light mood")
		return
	}

	if !s.dispatch(w, protocol.Light{Light: req.Light}) {
		return
	}
	writeJSON(w, s.controller.Status())
}

func (s *Server) dispatch(w http.ResponseWriter, msg interface{}) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode command")
		return false
	}
	if _, err := s.controller.HandleMessage("api", data); err != nil {
		log.Error("Failed to apply API command: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to apply command")
		return false
	}
	return true
}

// handleGetLogs returns event log entries
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, []storage.EventLog{})
		return
	}

	filter := storage.EventLogFilter{
		Limit: 100,
	}

	q := r.URL.Query()
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if source := q.Get("source"); source != "" {
		src := storage.EventSource(source)
		filter.Source = &src
	}
	if eventType := q.Get("type"); eventType != "" {
		et := storage.EventType(eventType)
		filter.EventType = &et
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = &t
		}
	}

	logs, err := s.store.GetEventLogs(filter)
	if err != nil {
		log.Error("Failed to get logs: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get logs")
		return
	}
	if logs == nil {
		logs = []storage.EventLog{}
	}

	writeJSON(w, logs)
}

// handleVersion returns version info
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, VersionResponse{
		Version:   Version,
		BuildDate: BuildDate,
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
