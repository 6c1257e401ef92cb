package api

import (
	"encoding/json"
	"net/http"

	"github.com/iotbed/telemetry-bridge/internal/store"
)

// PublishRequest is the body of POST /api/publish.
type PublishRequest struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// BrightnessRequest is the body of POST /api/brightness. The value may be
// a JSON number or a numeric string.
type BrightnessRequest struct {
	Brightness *json.Number `json:"brightness"`
}

// ColorRequest is the body of POST /api/color.
type ColorRequest struct {
	Color *store.Color `json:"color"`
}

// CommandResponse acknowledges an accepted command.
type CommandResponse struct {
	Success bool   `json:"success"`
	Topic   string `json:"topic,omitempty"`
	Command string `json:"command,omitempty"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic field is required")
		return
	}
	if err := s.commander.Publish(r.Context(), req.Topic, req.Message); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Success: true, Topic: req.Topic})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command field is required")
		return
	}
	if err := s.commander.PublishCommand(r.Context(), req.Command); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Success: true, Command: req.Command})
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	var req BrightnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Brightness == nil {
		writeBadRequest(w, "brightness field is required")
		return
	}
	value, err := req.Brightness.Int64()
	if err != nil {
		writeBadRequest(w, "brightness must be an integer")
		return
	}
	if err := s.commander.SetBrightness(r.Context(), int(value)); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Success: true, Command: req.Brightness.String()})
}

func (s *Server) handleColor(w http.ResponseWriter, r *http.Request) {
	var req ColorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Color == nil {
		writeBadRequest(w, "color field is required")
		return
	}
	if err := s.commander.SetColor(r.Context(), *req.Color); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Success: true})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.commander.ToggleLight(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Success: true, Command: cmd})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.store.Clear()
	s.logger.Info("history buffers cleared")
	writeJSON(w, http.StatusOK, CommandResponse{Success: true})
}

// handleReconnect returns as soon as the sequence is requested.
func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	s.conn.Reconnect()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"state":   s.conn.Status().State,
	})
}
