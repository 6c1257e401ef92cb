package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iotbed/telemetry-bridge/internal/audit"
	"github.com/iotbed/telemetry-bridge/internal/connection"
	"github.com/iotbed/telemetry-bridge/internal/ingest"
	"github.com/iotbed/telemetry-bridge/internal/store"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Connected    bool                  `json:"connected"`
	Connection   connection.Status     `json:"connection"`
	LastUpdate   *time.Time            `json:"last_update"`
	Readings     map[store.Channel]int `json:"readings"`
	DeviceStatus map[string]any        `json:"device_status"`
	Ingest       *ingest.Stats         `json:"ingest,omitempty"`
}

// HistoryResponse is the body of GET /api/{channel}.
type HistoryResponse struct {
	Channel  store.Channel   `json:"channel"`
	Readings []store.Reading `json:"readings"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	conn := s.conn.Status()
	resp := StatusResponse{
		Connected:    conn.State == connection.StateConnected,
		Connection:   conn,
		Readings:     s.store.Counts(),
		DeviceStatus: s.store.DeviceStatus(),
	}
	if last := s.store.LastUpdate(); !last.IsZero() {
		resp.LastUpdate = &last
	}
	if s.ingest != nil {
		stats := s.ingest.Stats()
		resp.Ingest = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.CurrentState())
}

func (s *Server) handleDevice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.DeviceStatus())
}

// handleHistory serves channels not registered by name, which are all unknown.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ch, err := store.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	s.historyHandler(ch)(w, r)
}

func (s *Server) historyHandler(ch store.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		readings, err := s.store.History(ch)
		if err != nil {
			if errors.Is(err, store.ErrUnknownChannel) {
				writeNotFound(w, err.Error())
				return
			}
			writeInternalError(w, "failed to read history")
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponse{Channel: ch, Readings: readings})
	}
}

// handleListCommands returns recent audited commands.
//
// Query parameters:
//   - kind: command, brightness, color or publish
//   - result: success, not_connected, timeout or failed
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeNotFound(w, "command audit log is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Kind:   q.Get("kind"),
		Result: q.Get("result"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.commands.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list commands", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
