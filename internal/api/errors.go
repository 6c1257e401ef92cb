package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iotbed/telemetry-bridge/internal/command"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/mqtt"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeNotConnected   = "not_connected"
	ErrCodePublishTimeout = "publish_timeout"
	ErrCodePublishFailed  = "publish_failed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeCommandError maps a publisher error onto a status code.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, command.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConnected, "Not connected to MQTT broker")
	case errors.Is(err, mqtt.ErrPublishTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodePublishTimeout, "broker did not acknowledge in time")
	case errors.Is(err, command.ErrInvalidBrightness),
		errors.Is(err, command.ErrInvalidColor),
		errors.Is(err, command.ErrEmptyCommand):
		writeBadRequest(w, err.Error())
	case errors.Is(err, command.ErrTopicNotConfigured):
		writeNotFound(w, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodePublishFailed, err.Error())
	}
}
