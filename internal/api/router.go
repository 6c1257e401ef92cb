package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iotbed/telemetry-bridge/internal/store"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metricsCfg.Enabled && s.gatherer != nil {
		r.Handle(s.metricsPath(), promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get(s.wsPath(), s.handleWebSocket)

		// Queries
		r.Get("/status", s.handleStatus)
		r.Get("/data", s.handleData)
		r.Get("/light", s.handleState)
		r.Get("/state", s.handleState)
		r.Get("/device", s.handleDevice)
		r.Get("/commands", s.handleListCommands)
		for _, ch := range store.Channels {
			r.Get("/"+string(ch), s.historyHandler(ch))
		}
		r.Get("/{channel}", s.handleHistory)

		// Commands
		r.Post("/publish", s.handlePublish)
		r.Post("/command", s.handleCommand)
		r.Post("/brightness", s.handleBrightness)
		r.Post("/color", s.handleColor)
		r.Post("/toggle", s.handleToggle)
		r.Post("/clear", s.handleClear)
		r.Post("/reconnect", s.handleReconnect)
	})

	return r
}

func (s *Server) metricsPath() string {
	if s.metricsCfg.Path == "" {
		return "/metrics"
	}
	return s.metricsCfg.Path
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth is liveness only; broker state is on /api/status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": s.conn.IsConnected(),
	})
}
