package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iotbed/telemetry-bridge/internal/audit"
	"github.com/iotbed/telemetry-bridge/internal/connection"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/logging"
	"github.com/iotbed/telemetry-bridge/internal/ingest"
	"github.com/iotbed/telemetry-bridge/internal/metrics"
	"github.com/iotbed/telemetry-bridge/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Connection is the part of the connection manager the API reads and drives.
type Connection interface {
	Status() connection.Status
	IsConnected() bool
	Reconnect()
}

// Commander issues device commands.
type Commander interface {
	PublishCommand(ctx context.Context, cmd string) error
	SetBrightness(ctx context.Context, value int) error
	SetColor(ctx context.Context, c store.Color) error
	ToggleLight(ctx context.Context) (string, error)
	Publish(ctx context.Context, topic, message string) error
}

// IngestStats reports message counters.
type IngestStats interface {
	Stats() ingest.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Metrics    config.MetricsConfig
	Logger     *logging.Logger
	Store      *store.Store
	Connection Connection
	Commander  Commander
	Ingest     IngestStats      // optional
	Commands   audit.Repository // optional; /api/commands is 404 without it
	Gatherer   prometheus.Gatherer
	Collectors *metrics.Metrics
	Hub        *Hub // if nil the server creates and runs its own
	Version    string
}

// Server is the HTTP query and command surface.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	metricsCfg config.MetricsConfig
	logger     *logging.Logger
	store      *store.Store
	conn       Connection
	commander  Commander
	ingest     IngestStats
	commands   audit.Repository
	gatherer   prometheus.Gatherer
	version    string
	hub        *Hub
	ownsHub    bool
	server     *http.Server
	cancel     context.CancelFunc
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Connection == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Commander == nil {
		return nil, fmt.Errorf("commander is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		store:      deps.Store,
		conn:       deps.Connection,
		commander:  deps.Commander,
		ingest:     deps.Ingest,
		commands:   deps.Commands,
		gatherer:   deps.Gatherer,
		version:    deps.Version,
		hub:        deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger, deps.Collectors)
		s.ownsHub = true
	}
	return s, nil
}

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler without listening.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.ownsHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
