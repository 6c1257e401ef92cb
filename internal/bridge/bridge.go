package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iotbed/telemetry-bridge/internal/api"
	"github.com/iotbed/telemetry-bridge/internal/audit"
	"github.com/iotbed/telemetry-bridge/internal/command"
	"github.com/iotbed/telemetry-bridge/internal/connection"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/database"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/influxdb"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/logging"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/mqtt"
	"github.com/iotbed/telemetry-bridge/internal/ingest"
	"github.com/iotbed/telemetry-bridge/internal/metrics"
	"github.com/iotbed/telemetry-bridge/internal/store"
	"github.com/iotbed/telemetry-bridge/migrations"
)

// Options carries what New cannot derive from config.
type Options struct {
	// Dialer overrides the paho dialer. Tests inject fakes here.
	Dialer  connection.Dialer
	Logger  *logging.Logger
	Version string
}

// ConnectionEvent is broadcast on the connection.state live feed channel.
type ConnectionEvent struct {
	From   connection.State  `json:"from"`
	To     connection.State  `json:"to"`
	Status connection.Status `json:"status"`
}

// Bridge owns every component and their lifecycles. It is the only place
// that knows how they are wired together.
type Bridge struct {
	cfg    *config.Config
	logger *logging.Logger

	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	store     *store.Store
	hub       *api.Hub
	ingestor  *ingest.Ingestor
	manager   *connection.Manager
	publisher *command.Publisher
	server    *api.Server

	influx      *influxdb.Client
	db          *database.DB
	auditWriter *audit.Writer

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed sync.Once
}

// New builds the component graph. Optional backends (InfluxDB, the audit
// database) are connected here so a misconfiguration fails fast.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Bridge, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(cfg.Logging, opts.Version)
	}

	b := &Bridge{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	b.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewMetrics(b.registry)
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}
	b.metrics = m

	b.store = store.New(cfg.Store.MaxReadings)
	b.hub = api.NewHub(cfg.WebSocket, logger.Component("websocket"), m)

	if err := b.openBackends(ctx); err != nil {
		b.closeBackends()
		return nil, err
	}

	ingestOpts := ingest.Options{
		Topics:    cfg.Topics,
		QueueSize: cfg.Ingest.QueueSize,
		Notifier:  b.hub,
		Logger:    logger.Component("ingest"),
		Metrics:   m,
	}
	if b.influx != nil {
		ingestOpts.Sink = b.influx
	}
	b.ingestor = ingest.New(b.store, ingestOpts)

	dialer := opts.Dialer
	if dialer == nil {
		dialer = connection.MQTTDialer{
			Options: mqtt.OptionsFromConfig(cfg.MQTT, ClientID(cfg.MQTT.ClientIDPrefix)),
			Logger:  logger.Component("mqtt"),
		}
	}
	b.manager, err = connection.New(dialer, connection.Options{
		Brokers:        cfg.Brokers,
		Topics:         cfg.Topics.All(),
		Handler:        b.ingestor.HandleMessage,
		AutoReconnect:  cfg.MQTT.AutoReconnect,
		ReconnectDelay: cfg.GetReconnectDelay(),
		Logger:         logger.Component("connection"),
		Metrics:        m,
	})
	if err != nil {
		b.closeBackends()
		return nil, fmt.Errorf("creating connection manager: %w", err)
	}
	b.manager.OnStateChange(func(from, to connection.State) {
		b.hub.Broadcast(api.ChannelConnectionState, ConnectionEvent{
			From:   from,
			To:     to,
			Status: b.manager.Status(),
		})
	})

	pubOpts := command.Options{
		Topics:  cfg.Topics,
		Logger:  logger.Component("command"),
		Metrics: m,
	}
	var commands audit.Repository
	if b.auditWriter != nil {
		pubOpts.Recorder = b.auditWriter
		commands = b.auditWriter
	}
	b.publisher = command.NewPublisher(b.manager, b.store, pubOpts)

	b.server, err = api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Metrics:    cfg.Metrics,
		Logger:     logger.Component("api"),
		Store:      b.store,
		Connection: b.manager,
		Commander:  b.publisher,
		Ingest:     b.ingestor,
		Commands:   commands,
		Gatherer:   b.registry,
		Collectors: m,
		Hub:        b.hub,
		Version:    opts.Version,
	})
	if err != nil {
		b.closeBackends()
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return b, nil
}

// ClientID returns "<prefix>_<uuid>".
func ClientID(prefix string) string {
	if prefix == "" {
		prefix = "telemetry_bridge"
	}
	return prefix + "_" + uuid.NewString()
}

func (b *Bridge) openBackends(ctx context.Context) error {
	if b.cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(b.cfg.InfluxDB, b.cfg.Bridge.Name)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		client.SetOnError(func(err error) {
			b.logger.Error("InfluxDB write error", "error", err)
		})
		b.influx = client
		b.logger.Info("InfluxDB connected",
			"url", b.cfg.InfluxDB.URL,
			"org", b.cfg.InfluxDB.Org,
			"bucket", b.cfg.InfluxDB.Bucket,
		)
	}

	if b.cfg.Audit.Enabled {
		db, err := database.Open(database.ConfigFromAudit(b.cfg.Audit))
		if err != nil {
			return fmt.Errorf("opening audit database: %w", err)
		}
		b.db = db
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		b.auditWriter = audit.NewWriter(audit.NewSQLiteRepository(db.DB), b.logger.Component("audit"), 0)
		b.logger.Info("command audit log enabled", "path", b.cfg.Audit.Path)
	}
	return nil
}

// Start launches the background loops and the HTTP listener, then
// requests the first connect sequence. It does not wait for a broker.
func (b *Bridge) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.hub.Run(runCtx)
	}()
	go func() {
		defer b.wg.Done()
		if err := b.ingestor.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("ingest loop stopped", "error", err)
		}
	}()
	if b.auditWriter != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.auditWriter.Run(runCtx)
		}()
	}

	if err := b.server.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("starting API server: %w", err)
	}

	b.manager.Start(runCtx)
	b.logger.Info("bridge started",
		"brokers", len(b.cfg.Brokers),
		"topics", b.cfg.Topics.All(),
		"api", fmt.Sprintf("%s:%d", b.cfg.API.Host, b.cfg.API.Port),
	)
	return nil
}

// WaitConnected blocks until a connect sequence succeeds, every profile
// fails, or ctx ends.
func (b *Bridge) WaitConnected(ctx context.Context) error {
	return b.manager.Connect(ctx)
}

// HealthCheck reports the first unhealthy required component.
func (b *Bridge) HealthCheck(ctx context.Context) error {
	if err := b.server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if b.db != nil {
		if err := b.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("audit database: %w", err)
		}
	}
	if b.influx != nil {
		if err := b.influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// Close stops everything in reverse dependency order.
func (b *Bridge) Close() error {
	var errs []error
	b.closed.Do(func() {
		if err := b.server.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := b.manager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing connection manager: %w", err))
		}
		b.ingestor.Close()
		if b.cancel != nil {
			b.cancel()
		}
		b.wg.Wait()
		errs = append(errs, b.closeBackends())
		b.logger.Info("bridge stopped")
	})
	return errors.Join(errs...)
}

func (b *Bridge) closeBackends() error {
	var errs []error
	if b.influx != nil {
		if err := b.influx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler returns the HTTP handler without the listener.
func (b *Bridge) Handler() http.Handler { return b.server.Handler() }

// Store returns the state store.
func (b *Bridge) Store() *store.Store { return b.store }

// Manager returns the connection manager.
func (b *Bridge) Manager() *connection.Manager { return b.manager }

// Publisher returns the command publisher.
func (b *Bridge) Publisher() *command.Publisher { return b.publisher }

// Ingestor returns the message ingestor.
func (b *Bridge) Ingestor() *ingest.Ingestor { return b.ingestor }
