package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/logging"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/mqtt"
	"github.com/iotbed/telemetry-bridge/internal/metrics"
)

// Logger is the subset of logging.Logger the manager uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Manager.
type Options struct {
	// Brokers is the failover registry, highest priority first.
	Brokers []config.BrokerConfig
	// Topics are subscribed on every new session before it counts as connected.
	Topics []string
	// Handler receives every inbound message.
	Handler mqtt.MessageHandler
	// AutoReconnect restarts the sequence from the first profile after a lost link.
	AutoReconnect  bool
	ReconnectDelay time.Duration
	Logger         Logger
	Metrics        *metrics.Metrics
}

// Status is a point-in-time view of the connection.
type Status struct {
	State          State      `json:"state"`
	Broker         string     `json:"broker,omitempty"`
	Host           string     `json:"host,omitempty"`
	Port           int        `json:"port,omitempty"`
	BrokerIndex    int        `json:"broker_index"`
	LastError      string     `json:"last_error,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	Attempts       uint64     `json:"attempts"`
}

type lostEvent struct {
	gen uint64
	err error
}

// Manager owns the single broker connection. It is the only writer of the
// connection state and runs every connect sequence on its own goroutine.
//
// A connect sequence tries each profile in registry order and stops at
// the first one that connects and subscribes. Reconnects always restart
// from the first profile.
type Manager struct {
	dialer Dialer
	opts   Options
	logger Logger

	mu          sync.RWMutex
	state       State
	transport   Transport
	gen         uint64
	active      int
	lastErr     error
	connectedAt time.Time
	attempts    uint64

	// pending is true from the moment a sequence is requested until it ends.
	// delayed is true while the pending sequence waits out ReconnectDelay.
	seqMu   sync.Mutex
	pending bool
	delayed bool
	waiters []chan error

	obsMu     sync.RWMutex
	observers []func(from, to State)

	requests chan struct{}
	lost     chan lostEvent

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// New creates a Manager in the disconnected state. Call Start to begin connecting.
func New(dialer Dialer, opts Options) (*Manager, error) {
	if len(opts.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	brokers := make([]config.BrokerConfig, len(opts.Brokers))
	copy(brokers, opts.Brokers)
	opts.Brokers = brokers

	return &Manager{
		dialer:   dialer,
		opts:     opts,
		logger:   logger,
		state:    StateDisconnected,
		active:   -1,
		requests: make(chan struct{}, 1),
		lost:     make(chan lostEvent, 4),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the manager loop and requests the first connect
// sequence. It does not wait for the outcome.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		m.wg.Add(1)
		go m.run(loopCtx)
		m.request(nil, false)
	})
}

// Connect requests a connect sequence (unless one is already pending) and
// waits for its outcome. It returns nil immediately when already connected.
// Start must have been called.
func (m *Manager) Connect(ctx context.Context) error {
	ch := make(chan error, 1)
	m.request(ch, false)

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type requestResult int

const (
	requestIgnored requestResult = iota
	requestScheduled
	requestExpedited
)

// Reconnect tears down the current session and restarts the sequence from
// the first profile. It returns immediately. While a sequence is running
// it is a no-op; while an automatic reconnect is waiting out its delay it
// starts that sequence now.
func (m *Manager) Reconnect() {
	switch m.request(nil, true) {
	case requestScheduled:
		m.opts.Metrics.IncReconnects()
		m.logger.Info("reconnect requested")
	case requestExpedited:
		m.logger.Info("reconnect requested, skipping reconnect delay")
	}
}

// request marks a sequence pending and wakes the loop. With expedite set,
// a sequence waiting on the reconnect delay is started immediately. A
// non-nil waiter receives the outcome of the pending sequence either way.
func (m *Manager) request(waiter chan error, expedite bool) requestResult {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()

	select {
	case <-m.done:
		if waiter != nil {
			waiter <- ErrClosed
		}
		return requestIgnored
	default:
	}

	if waiter != nil {
		if !m.pending && m.State() == StateConnected {
			waiter <- nil
			return requestIgnored
		}
		m.waiters = append(m.waiters, waiter)
	}

	result := requestScheduled
	switch {
	case m.pending && m.delayed && expedite:
		m.delayed = false
		result = requestExpedited
	case m.pending:
		return requestIgnored
	default:
		m.pending = true
	}
	select {
	case m.requests <- struct{}{}:
	default:
	}
	return result
}

// finish clears the pending flag and hands result to every waiter.
func (m *Manager) finish(result error) {
	m.seqMu.Lock()
	waiters := m.waiters
	m.waiters = nil
	m.pending = false
	m.delayed = false
	m.seqMu.Unlock()

	for _, w := range waiters {
		w <- result
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			m.teardown("shutdown")
			m.finish(ErrClosed)
			return

		case <-m.requests:
			retry = nil
			m.finish(m.runSequence(ctx))

		case ev := <-m.lost:
			if !m.handleLost(ev) || !m.opts.AutoReconnect {
				continue
			}
			m.seqMu.Lock()
			scheduled := !m.pending
			if scheduled {
				m.pending = true
				m.delayed = true
			}
			m.seqMu.Unlock()
			if scheduled {
				m.opts.Metrics.IncReconnects()
				retry = time.After(m.opts.ReconnectDelay)
			}

		case <-retry:
			retry = nil
			m.seqMu.Lock()
			expedited := !m.delayed
			m.delayed = false
			m.seqMu.Unlock()
			// Reconnect already handed this sequence to the requests case.
			if expedited {
				continue
			}
			// A request that raced the timer already ran the sequence.
			if m.State() == StateConnected {
				m.finish(nil)
				continue
			}
			m.finish(m.runSequence(ctx))
		}
	}
}

// runSequence tries every profile in order and returns nil once one is
// connected, or ErrAllBrokersFailed.
func (m *Manager) runSequence(ctx context.Context) error {
	m.teardown("reconnect")

	var lastErr error
	for i, broker := range m.opts.Brokers {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}

		if err := m.transition(StateConnecting, func() { m.attempts++ }); err != nil {
			return err
		}
		m.logger.Info("connecting to broker",
			"broker", broker.Label(),
			"address", broker.Address(),
			"tls", broker.TLS,
			"attempt", i+1,
			"of", len(m.opts.Brokers),
		)

		transport, err := m.attempt(ctx, broker)
		if err != nil {
			lastErr = err
			m.opts.Metrics.IncConnectionAttempt(broker.Label(), "failure")
			m.logger.Warn("broker connection failed",
				"broker", broker.Label(),
				"address", broker.Address(),
				"error", err,
			)
			_ = m.transition(StateError, func() { m.lastErr = err })
			continue
		}

		index := i
		err = m.transition(StateConnected, func() {
			m.gen++
			m.transport = transport
			m.active = index
			m.lastErr = nil
			m.connectedAt = time.Now()
		})
		if err != nil {
			_ = transport.Close()
			return err
		}
		m.opts.Metrics.IncConnectionAttempt(broker.Label(), "success")
		m.logger.Info("connected to broker",
			"broker", broker.Label(),
			"address", broker.Address(),
		)
		return nil
	}

	err := fmt.Errorf("%w: tried %d profiles: %w", ErrAllBrokersFailed, len(m.opts.Brokers), lastErr)
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.logger.Error("all broker profiles failed", "profiles", len(m.opts.Brokers), "error", lastErr)
	return err
}

// attempt dials one profile and subscribes the topic set.
func (m *Manager) attempt(ctx context.Context, broker config.BrokerConfig) (Transport, error) {
	m.mu.RLock()
	nextGen := m.gen + 1
	m.mu.RUnlock()

	onLost := func(err error) {
		select {
		case m.lost <- lostEvent{gen: nextGen, err: err}:
		case <-m.done:
		}
	}

	transport, err := m.dialer.Dial(ctx, broker, onLost)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, broker.Label(), err)
	}

	if len(m.opts.Topics) > 0 && m.opts.Handler != nil {
		if err := transport.Subscribe(m.opts.Topics, m.opts.Handler); err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, broker.Label(), err)
		}
	}
	return transport, nil
}

// handleLost moves a connected manager to disconnected when the event
// belongs to the live session. Events from torn-down sessions are ignored.
func (m *Manager) handleLost(ev lostEvent) bool {
	m.mu.RLock()
	current := m.gen == ev.gen && m.state == StateConnected
	m.mu.RUnlock()
	if !current {
		m.logger.Debug("ignoring connection loss from stale session", "generation", ev.gen)
		return false
	}

	m.logger.Warn("broker connection lost", "error", ev.err)
	var old Transport
	err := m.transition(StateDisconnected, func() {
		old = m.transport
		m.transport = nil
		m.active = -1
		m.lastErr = ev.err
	})
	if err != nil {
		return false
	}
	if old != nil {
		_ = old.Close()
	}
	return true
}

// teardown closes the live session, if any.
func (m *Manager) teardown(reason string) {
	if m.State() != StateConnected {
		return
	}
	var old Transport
	err := m.transition(StateDisconnected, func() {
		old = m.transport
		m.transport = nil
		m.active = -1
	})
	if err != nil {
		return
	}
	if old != nil {
		_ = old.Close()
	}
	m.logger.Info("broker session closed", "reason", reason)
}

// transition applies one state change and runs mutate under the same
// lock. Observers run after the lock is released.
func (m *Manager) transition(to State, mutate func()) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		m.logger.Error("invalid connection state transition", "from", from, "to", to)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	if mutate != nil {
		mutate()
	}
	m.mu.Unlock()

	m.opts.Metrics.SetConnectionState(string(to))

	m.obsMu.RLock()
	observers := m.observers
	m.obsMu.RUnlock()
	for _, fn := range observers {
		fn(from, to)
	}
	return nil
}

// OnStateChange registers fn to be called after every transition. fn runs
// on the manager goroutine and must not block.
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

// Publish sends payload through the live session. It fails with
// ErrNotConnected, without side effects, unless the state is connected.
// The state lock is not held while waiting on the broker.
func (m *Manager) Publish(topic string, payload []byte) error {
	m.mu.RLock()
	state, transport := m.state, m.transport
	m.mu.RUnlock()

	if state != StateConnected || transport == nil {
		return ErrNotConnected
	}
	if err := transport.Publish(topic, payload); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return err
	}
	return nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the state is connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Status returns a snapshot of the connection.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		State:       m.state,
		BrokerIndex: m.active,
		Attempts:    m.attempts,
	}
	if m.active >= 0 {
		b := m.opts.Brokers[m.active]
		st.Broker = b.Label()
		st.Host = b.Host
		st.Port = b.Port
		since := m.connectedAt
		st.ConnectedSince = &since
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Brokers returns a copy of the registry.
func (m *Manager) Brokers() []config.BrokerConfig {
	out := make([]config.BrokerConfig, len(m.opts.Brokers))
	copy(out, m.opts.Brokers)
	return out
}

// HealthCheck returns ErrNotConnected unless connected.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close stops the loop and closes the live session.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() {
		m.seqMu.Lock()
		close(m.done)
		m.seqMu.Unlock()

		if m.cancel != nil {
			m.cancel()
			m.wg.Wait()
			return
		}
		m.teardown("shutdown")
		m.finish(ErrClosed)
	})
	return nil
}
