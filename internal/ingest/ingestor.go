package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/logging"
	"github.com/iotbed/telemetry-bridge/internal/metrics"
	"github.com/iotbed/telemetry-bridge/internal/store"
)

const defaultQueueSize = 256

// Logger is the subset of logging.Logger the ingestor uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sink mirrors readings to long-term storage. Implementations must not block.
type Sink interface {
	WriteReading(channel store.Channel, value float64, at time.Time)
}

// Notifier fans applied updates out to live subscribers. Must not block.
type Notifier interface {
	Broadcast(channel string, payload any)
}

// NotifyChannel is the live feed channel updates are broadcast on.
const NotifyChannel = "telemetry.update"

// Event is what the Notifier receives after each applied message.
type Event struct {
	Topic    string                 `json:"topic"`
	Kind     Kind                   `json:"kind"`
	State    store.DeviceState      `json:"state"`
	Readings []store.ChannelReading `json:"readings,omitempty"`
	At       time.Time              `json:"at"`
}

// Options configures an Ingestor.
type Options struct {
	Topics    config.TopicsConfig
	QueueSize int
	Sink      Sink
	Notifier  Notifier
	Logger    Logger
	Metrics   *metrics.Metrics
}

// Stats counts messages by outcome.
type Stats struct {
	Received  uint64 `json:"received"`
	Applied   uint64 `json:"applied"`
	Malformed uint64 `json:"malformed"`
	Unknown   uint64 `json:"unknown"`
	Queued    int    `json:"queued"`
}

type inbound struct {
	topic   string
	payload []byte
	at      time.Time
}

// Ingestor turns broker deliveries into store updates.
//
// Enqueue is called from the transport's delivery goroutines and only
// copies the message onto a bounded queue. Run drains the queue on a
// single goroutine, so messages are applied one at a time in delivery
// order. A full queue blocks Enqueue, pushing back on the transport.
type Ingestor struct {
	table    TopicTable
	store    *store.Store
	sink     Sink
	notifier Notifier
	logger   Logger
	metrics  *metrics.Metrics

	queue chan inbound
	done  chan struct{}
	once  sync.Once

	received  atomic.Uint64
	applied   atomic.Uint64
	malformed atomic.Uint64
	unknown   atomic.Uint64

	now func() time.Time
}

// New creates an Ingestor that writes into st.
func New(st *store.Store, opts Options) *Ingestor {
	size := opts.QueueSize
	if size < 1 {
		size = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Ingestor{
		table:    NewTopicTable(opts.Topics),
		store:    st,
		sink:     opts.Sink,
		notifier: opts.Notifier,
		logger:   logger,
		metrics:  opts.Metrics,
		queue:    make(chan inbound, size),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Enqueue queues one delivery. It blocks while the queue is full and
// returns ErrClosed once the ingestor has stopped. The payload is copied.
func (i *Ingestor) Enqueue(topic string, payload []byte) error {
	msg := inbound{
		topic:   topic,
		payload: append([]byte(nil), payload...),
		at:      i.now(),
	}
	select {
	case <-i.done:
		return ErrClosed
	default:
	}
	select {
	case i.queue <- msg:
		i.metrics.SetQueueDepth(len(i.queue))
		return nil
	case <-i.done:
		return ErrClosed
	}
}

// Run applies queued messages until ctx is cancelled or Close is called.
func (i *Ingestor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			i.Close()
			return ctx.Err()
		case <-i.done:
			return nil
		case msg := <-i.queue:
			i.metrics.SetQueueDepth(len(i.queue))
			_ = i.handle(msg.topic, msg.payload, msg.at)
		}
	}
}

// Close stops Run and rejects further Enqueue calls.
func (i *Ingestor) Close() {
	i.once.Do(func() { close(i.done) })
}

// Handle decodes and applies one message synchronously. Unknown topics
// return ErrUnknownTopic and malformed payloads ErrMalformedPayload; in
// both cases the store is untouched.
func (i *Ingestor) Handle(topic string, payload []byte) error {
	return i.handle(topic, payload, i.now())
}

func (i *Ingestor) handle(topic string, payload []byte, at time.Time) error {
	i.received.Add(1)

	kind, ok := i.table.Lookup(topic)
	if !ok {
		i.unknown.Add(1)
		i.metrics.IncMessages("unknown", "ignored")
		i.logger.Debug("ignoring message on unknown topic", "topic", topic)
		return ErrUnknownTopic
	}

	msg, err := Decode(kind, payload)
	if err != nil {
		i.malformed.Add(1)
		i.metrics.IncMessages(string(kind), "malformed")
		i.logger.Warn("dropping malformed message",
			"topic", topic,
			"kind", kind,
			"error", err,
		)
		return err
	}

	update := msg.Update()
	update.At = at
	if err := i.store.Apply(update); err != nil {
		i.metrics.IncMessages(string(kind), "rejected")
		i.logger.Error("store rejected update", "topic", topic, "error", err)
		return err
	}
	i.applied.Add(1)
	i.metrics.IncMessages(string(kind), "applied")

	// Fan-out happens after the store lock is released.
	i.mirror(update.Readings, at)
	i.notify(topic, kind, update.Readings, at)
	return nil
}

func (i *Ingestor) mirror(readings []store.ChannelReading, at time.Time) {
	if i.sink == nil {
		return
	}
	for _, r := range readings {
		i.sink.WriteReading(r.Channel, r.Value, at)
	}
}

func (i *Ingestor) notify(topic string, kind Kind, readings []store.ChannelReading, at time.Time) {
	if i.notifier == nil {
		return
	}
	i.notifier.Broadcast(NotifyChannel, Event{
		Topic:    topic,
		Kind:     kind,
		State:    i.store.CurrentState(),
		Readings: readings,
		At:       at,
	})
}

// HandleMessage adapts Enqueue to the transport's handler signature.
func (i *Ingestor) HandleMessage(topic string, payload []byte) error {
	if err := i.Enqueue(topic, payload); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// Stats returns message counters.
func (i *Ingestor) Stats() Stats {
	return Stats{
		Received:  i.received.Load(),
		Applied:   i.applied.Load(),
		Malformed: i.malformed.Load(),
		Unknown:   i.unknown.Load(),
		Queued:    len(i.queue),
	}
}
