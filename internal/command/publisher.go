package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iotbed/telemetry-bridge/internal/audit"
	"github.com/iotbed/telemetry-bridge/internal/connection"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/logging"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/mqtt"
	"github.com/iotbed/telemetry-bridge/internal/metrics"
	"github.com/iotbed/telemetry-bridge/internal/store"
)

// Broker is the part of the connection manager the publisher needs.
type Broker interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
	Status() connection.Status
}

// StateReader gives access to the cached device state.
type StateReader interface {
	CurrentState() store.DeviceState
}

// Recorder persists issued commands. Optional.
type Recorder interface {
	Create(ctx context.Context, entry *audit.CommandLog) error
}

// Logger is the subset of logging.Logger the publisher uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Publisher.
type Options struct {
	Topics   config.TopicsConfig
	Recorder Recorder
	Logger   Logger
	Metrics  *metrics.Metrics
}

// Publisher sends device commands through the connection manager. Each
// call is one synchronous publish with no retry; the caller gets the
// transport's verdict.
type Publisher struct {
	broker   Broker
	state    StateReader
	topics   config.TopicsConfig
	recorder Recorder
	logger   Logger
	metrics  *metrics.Metrics
}

// NewPublisher creates a Publisher.
func NewPublisher(broker Broker, state StateReader, opts Options) *Publisher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Publisher{
		broker:   broker,
		state:    state,
		topics:   opts.Topics,
		recorder: opts.Recorder,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// PublishCommand sends cmd verbatim to the command topic.
func (p *Publisher) PublishCommand(ctx context.Context, cmd string) error {
	if !p.broker.IsConnected() {
		return p.reject(ctx, audit.KindCommand, p.topics.Command, cmd, ErrNotConnected)
	}
	if cmd == "" {
		return ErrEmptyCommand
	}
	return p.send(ctx, audit.KindCommand, p.topics.Command, cmd)
}

// SetBrightness sends value as a decimal string to the brightness topic.
func (p *Publisher) SetBrightness(ctx context.Context, value int) error {
	payload := strconv.Itoa(value)
	if !p.broker.IsConnected() {
		return p.reject(ctx, audit.KindBrightness, p.topics.Brightness, payload, ErrNotConnected)
	}
	if value < 0 || value > 255 {
		return fmt.Errorf("%w: got %d", ErrInvalidBrightness, value)
	}
	return p.send(ctx, audit.KindBrightness, p.topics.Brightness, payload)
}

// SetColor sends {"r":..,"g":..,"b":..} to the color topic.
func (p *Publisher) SetColor(ctx context.Context, c store.Color) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding color: %w", err)
	}
	payload := string(b)
	if !p.broker.IsConnected() {
		return p.reject(ctx, audit.KindColor, p.topics.Color, payload, ErrNotConnected)
	}
	if !c.Valid() {
		return ErrInvalidColor
	}
	return p.send(ctx, audit.KindColor, p.topics.Color, payload)
}

// ToggleLight sends "OFF" if the cached state is ON, otherwise "ON".
//
// The decision uses the last reported state, so two toggles racing a
// state update can both send the same command. It returns the command sent.
func (p *Publisher) ToggleLight(ctx context.Context) (string, error) {
	cmd := string(store.PowerOn)
	if p.state.CurrentState().PowerState == store.PowerOn {
		cmd = string(store.PowerOff)
	}
	if err := p.PublishCommand(ctx, cmd); err != nil {
		return "", err
	}
	return cmd, nil
}

// Publish sends message to an arbitrary topic.
func (p *Publisher) Publish(ctx context.Context, topic, message string) error {
	if !p.broker.IsConnected() {
		return p.reject(ctx, audit.KindRaw, topic, message, ErrNotConnected)
	}
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrEmptyCommand)
	}
	return p.send(ctx, audit.KindRaw, topic, message)
}

func (p *Publisher) send(ctx context.Context, kind, topic, payload string) error {
	if topic == "" {
		return fmt.Errorf("%w: %s", ErrTopicNotConfigured, kind)
	}

	err := p.broker.Publish(topic, []byte(payload))
	p.metrics.IncPublishes(resultLabel(err))
	p.record(ctx, kind, topic, payload, err)
	if err != nil {
		p.logger.Warn("command publish failed", "topic", topic, "kind", kind, "error", err)
		return err
	}
	p.logger.Info("command published", "topic", topic, "kind", kind)
	return nil
}

func (p *Publisher) reject(ctx context.Context, kind, topic, payload string, err error) error {
	p.metrics.IncPublishes(resultLabel(err))
	p.record(ctx, kind, topic, payload, err)
	return err
}

func (p *Publisher) record(ctx context.Context, kind, topic, payload string, err error) {
	if p.recorder == nil {
		return
	}
	entry := &audit.CommandLog{
		Kind:      kind,
		Topic:     topic,
		Payload:   payload,
		Result:    resultLabel(err),
		Broker:    p.broker.Status().Broker,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if rerr := p.recorder.Create(ctx, entry); rerr != nil {
		p.logger.Warn("failed to record command", "topic", topic, "error", rerr)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return audit.ResultSuccess
	case errors.Is(err, ErrNotConnected):
		return audit.ResultNotConnected
	case errors.Is(err, mqtt.ErrPublishTimeout):
		return audit.ResultTimeout
	default:
		return audit.ResultFailed
	}
}
