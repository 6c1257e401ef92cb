package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotbed/telemetry-bridge/internal/audit"
	"github.com/iotbed/telemetry-bridge/internal/connection"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/mqtt"
	"github.com/iotbed/telemetry-bridge/internal/metrics"
	"github.com/iotbed/telemetry-bridge/internal/store"
)

type sent struct {
	topic   string
	payload string
}

type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	err       error
	sent      []sent
}

func (b *fakeBroker) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, sent{topic: topic, payload: string(payload)})
	return nil
}

func (b *fakeBroker) IsConnected() bool { return b.connected }

func (b *fakeBroker) Status() connection.Status {
	return connection.Status{State: connection.StateConnected, Broker: "local"}
}

type fakeState struct{ state store.DeviceState }

func (s fakeState) CurrentState() store.DeviceState { return s.state }

type fakeRecorder struct {
	entries []*audit.CommandLog
	err     error
}

func (r *fakeRecorder) Create(_ context.Context, entry *audit.CommandLog) error {
	r.entries = append(r.entries, entry)
	return r.err
}

func testTopics() config.TopicsConfig {
	return config.TopicsConfig{
		Command:    "home/smartlight/command",
		Brightness: "home/smartlight/brightness",
		Color:      "home/smartlight/color",
	}
}

func newTestPublisher(b *fakeBroker, power store.PowerState) (*Publisher, *fakeRecorder) {
	rec := &fakeRecorder{}
	p := NewPublisher(b, fakeState{state: store.DeviceState{PowerState: power}}, Options{
		Topics:   testTopics(),
		Recorder: rec,
	})
	return p, rec
}

func TestPublishCommand(t *testing.T) {
	b := &fakeBroker{connected: true}
	p, rec := newTestPublisher(b, store.PowerOff)

	require.NoError(t, p.PublishCommand(context.Background(), "ON"))
	require.Len(t, b.sent, 1)
	assert.Equal(t, sent{topic: "home/smartlight/command", payload: "ON"}, b.sent[0])

	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.KindCommand, rec.entries[0].Kind)
	assert.Equal(t, audit.ResultSuccess, rec.entries[0].Result)
	assert.Equal(t, "local", rec.entries[0].Broker)
}

func TestNotConnected_SendsNothing(t *testing.T) {
	b := &fakeBroker{connected: false}
	p, rec := newTestPublisher(b, store.PowerOn)
	ctx := context.Background()

	assert.ErrorIs(t, p.PublishCommand(ctx, "ON"), ErrNotConnected)
	assert.ErrorIs(t, p.SetBrightness(ctx, 128), ErrNotConnected)
	assert.ErrorIs(t, p.SetColor(ctx, store.Color{R: 1, G: 2, B: 3}), ErrNotConnected)
	assert.ErrorIs(t, p.Publish(ctx, "any/topic", "x"), ErrNotConnected)
	_, err := p.ToggleLight(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.Empty(t, b.sent)
	require.Len(t, rec.entries, 5)
	for _, e := range rec.entries {
		assert.Equal(t, audit.ResultNotConnected, e.Result)
	}
}

func TestNotConnected_CheckedBeforeValidation(t *testing.T) {
	p, _ := newTestPublisher(&fakeBroker{}, store.PowerOff)
	assert.ErrorIs(t, p.SetBrightness(context.Background(), 999), ErrNotConnected)
}

func TestSetBrightness(t *testing.T) {
	b := &fakeBroker{connected: true}
	p, _ := newTestPublisher(b, store.PowerOff)

	require.NoError(t, p.SetBrightness(context.Background(), 128))
	require.Len(t, b.sent, 1)
	assert.Equal(t, "home/smartlight/brightness", b.sent[0].topic)
	assert.Equal(t, "128", b.sent[0].payload)
}

func TestSetBrightness_OutOfRange(t *testing.T) {
	b := &fakeBroker{connected: true}
	p, rec := newTestPublisher(b, store.PowerOff)

	for _, v := range []int{-1, 256} {
		assert.ErrorIs(t, p.SetBrightness(context.Background(), v), ErrInvalidBrightness)
	}
	assert.Empty(t, b.sent)
	assert.Empty(t, rec.entries)
}

func TestSetColor(t *testing.T) {
	b := &fakeBroker{connected: true}
	p, _ := newTestPublisher(b, store.PowerOff)

	require.NoError(t, p.SetColor(context.Background(), store.Color{R: 255, G: 0, B: 0}))
	require.Len(t, b.sent, 1)
	assert.Equal(t, "home/smartlight/color", b.sent[0].topic)
	assert.JSONEq(t, `{"r":255,"g":0,"b":0}`, b.sent[0].payload)

	assert.ErrorIs(t, p.SetColor(context.Background(), store.Color{R: 300}), ErrInvalidColor)
	assert.Len(t, b.sent, 1)
}

func TestToggleLight(t *testing.T) {
	tests := []struct {
		name  string
		power store.PowerState
		want  string
	}{
		{"on turns off", store.PowerOn, "OFF"},
		{"off turns on", store.PowerOff, "ON"},
		{"unknown turns on", "", "ON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroker{connected: true}
			p, _ := newTestPublisher(b, tt.power)

			got, err := p.ToggleLight(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.Len(t, b.sent, 1)
			assert.Equal(t, tt.want, b.sent[0].payload)
		})
	}
}

func TestPublish_Raw(t *testing.T) {
	b := &fakeBroker{connected: true}
	p, rec := newTestPublisher(b, store.PowerOff)

	require.NoError(t, p.Publish(context.Background(), "home/other/topic", "hello"))
	assert.Equal(t, sent{topic: "home/other/topic", payload: "hello"}, b.sent[0])
	assert.Equal(t, audit.KindRaw, rec.entries[0].Kind)

	assert.ErrorIs(t, p.Publish(context.Background(), "", "hello"), ErrEmptyCommand)
}

func TestEmptyCommand(t *testing.T) {
	p, _ := newTestPublisher(&fakeBroker{connected: true}, store.PowerOff)
	assert.ErrorIs(t, p.PublishCommand(context.Background(), ""), ErrEmptyCommand)
}

func TestTopicNotConfigured(t *testing.T) {
	b := &fakeBroker{connected: true}
	p := NewPublisher(b, fakeState{}, Options{Topics: config.TopicsConfig{Command: "c"}})

	assert.ErrorIs(t, p.SetBrightness(context.Background(), 10), ErrTopicNotConfigured)
	assert.Empty(t, b.sent)
}

func TestPublishErrorsSurface(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantResult string
	}{
		{"timeout", mqtt.ErrPublishTimeout, audit.ResultTimeout},
		{"failed", errors.Join(mqtt.ErrPublishFailed, errors.New("broken pipe")), audit.ResultFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroker{connected: true, err: tt.err}
			p, rec := newTestPublisher(b, store.PowerOff)

			err := p.PublishCommand(context.Background(), "ON")
			assert.ErrorIs(t, err, tt.err)
			require.Len(t, rec.entries, 1)
			assert.Equal(t, tt.wantResult, rec.entries[0].Result)
			assert.NotEmpty(t, rec.entries[0].Error)
		})
	}
}

func TestRecorderFailureDoesNotFailPublish(t *testing.T) {
	b := &fakeBroker{connected: true}
	rec := &fakeRecorder{err: errors.New("disk full")}
	p := NewPublisher(b, fakeState{}, Options{Topics: testTopics(), Recorder: rec})

	assert.NoError(t, p.PublishCommand(context.Background(), "ON"))
	assert.Len(t, b.sent, 1)
}

func TestPublishMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)

	b := &fakeBroker{connected: true}
	p := NewPublisher(b, fakeState{}, Options{Topics: testTopics(), Metrics: m})
	require.NoError(t, p.PublishCommand(context.Background(), "ON"))

	b.connected = false
	assert.Error(t, p.PublishCommand(context.Background(), "OFF"))

	expected := `
# HELP telemetry_bridge_publishes_total Outbound command publishes by result.
# TYPE telemetry_bridge_publishes_total counter
telemetry_bridge_publishes_total{result="not_connected"} 1
telemetry_bridge_publishes_total{result="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "telemetry_bridge_publishes_total"))
}
