package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotbed/telemetry-bridge/internal/audit"
	"github.com/iotbed/telemetry-bridge/internal/connection"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/logging"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/mqtt"
	"github.com/iotbed/telemetry-bridge/internal/store"
)

type published struct {
	topic   string
	payload string
}

type fakeTransport struct {
	mu        sync.Mutex
	handler   mqtt.MessageHandler
	topics    []string
	published []published
}

func (t *fakeTransport) Publish(topic string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, published{topic, string(payload)})
	return nil
}

func (t *fakeTransport) Subscribe(topics []string, handler mqtt.MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topics = topics
	t.handler = handler
	return nil
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) deliver(topic, payload string) error {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	return h(topic, []byte(payload))
}

func (t *fakeTransport) sent() []published {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]published(nil), t.published...)
}

type fakeDialer struct {
	transport *fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, _ config.BrokerConfig, _ func(error)) (connection.Transport, error) {
	return d.transport, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")
	cfg.InfluxDB.Enabled = false
	return cfg
}

func startBridge(t *testing.T) (*Bridge, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b, err := New(ctx, testConfig(t), Options{
		Dialer:  &fakeDialer{transport: transport},
		Logger:  logging.Discard(),
		Version: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, b.Close()) })

	require.NoError(t, b.Start(ctx))

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, b.WaitConnected(waitCtx))
	return b, transport
}

func serve(b *Bridge, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)
	return w
}

func TestClientID(t *testing.T) {
	id := ClientID("smartlight")
	assert.True(t, strings.HasPrefix(id, "smartlight_"))
	assert.NotEqual(t, id, ClientID("smartlight"))
	assert.True(t, strings.HasPrefix(ClientID(""), "telemetry_bridge_"))
}

func TestBridge_SubscribesConfiguredTopics(t *testing.T) {
	b, transport := startBridge(t)
	transport.mu.Lock()
	topics := transport.topics
	transport.mu.Unlock()

	assert.Equal(t, b.cfg.Topics.All(), topics)
	assert.Equal(t, connection.StateConnected, b.Manager().State())
}

func TestBridge_IngestsToStore(t *testing.T) {
	b, transport := startBridge(t)

	require.NoError(t, transport.deliver(b.cfg.Topics.Brightness, "128"))
	require.NoError(t, transport.deliver(b.cfg.Topics.State, `{"state":"ON","brightness":128}`))

	assert.Eventually(t, func() bool {
		st := b.Store().CurrentState()
		return st.PowerState == store.PowerOn && st.Brightness == 128
	}, 2*time.Second, 10*time.Millisecond)

	w := serve(b, http.MethodGet, "/api/brightness", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"channel":"brightness"`)
}

func TestBridge_CommandRoundTripIsAudited(t *testing.T) {
	b, transport := startBridge(t)

	w := serve(b, http.MethodPost, "/api/brightness", `{"brightness":64}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sent := transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, published{b.cfg.Topics.Brightness, "64"}, sent[0])

	assert.Eventually(t, func() bool {
		w := serve(b, http.MethodGet, "/api/commands", "")
		if w.Code != http.StatusOK {
			return false
		}
		var res audit.ListResult
		if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
			return false
		}
		return res.Total == 1 && res.Commands[0].Payload == "64"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBridge_MetricsExposed(t *testing.T) {
	b, _ := startBridge(t)
	w := serve(b, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `telemetry_bridge_connection_state{state="connected"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestBridge_HealthCheck(t *testing.T) {
	b, _ := startBridge(t)
	assert.NoError(t, b.HealthCheck(context.Background()))
}
