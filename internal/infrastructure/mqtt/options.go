package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Options are the settings shared by every broker profile.
type Options struct {
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration
}

// OptionsFromConfig converts the mqtt config section, filling zero values
// with defaults.
func OptionsFromConfig(cfg config.MQTTConfig, clientID string) Options {
	opts := Options{
		ClientID:       clientID,
		QoS:            byte(cfg.QoS),
		ConnectTimeout: time.Duration(cfg.ConnectTimeout) * time.Second,
		PublishTimeout: time.Duration(cfg.PublishTimeout) * time.Second,
		KeepAlive:      time.Duration(cfg.KeepAlive) * time.Second,
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	return o
}

// brokerURL returns tcp:// or ssl:// depending on the profile.
func brokerURL(b config.BrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// buildClientOptions creates paho options for one broker profile.
//
// Paho's own reconnect logic is switched off: the connection manager
// decides which profile to try next, so a lost link must surface as a
// lost-connection callback rather than a silent retry against the same broker.
func buildClientOptions(b config.BrokerConfig, o Options) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(b))
	opts.SetClientID(o.ClientID)

	if b.Username != "" {
		opts.SetUsername(b.Username)
		opts.SetPassword(b.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(o.KeepAlive)
	// Order stays at paho's default (true): handlers run on the router
	// goroutine one message at a time, so deliveries reach the ingest
	// queue in arrival order.

	if b.TLS {
		tlsConfig, err := buildTLSConfig(b)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

func buildTLSConfig(b config.BrokerConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tlsMinVersion,
		InsecureSkipVerify: b.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed testbed brokers
	}
	if b.CAFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(b.CAFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA file: %w", ErrTLSConfig, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrTLSConfig, b.CAFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}
