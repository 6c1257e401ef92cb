package connection

import (
	"context"

	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/mqtt"
)

// Transport is one live broker session.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topics []string, handler mqtt.MessageHandler) error
	Close() error
}

// Dialer opens a Transport for one broker profile. onLost must be called
// at most once, when an established session drops.
type Dialer interface {
	Dial(ctx context.Context, broker config.BrokerConfig, onLost func(error)) (Transport, error)
}

// MQTTDialer dials brokers with the paho-backed mqtt package.
type MQTTDialer struct {
	Options mqtt.Options
	Logger  mqtt.Logger
}

// Dial implements Dialer.
func (d MQTTDialer) Dial(ctx context.Context, broker config.BrokerConfig, onLost func(error)) (Transport, error) {
	client, err := mqtt.Connect(ctx, broker, d.Options, onLost)
	if err != nil {
		return nil, err
	}
	if d.Logger != nil {
		client.SetLogger(d.Logger)
	}
	return client, nil
}
