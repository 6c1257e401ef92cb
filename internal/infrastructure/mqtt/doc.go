// Package mqtt is the bridge's transport: one paho client per broker
// profile, with bounded connect/publish waits and panic-safe handlers.
//
// The package deliberately knows nothing about failover. Connect dials a
// single config.BrokerConfig (tcp:// or ssl:// with TLS 1.2+) and the
// returned Client reports a dropped link once through the onLost callback.
// The connection manager owns the decision of what to dial next.
//
// Usage:
//
//	opts := mqtt.OptionsFromConfig(cfg.MQTT, "telemetry_bridge_1234")
//	client, err := mqtt.Connect(ctx, cfg.Brokers[0], opts, onLost)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.Topics.All(), func(topic string, payload []byte) error {
//	    return ingestor.Enqueue(topic, payload)
//	})
//
//	err = client.Publish("home/smartlight/command", []byte("ON"))
package mqtt
