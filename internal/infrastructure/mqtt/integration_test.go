//go:build integration

package mqtt

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_MessageRoundtrip(t *testing.T) {
	broker := config.BrokerConfig{Host: "127.0.0.1", Port: 1883}
	opts := testOptions()
	opts.ClientID = "telemetry-bridge-int-roundtrip"
	opts.ConnectTimeout = 5 * time.Second

	client, err := Connect(context.Background(), broker, opts, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	topic := "telemetry-bridge/int/roundtrip"
	err = client.Subscribe([]string{topic}, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(topic, []byte("ON")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "ON" {
			t.Errorf("received %q, want %q", got, "ON")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestIntegration_DeliveryOrderPreserved(t *testing.T) {
	broker := config.BrokerConfig{Host: "127.0.0.1", Port: 1883}
	topic := "telemetry-bridge/int/order"
	const total = 2000

	subOpts := testOptions()
	subOpts.ClientID = "telemetry-bridge-int-order-sub"
	subOpts.ConnectTimeout = 5 * time.Second
	sub, err := Connect(context.Background(), broker, subOpts, nil)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	received := make(chan int, total)
	err = sub.Subscribe([]string{topic}, func(_ string, payload []byte) error {
		n, err := strconv.Atoi(string(payload))
		if err != nil {
			return err
		}
		received <- n
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	pubOpts := testOptions()
	pubOpts.ClientID = "telemetry-bridge-int-order-pub"
	pubOpts.QoS = 0
	pubOpts.ConnectTimeout = 5 * time.Second
	pub, err := Connect(context.Background(), broker, pubOpts, nil)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	for i := 0; i < total; i++ {
		if err := pub.Publish(topic, []byte(strconv.Itoa(i))); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
	}

	deadline := time.After(10 * time.Second)
	outOfPosition := 0
	for i := 0; i < total; i++ {
		select {
		case n := <-received:
			if n != i {
				outOfPosition++
			}
		case <-deadline:
			t.Fatalf("received %d of %d messages before timeout", i, total)
		}
	}
	if outOfPosition != 0 {
		t.Errorf("%d of %d messages arrived out of order", outOfPosition, total)
	}
}
