// Package influxdb mirrors numeric telemetry readings into InfluxDB v2.
//
// The bridge's own history is the bounded in-memory store; this package is
// an optional long-term copy. Client satisfies the ingest Sink interface:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Bridge.Name)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteReading(store.ChannelTemperature, 21.5, time.Now())
//
// Each reading becomes one point in the "telemetry" measurement tagged
// with channel and source. Writes are non-blocking and batched according
// to batch_size and flush_interval; write failures are delivered to the
// SetOnError callback.
package influxdb
