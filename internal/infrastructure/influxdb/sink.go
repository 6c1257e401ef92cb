package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/iotbed/telemetry-bridge/internal/store"
)

// Measurement is the InfluxDB measurement readings are written to.
const Measurement = "telemetry"

// WriteReading queues one reading for the next batch. Dropped silently
// when the client is closed.
func (c *Client) WriteReading(channel store.Channel, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(c.source, channel, value, at))
}

// readingPoint builds telemetry,source=<source>,channel=<channel> value=<v> <at>.
func readingPoint(source string, channel store.Channel, value float64, at time.Time) *write.Point {
	tags := map[string]string{"channel": string(channel)}
	if source != "" {
		tags["source"] = source
	}
	return write.NewPoint(
		Measurement,
		tags,
		map[string]interface{}{"value": value},
		at,
	)
}
