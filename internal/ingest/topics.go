package ingest

import (
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
)

// Kind says how a topic's payload is decoded.
type Kind string

const (
	KindState       Kind = "state"
	KindData        Kind = "data"
	KindCommand     Kind = "command"
	KindBrightness  Kind = "brightness"
	KindColor       Kind = "color"
	KindAmbient     Kind = "ambient"
	KindMotion      Kind = "motion"
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindStatus      Kind = "status"
)

// TopicTable maps exact topic strings to kinds. Built once at startup.
type TopicTable map[string]Kind

// NewTopicTable builds the table from config. Empty topics are skipped;
// if two kinds share a topic the first one listed wins.
func NewTopicTable(t config.TopicsConfig) TopicTable {
	entries := []struct {
		topic string
		kind  Kind
	}{
		{t.State, KindState},
		{t.Data, KindData},
		{t.Command, KindCommand},
		{t.Brightness, KindBrightness},
		{t.Color, KindColor},
		{t.Ambient, KindAmbient},
		{t.Motion, KindMotion},
		{t.Temperature, KindTemperature},
		{t.Humidity, KindHumidity},
		{t.Status, KindStatus},
	}
	table := make(TopicTable, len(entries))
	for _, e := range entries {
		if e.topic == "" {
			continue
		}
		if _, exists := table[e.topic]; !exists {
			table[e.topic] = e.kind
		}
	}
	return table
}

// Lookup returns the kind for topic.
func (t TopicTable) Lookup(topic string) (Kind, bool) {
	k, ok := t[topic]
	return k, ok
}
