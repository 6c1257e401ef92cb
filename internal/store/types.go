package store

import (
	"fmt"
	"time"
)

// Channel names a numeric telemetry stream with bounded history.
type Channel string

// Known channels. Each one owns its own ring buffer.
const (
	ChannelBrightness  Channel = "brightness"
	ChannelAmbient     Channel = "ambient"
	ChannelMotion      Channel = "motion"
	ChannelTemperature Channel = "temperature"
	ChannelHumidity    Channel = "humidity"
)

// Channels lists every channel in display order.
var Channels = []Channel{
	ChannelBrightness,
	ChannelAmbient,
	ChannelMotion,
	ChannelTemperature,
	ChannelHumidity,
}

// ParseChannel validates a channel name.
func ParseChannel(name string) (Channel, error) {
	for _, ch := range Channels {
		if string(ch) == name {
			return ch, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

// PowerState is the light's on/off state.
type PowerState string

const (
	PowerOn  PowerState = "ON"
	PowerOff PowerState = "OFF"
)

// Valid reports whether p is ON or OFF.
func (p PowerState) Valid() bool {
	return p == PowerOn || p == PowerOff
}

// Color is an RGB triple, each component 0-255.
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Valid reports whether every component is within 0-255.
func (c Color) Valid() bool {
	return inByte(c.R) && inByte(c.G) && inByte(c.B)
}

func inByte(v int) bool {
	return v >= 0 && v <= 255
}

// Reading is one timestamped sample on a channel.
type Reading struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceState is the latest known state of the device.
type DeviceState struct {
	PowerState     PowerState `json:"state"`
	Brightness     int        `json:"brightness"`
	Color          Color      `json:"color"`
	AmbientLight   float64    `json:"ambient_light"`
	MotionDetected bool       `json:"motion_detected"`
	Temperature    float64    `json:"temperature"`
	Humidity       float64    `json:"humidity"`
	LastUpdated    time.Time  `json:"last_updated"`
}

// StatePatch updates individual DeviceState fields. Nil fields are left alone.
type StatePatch struct {
	PowerState     *PowerState
	Brightness     *int
	Color          *Color
	AmbientLight   *float64
	MotionDetected *bool
	Temperature    *float64
	Humidity       *float64
}

func (p StatePatch) empty() bool {
	return p.PowerState == nil && p.Brightness == nil && p.Color == nil &&
		p.AmbientLight == nil && p.MotionDetected == nil &&
		p.Temperature == nil && p.Humidity == nil
}

// ChannelReading pairs a channel with one value to append.
type ChannelReading struct {
	Channel Channel
	Value   float64
}

// Update is everything one inbound message changes. Apply commits it
// under a single write lock so readers see all of it or none of it.
type Update struct {
	// Replace swaps the whole DeviceState (full state message).
	Replace *DeviceState
	// Patch edits individual fields after Replace, if any.
	Patch StatePatch
	// Readings are appended to their channel buffers in order.
	Readings []ChannelReading
	// Status keys are upserted into the device status map.
	Status map[string]any
	// Command records the last payload seen on the command topic.
	Command *string
	// At is the receive time. Zero means time.Now().
	At time.Time
}

// Snapshot is a deep copy of the store at one instant.
type Snapshot struct {
	State        DeviceState           `json:"state"`
	History      map[Channel][]Reading `json:"history"`
	DeviceStatus map[string]any        `json:"device_status"`
	LastCommand  string                `json:"last_command,omitempty"`
	LastUpdate   time.Time             `json:"last_update"`
}
