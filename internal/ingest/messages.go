package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iotbed/telemetry-bridge/internal/store"
)

// Message is a decoded inbound payload. Each variant knows the store
// update it produces.
type Message interface {
	Kind() Kind
	Update() store.Update
}

// StateMessage is a full device state report. It replaces the current
// state wholesale; fields absent from the payload become zero values.
type StateMessage struct {
	State         store.DeviceState
	HasBrightness bool
	HasAmbient    bool
	HasMotion     bool
}

// WeatherData is the weather station's structured record.
type WeatherData struct {
	Temperature *float64
	Humidity    *float64
	Status      map[string]any
}

// ScalarReading is a single numeric sample on one channel.
type ScalarReading struct {
	Channel store.Channel
	Value   float64
}

// MotionReading is a motion sensor sample.
type MotionReading struct {
	Detected bool
}

// ColorMessage sets the light's colour.
type ColorMessage struct {
	Color store.Color
}

// StatusMessage carries device status keys.
type StatusMessage struct {
	Fields map[string]any
}

// CommandEcho is a command observed on the command topic.
type CommandEcho struct {
	Command string
}

func (StateMessage) Kind() Kind    { return KindState }
func (WeatherData) Kind() Kind     { return KindData }
func (m ScalarReading) Kind() Kind { return Kind(m.Channel) }
func (MotionReading) Kind() Kind   { return KindMotion }
func (ColorMessage) Kind() Kind    { return KindColor }
func (StatusMessage) Kind() Kind   { return KindStatus }
func (CommandEcho) Kind() Kind     { return KindCommand }

func (m StateMessage) Update() store.Update {
	state := m.State
	u := store.Update{Replace: &state}
	if m.HasBrightness {
		u.Readings = append(u.Readings, store.ChannelReading{Channel: store.ChannelBrightness, Value: float64(state.Brightness)})
	}
	if m.HasAmbient {
		u.Readings = append(u.Readings, store.ChannelReading{Channel: store.ChannelAmbient, Value: state.AmbientLight})
	}
	if m.HasMotion {
		u.Readings = append(u.Readings, store.ChannelReading{Channel: store.ChannelMotion, Value: boolValue(state.MotionDetected)})
	}
	return u
}

func (m WeatherData) Update() store.Update {
	u := store.Update{Status: m.Status}
	if m.Temperature != nil {
		u.Patch.Temperature = m.Temperature
		u.Readings = append(u.Readings, store.ChannelReading{Channel: store.ChannelTemperature, Value: *m.Temperature})
	}
	if m.Humidity != nil {
		u.Patch.Humidity = m.Humidity
		u.Readings = append(u.Readings, store.ChannelReading{Channel: store.ChannelHumidity, Value: *m.Humidity})
	}
	return u
}

func (m ScalarReading) Update() store.Update {
	u := store.Update{Readings: []store.ChannelReading{{Channel: m.Channel, Value: m.Value}}}
	v := m.Value
	switch m.Channel {
	case store.ChannelBrightness:
		b := int(v)
		u.Patch.Brightness = &b
	case store.ChannelAmbient:
		u.Patch.AmbientLight = &v
	case store.ChannelTemperature:
		u.Patch.Temperature = &v
	case store.ChannelHumidity:
		u.Patch.Humidity = &v
	}
	return u
}

func (m MotionReading) Update() store.Update {
	detected := m.Detected
	return store.Update{
		Patch:    store.StatePatch{MotionDetected: &detected},
		Readings: []store.ChannelReading{{Channel: store.ChannelMotion, Value: boolValue(detected)}},
	}
}

func (m ColorMessage) Update() store.Update {
	c := m.Color
	return store.Update{Patch: store.StatePatch{Color: &c}}
}

func (m StatusMessage) Update() store.Update {
	return store.Update{Status: m.Fields}
}

func (m CommandEcho) Update() store.Update {
	cmd := m.Command
	return store.Update{Command: &cmd}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Decode turns a raw payload into the variant for kind. Any failure wraps
// ErrMalformedPayload.
func Decode(kind Kind, payload []byte) (Message, error) {
	switch kind {
	case KindState:
		return decodeState(payload)
	case KindData:
		return decodeWeatherData(payload)
	case KindBrightness:
		return decodeBrightness(payload)
	case KindAmbient, KindTemperature, KindHumidity:
		v, err := parseNumber(payload)
		if err != nil {
			return nil, err
		}
		return ScalarReading{Channel: store.Channel(kind), Value: v}, nil
	case KindMotion:
		return MotionReading{Detected: string(payload) == "1"}, nil
	case KindColor:
		return decodeColor(payload)
	case KindStatus:
		fields, err := decodeObject(payload)
		if err != nil {
			return nil, err
		}
		return StatusMessage{Fields: fields}, nil
	case KindCommand:
		return CommandEcho{Command: string(payload)}, nil
	default:
		return nil, fmt.Errorf("%w: no decoder for kind %q", ErrMalformedPayload, kind)
	}
}

type statePayload struct {
	State      *string         `json:"state"`
	Brightness *int            `json:"brightness"`
	Color      *store.Color    `json:"color"`
	Ambient    *float64        `json:"ambient"`
	Motion     *bool           `json:"motion"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

func decodeState(payload []byte) (Message, error) {
	var p statePayload
	if err := strictUnmarshal(payload, &p); err != nil {
		return nil, err
	}

	if p.State == nil {
		return nil, fmt.Errorf("%w: state field is required", ErrMalformedPayload)
	}
	power := store.PowerState(*p.State)
	if !power.Valid() {
		return nil, fmt.Errorf("%w: state must be ON or OFF, got %q", ErrMalformedPayload, *p.State)
	}

	msg := StateMessage{State: store.DeviceState{PowerState: power}}
	if p.Brightness != nil {
		if *p.Brightness < 0 || *p.Brightness > 255 {
			return nil, fmt.Errorf("%w: brightness %d out of range 0-255", ErrMalformedPayload, *p.Brightness)
		}
		msg.State.Brightness = *p.Brightness
		msg.HasBrightness = true
	}
	if p.Color != nil {
		if !p.Color.Valid() {
			return nil, fmt.Errorf("%w: color component out of range 0-255", ErrMalformedPayload)
		}
		msg.State.Color = *p.Color
	}
	if p.Ambient != nil {
		msg.State.AmbientLight = *p.Ambient
		msg.HasAmbient = true
	}
	if p.Motion != nil {
		msg.State.MotionDetected = *p.Motion
		msg.HasMotion = true
	}
	return msg, nil
}

var weatherStatusKeys = []string{"device_id", "timestamp", "ip", "status"}

func decodeWeatherData(payload []byte) (Message, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	var msg WeatherData
	if raw, ok := obj["temperature"]; ok {
		v, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: temperature is not numeric", ErrMalformedPayload)
		}
		msg.Temperature = &v
	}
	if raw, ok := obj["humidity"]; ok {
		v, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: humidity is not numeric", ErrMalformedPayload)
		}
		msg.Humidity = &v
	}
	for _, key := range weatherStatusKeys {
		if v, ok := obj[key]; ok {
			if msg.Status == nil {
				msg.Status = make(map[string]any, len(weatherStatusKeys))
			}
			msg.Status[key] = v
		}
	}
	return msg, nil
}

func decodeBrightness(payload []byte) (Message, error) {
	s := strings.TrimSpace(string(payload))
	b, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("%w: brightness %q is not an integer", ErrMalformedPayload, s)
	}
	if b < 0 || b > 255 {
		return nil, fmt.Errorf("%w: brightness %d out of range 0-255", ErrMalformedPayload, b)
	}
	return ScalarReading{Channel: store.ChannelBrightness, Value: float64(b)}, nil
}

func decodeColor(payload []byte) (Message, error) {
	var c struct {
		R *int `json:"r"`
		G *int `json:"g"`
		B *int `json:"b"`
	}
	if err := strictUnmarshal(payload, &c); err != nil {
		return nil, err
	}
	if c.R == nil || c.G == nil || c.B == nil {
		return nil, fmt.Errorf("%w: color requires r, g and b", ErrMalformedPayload)
	}
	color := store.Color{R: *c.R, G: *c.G, B: *c.B}
	if !color.Valid() {
		return nil, fmt.Errorf("%w: color component out of range 0-255", ErrMalformedPayload)
	}
	return ColorMessage{Color: color}, nil
}

func parseNumber(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMalformedPayload, s)
	}
	if !finite(v) {
		return 0, fmt.Errorf("%w: %q is not a finite number", ErrMalformedPayload, s)
	}
	return v, nil
}

func decodeObject(payload []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	return obj, nil
}

// strictUnmarshal rejects unknown fields and trailing data.
func strictUnmarshal(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", ErrMalformedPayload)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && finite(f)
	default:
		return 0, false
	}
}

// finite rejects NaN and ±Inf, which JSON cannot encode.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
