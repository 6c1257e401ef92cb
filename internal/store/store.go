package store

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// Store holds the device's current state, bounded per-channel history and
// the device status map. One RWMutex guards all of it; no I/O happens
// while it is held.
type Store struct {
	mu           sync.RWMutex
	capacity     int
	state        DeviceState
	history      map[Channel]*ring
	deviceStatus map[string]any
	lastCommand  string
	lastUpdate   time.Time
	now          func() time.Time
}

// New creates an empty store whose channels each keep at most maxReadings.
func New(maxReadings int) *Store {
	if maxReadings < 1 {
		maxReadings = 1
	}
	s := &Store{
		capacity:     maxReadings,
		state:        DeviceState{PowerState: PowerOff},
		history:      make(map[Channel]*ring, len(Channels)),
		deviceStatus: make(map[string]any),
		now:          time.Now,
	}
	for _, ch := range Channels {
		s.history[ch] = newRing(maxReadings)
	}
	return s
}

// Capacity returns the per-channel history bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// Apply commits an update atomically.
func (s *Store) Apply(u Update) error {
	for _, r := range u.Readings {
		if _, ok := s.history[r.Channel]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownChannel, r.Channel)
		}
	}

	at := u.At
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Replace != nil {
		s.state = *u.Replace
	}
	s.patch(u.Patch)
	if u.Replace != nil || !u.Patch.empty() {
		s.state.LastUpdated = at
	}
	for _, r := range u.Readings {
		s.history[r.Channel].push(Reading{Value: r.Value, Timestamp: at})
	}
	maps.Copy(s.deviceStatus, u.Status)
	if u.Command != nil {
		s.lastCommand = *u.Command
	}
	s.lastUpdate = at
	return nil
}

func (s *Store) patch(p StatePatch) {
	if p.PowerState != nil {
		s.state.PowerState = *p.PowerState
	}
	if p.Brightness != nil {
		s.state.Brightness = *p.Brightness
	}
	if p.Color != nil {
		s.state.Color = *p.Color
	}
	if p.AmbientLight != nil {
		s.state.AmbientLight = *p.AmbientLight
	}
	if p.MotionDetected != nil {
		s.state.MotionDetected = *p.MotionDetected
	}
	if p.Temperature != nil {
		s.state.Temperature = *p.Temperature
	}
	if p.Humidity != nil {
		s.state.Humidity = *p.Humidity
	}
}

// AppendReading adds one reading to a channel, evicting the oldest when full.
func (s *Store) AppendReading(ch Channel, value float64, ts time.Time) error {
	return s.Apply(Update{
		Readings: []ChannelReading{{Channel: ch, Value: value}},
		At:       ts,
	})
}

// Clear empties every history buffer. Current state and device status stay.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.history {
		r.reset()
	}
}

// CurrentState returns a copy of the device state.
func (s *Store) CurrentState() DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// History returns a copy of one channel's readings, oldest first.
func (s *Store) History(ch Channel) ([]Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.history[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return r.items(), nil
}

// DeviceStatus returns a deep copy of the device status map.
func (s *Store) DeviceStatus() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.deviceStatus)
}

// Counts returns the number of readings held per channel.
func (s *Store) Counts() map[Channel]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Channel]int, len(s.history))
	for ch, r := range s.history {
		out[ch] = r.len()
	}
	return out
}

// LastUpdate returns the receive time of the last applied message.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Snapshot returns a consistent deep copy of everything in the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make(map[Channel][]Reading, len(s.history))
	for ch, r := range s.history {
		history[ch] = r.items()
	}
	return Snapshot{
		State:        s.state,
		History:      history,
		DeviceStatus: cloneMap(s.deviceStatus),
		LastCommand:  s.lastCommand,
		LastUpdate:   s.lastUpdate,
	}
}

// cloneMap deep-copies decoded JSON values (nested maps and slices).
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
