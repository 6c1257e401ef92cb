package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRing_EvictsOldestBeyondCapacity(t *testing.T) {
	s := New(100)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 150; i++ {
		require.NoError(t, s.AppendReading(ChannelBrightness, float64(i), base.Add(time.Duration(i)*time.Second)))
	}

	got, err := s.History(ChannelBrightness)
	require.NoError(t, err)
	require.Len(t, got, 100)
	assert.Equal(t, 51.0, got[0].Value)
	assert.Equal(t, 150.0, got[99].Value)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp), "readings out of order at %d", i)
	}
}

func TestRing_BoundNeverExceeded(t *testing.T) {
	for _, capacity := range []int{1, 3, 10} {
		s := New(capacity)
		for i := range capacity * 3 {
			require.NoError(t, s.AppendReading(ChannelAmbient, float64(i), time.Time{}))
			got, err := s.History(ChannelAmbient)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(got), capacity)
		}
	}
}

func TestApply_ReplaceAndReadings(t *testing.T) {
	s := New(10)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := s.Apply(Update{
		Replace: &DeviceState{
			PowerState:   PowerOn,
			Brightness:   200,
			Color:        Color{R: 255, G: 10, B: 0},
			AmbientLight: 412,
		},
		Readings: []ChannelReading{
			{Channel: ChannelBrightness, Value: 200},
			{Channel: ChannelAmbient, Value: 412},
		},
		At: at,
	})
	require.NoError(t, err)

	state := s.CurrentState()
	assert.Equal(t, PowerOn, state.PowerState)
	assert.Equal(t, 200, state.Brightness)
	assert.Equal(t, at, state.LastUpdated)
	assert.Equal(t, at, s.LastUpdate())

	counts := s.Counts()
	assert.Equal(t, 1, counts[ChannelBrightness])
	assert.Equal(t, 1, counts[ChannelAmbient])
	assert.Equal(t, 0, counts[ChannelMotion])
}

func TestApply_PatchLeavesOtherFields(t *testing.T) {
	s := New(10)
	require.NoError(t, s.Apply(Update{Replace: &DeviceState{PowerState: PowerOn, Brightness: 50}}))
	require.NoError(t, s.Apply(Update{Patch: StatePatch{Color: &Color{R: 1, G: 2, B: 3}}}))

	state := s.CurrentState()
	assert.Equal(t, PowerOn, state.PowerState)
	assert.Equal(t, 50, state.Brightness)
	assert.Equal(t, Color{R: 1, G: 2, B: 3}, state.Color)
}

func TestApply_UnknownChannelAppliesNothing(t *testing.T) {
	s := New(10)
	err := s.Apply(Update{
		Patch:    StatePatch{Brightness: ptr(99)},
		Readings: []ChannelReading{{Channel: "pressure", Value: 1}},
	})
	require.ErrorIs(t, err, ErrUnknownChannel)
	assert.Equal(t, 0, s.CurrentState().Brightness)
	assert.True(t, s.LastUpdate().IsZero())
}

func TestApply_StatusUpsertAndCommand(t *testing.T) {
	s := New(10)
	require.NoError(t, s.Apply(Update{Status: map[string]any{"device_id": "ws-1", "ip": "10.0.0.5"}}))
	require.NoError(t, s.Apply(Update{Status: map[string]any{"ip": "10.0.0.6"}, Command: ptr("ON")}))

	status := s.DeviceStatus()
	assert.Equal(t, "ws-1", status["device_id"])
	assert.Equal(t, "10.0.0.6", status["ip"])
	assert.Equal(t, "ON", s.Snapshot().LastCommand)
}

func TestDeviceStatus_ReturnsDeepCopy(t *testing.T) {
	s := New(10)
	require.NoError(t, s.Apply(Update{Status: map[string]any{
		"network": map[string]any{"rssi": -60.0},
	}}))

	copy1 := s.DeviceStatus()
	copy1["network"].(map[string]any)["rssi"] = 0.0
	copy1["extra"] = true

	copy2 := s.DeviceStatus()
	assert.Equal(t, -60.0, copy2["network"].(map[string]any)["rssi"])
	assert.NotContains(t, copy2, "extra")
}

func TestClear_EmptiesHistoryOnly(t *testing.T) {
	s := New(10)
	require.NoError(t, s.Apply(Update{
		Replace:  &DeviceState{PowerState: PowerOn, Brightness: 80},
		Readings: []ChannelReading{{Channel: ChannelBrightness, Value: 80}},
		Status:   map[string]any{"status": "online"},
	}))

	s.Clear()

	for _, ch := range Channels {
		got, err := s.History(ch)
		require.NoError(t, err)
		assert.Empty(t, got, "channel %s", ch)
	}
	assert.Equal(t, 80, s.CurrentState().Brightness)
	assert.Equal(t, "online", s.DeviceStatus()["status"])
}

func TestClear_ThenAppendStartsFresh(t *testing.T) {
	s := New(3)
	for i := range 5 {
		require.NoError(t, s.AppendReading(ChannelHumidity, float64(i), time.Time{}))
	}
	s.Clear()
	require.NoError(t, s.AppendReading(ChannelHumidity, 42, time.Time{}))

	got, err := s.History(ChannelHumidity)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42.0, got[0].Value)
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	s := New(10)
	require.NoError(t, s.AppendReading(ChannelTemperature, 21.5, time.Time{}))

	snap := s.Snapshot()
	snap.History[ChannelTemperature][0].Value = -1

	got, err := s.History(ChannelTemperature)
	require.NoError(t, err)
	assert.Equal(t, 21.5, got[0].Value)
}

func TestHistory_UnknownChannel(t *testing.T) {
	s := New(10)
	_, err := s.History("pressure")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("motion")
	require.NoError(t, err)
	assert.Equal(t, ChannelMotion, ch)

	_, err = ParseChannel("Motion")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

// Readers running against a writer must only ever see whole buffers of
// at most capacity entries whose values are strictly increasing.
func TestStore_ConcurrentAppendAndSnapshot(t *testing.T) {
	const capacity = 50
	s := New(capacity)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			_ = s.AppendReading(ChannelBrightness, float64(i), time.Time{})
			if i%500 == 0 {
				s.Clear()
			}
		}
		close(stop)
	}()

	errs := make(chan string, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				h := snap.History[ChannelBrightness]
				if len(h) > capacity {
					errs <- "buffer exceeded capacity"
					return
				}
				for i := 1; i < len(h); i++ {
					if h[i].Value <= h[i-1].Value {
						errs <- "torn or reordered buffer"
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}

func TestColorValid(t *testing.T) {
	assert.True(t, Color{R: 0, G: 128, B: 255}.Valid())
	assert.False(t, Color{R: 256}.Valid())
	assert.False(t, Color{B: -1}.Valid())
}
