package device

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephens/tubpanel/internal/config"
	"github.com/stephens/tubpanel/internal/protocol"
	"github.com/stephens/tubpanel/internal/storage"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.January, 5, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeStore struct {
	mu        sync.Mutex
	settings  *storage.DeviceSettings
	getErr    error
	setpoints []int
	lights    []int
	events    []storage.EventType
	messages  []string
}

func (s *fakeStore) GetSettings() (*storage.DeviceSettings, error) {
	return s.settings, s.getErr
}

func (s *fakeStore) SaveSetpoint(v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setpoints = append(s.setpoints, v)
	return nil
}

func (s *fakeStore) SaveLight(light, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, light)
	return nil
}

func (s *fakeStore) LogEvent(_ storage.EventSource, t storage.EventType, msg string, _ interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, t)
	s.messages = append(s.messages, msg)
	return nil
}

type fakeBroadcaster struct {
	sent []interface{}
}

func (b *fakeBroadcaster) Broadcast(v interface{}) {
	b.sent = append(b.sent, v)
}

func testThermostatConfig() ThermostatConfig {
	return ThermostatConfig{
		DriftDegrees:        1,
		DriftTime:           5 * time.Minute,
		Cooldown:            10 * time.Minute,
		CirculationInterval: 4 * time.Hour,
		CirculationRun:      30 * time.Minute,
	}
}

func TestTimer(t *testing.T) {
	clock := newFakeClock()
	timer := NewTimer(time.Minute, clock.Now)

	assert.False(t, timer.Expired())
	clock.Advance(59 * time.Second)
	assert.False(t, timer.Expired())
	clock.Advance(time.Second)
	assert.True(t, timer.Expired())

	timer.Reset()
	assert.False(t, timer.Expired())
	assert.Equal(t, time.Duration(0), timer.Elapsed())

	timer.ForceExpire()
	assert.True(t, timer.Expired())
	assert.Equal(t, time.Minute, timer.Elapsed())
}

func TestThermostat_HeatCycle(t *testing.T) {
	clock := newFakeClock()
	th := NewThermostat(testThermostatConfig(), clock.Now)
	assert.True(t, th.Pump)
	assert.False(t, th.Heat)

	th.Step(95, 100)
	assert.False(t, th.Heat, "heat waits for the drift timer")

	clock.Advance(5 * time.Minute)
	th.Step(95, 100)
	assert.True(t, th.Heat)
	assert.True(t, th.Pump)

	clock.Advance(time.Minute)
	th.Step(102, 100)
	assert.True(t, th.Heat, "hot drift timer still running")

	clock.Advance(5 * time.Minute)
	th.Step(102, 100)
	assert.False(t, th.Heat)
	assert.True(t, th.Pump, "pump runs through the element cooldown")
	assert.True(t, th.CoolingDown())

	clock.Advance(10 * time.Minute)
	th.Step(102, 100)
	assert.False(t, th.Pump)
	assert.False(t, th.CoolingDown())
}

func TestThermostat_StaysOffInsideBand(t *testing.T) {
	clock := newFakeClock()
	th := NewThermostat(testThermostatConfig(), clock.Now)

	for i := 0; i < 10; i++ {
		clock.Advance(time.Minute)
		th.Step(99.5, 100)
		assert.False(t, th.Heat)
	}
}

func TestThermostat_Circulation(t *testing.T) {
	clock := newFakeClock()
	th := NewThermostat(testThermostatConfig(), clock.Now)
	th.Pump = false

	th.Step(100, 100)
	assert.False(t, th.Pump)

	clock.Advance(4 * time.Hour)
	th.Step(100, 100)
	assert.True(t, th.Pump)
	assert.True(t, th.Circulating())

	clock.Advance(29 * time.Minute)
	th.Step(100, 100)
	assert.True(t, th.Pump)

	clock.Advance(time.Minute)
	th.Step(100, 100)
	assert.False(t, th.Pump)
	assert.False(t, th.Circulating())
}

func TestThermostat_ForceExpireReactsImmediately(t *testing.T) {
	clock := newFakeClock()
	th := NewThermostat(testThermostatConfig(), clock.Now)

	th.ForceExpire()
	th.Step(95, 100)
	assert.True(t, th.Heat)
}

func TestWaterModel(t *testing.T) {
	m := WaterModel{Ambient: 60, HeatRate: 0.5, LossRate: 0.01}

	assert.Equal(t, 100.0, m.Next(100, true, 0))

	heated := m.Next(100, true, 10*time.Minute)
	cooled := m.Next(100, false, 10*time.Minute)
	assert.Greater(t, heated, 100.0)
	assert.Less(t, cooled, 100.0)
	assert.InDelta(t, 96.0, cooled, 1e-9)

	assert.Equal(t, 60.0, m.Next(100, false, 1000*time.Hour))
}

func TestMoods(t *testing.T) {
	assert.Len(t, Moods, 13)
	assert.Equal(t, "Light OFF", Moods[0])
	assert.Equal(t, "Yellow", MoodName(4))
	assert.True(t, ValidMood(12))
	assert.False(t, ValidMood(13))
	assert.Equal(t, "", MoodName(-1))
}

func newTestController(t *testing.T, store *fakeStore, mutate ...func(*config.DeviceConfig)) (*Controller, *fakeBroadcaster, *fakeClock) {
	t.Helper()
	cfg := config.DefaultConfig().Device
	for _, fn := range mutate {
		fn(&cfg)
	}
	clock := newFakeClock()
	out := &fakeBroadcaster{}
	c, err := NewController(cfg, store, out, WithClock(clock.Now))
	require.NoError(t, err)
	return c, out, clock
}

func TestController_GreetingOrder(t *testing.T) {
	store := &fakeStore{settings: &storage.DeviceSettings{SetTemp: 102, Light: 4}}
	c, _, _ := newTestController(t, store)

	greeting := c.Greeting()
	require.Len(t, greeting, 3)

	defaults, ok := greeting[0].(protocol.Defaults)
	require.True(t, ok)
	assert.Equal(t, protocol.Defaults{Type: "defaults", Max: 106, Min: 40, SetTemp: 102}, defaults)

	data, ok := greeting[1].(protocol.Data)
	require.True(t, ok)
	assert.Equal(t, "data", data.Type)
	assert.Equal(t, 102, data.SetTemp)
	assert.Equal(t, "ON", data.Pump)
	assert.Equal(t, "OFF", data.Heat)

	lights, ok := greeting[2].(protocol.Lights)
	require.True(t, ok)
	assert.Equal(t, 4, lights.Light)
	assert.Equal(t, Moods, lights.Colors)
}

func TestController_DefaultsWithoutSavedSettings(t *testing.T) {
	c, _, _ := newTestController(t, &fakeStore{})
	s := c.Status()
	assert.Equal(t, 100, s.SetTemp)
	assert.Equal(t, 0, s.Light)
	assert.Equal(t, "Light OFF", s.Mood)
}

func TestController_IgnoresOutOfRangeSavedSetpoint(t *testing.T) {
	c, _, _ := newTestController(t, &fakeStore{settings: &storage.DeviceSettings{SetTemp: 500, Light: 99}})
	s := c.Status()
	assert.Equal(t, 100, s.SetTemp)
	assert.Equal(t, 0, s.Light)
}

func TestController_StoreError(t *testing.T) {
	cfg := config.DefaultConfig().Device
	_, err := NewController(cfg, &fakeStore{getErr: errors.New("disk gone")}, &fakeBroadcaster{})
	assert.Error(t, err)
}

func TestController_SetTempPersistsAndBroadcasts(t *testing.T) {
	for _, msg := range []string{`{"set_temp":103}`, `{"setTemp":103}`} {
		t.Run(msg, func(t *testing.T) {
			store := &fakeStore{}
			c, out, _ := newTestController(t, store)

			replies, err := c.HandleMessage("client-1", []byte(msg))
			require.NoError(t, err)
			assert.Empty(t, replies)
			assert.Equal(t, []int{103}, store.setpoints)
			assert.Contains(t, store.events, storage.EventTypeSetpoint)

			require.NotEmpty(t, out.sent)
			data, ok := out.sent[len(out.sent)-1].(protocol.Data)
			require.True(t, ok)
			assert.Equal(t, 103, data.SetTemp)
			assert.Equal(t, 103, c.Status().SetTemp)
		})
	}
}

func TestController_SetTempTurnsHeatOnImmediately(t *testing.T) {
	store := &fakeStore{}
	c, out, _ := newTestController(t, store, func(cfg *config.DeviceConfig) { cfg.StartTemp = 95 })

	_, err := c.HandleMessage("client-1", []byte(`{"set_temp":104}`))
	require.NoError(t, err)

	assert.True(t, c.Status().Heat)
	data := out.sent[len(out.sent)-1].(protocol.Data)
	assert.Equal(t, "ON", data.Heat)
	assert.Contains(t, store.messages, "Heat ON")
}

func TestController_RejectsOutOfRangeSetpoint(t *testing.T) {
	store := &fakeStore{}
	c, out, _ := newTestController(t, store)

	replies, err := c.HandleMessage("client-1", []byte(`{"set_temp":150}`))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.IsType(t, protocol.Defaults{}, replies[0])
	assert.Empty(t, store.setpoints)
	assert.Empty(t, out.sent)
}

func TestController_Light(t *testing.T) {
	store := &fakeStore{}
	c, out, _ := newTestController(t, store)

	_, err := c.HandleMessage("client-1", []byte(`{"light":3}`))
	require.NoError(t, err)
	assert.Equal(t, []int{3}, store.lights)
	assert.Equal(t, []interface{}{protocol.LightChanged{Light: 3}}, out.sent)

	_, err = c.HandleMessage("client-1", []byte(`{"light":42}`))
	require.NoError(t, err)
	assert.Equal(t, []int{3}, store.lights)
	assert.Len(t, out.sent, 1)
}

func TestController_Refresh(t *testing.T) {
	c, out, _ := newTestController(t, &fakeStore{})

	replies, err := c.HandleMessage("client-1", []byte(`{"refresh":1}`))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{protocol.Defaults{Type: "defaults", Max: 106, Min: 40, SetTemp: 100}}, replies)
	assert.Empty(t, out.sent)
}

func TestController_InvalidMessage(t *testing.T) {
	c, _, _ := newTestController(t, &fakeStore{})
	_, err := c.HandleMessage("client-1", []byte(`{"set_temp":`))
	assert.Error(t, err)
}

func TestController_TickBroadcastsData(t *testing.T) {
	store := &fakeStore{}
	c, out, clock := newTestController(t, store, func(cfg *config.DeviceConfig) { cfg.StartTemp = 95 })

	clock.Advance(5 * time.Minute)
	c.Tick()

	require.Len(t, out.sent, 1)
	data := out.sent[0].(protocol.Data)
	assert.Equal(t, "data", data.Type)
	assert.Equal(t, "ON", data.Heat)
	assert.Less(t, data.Temp, 95.0)
	assert.Contains(t, store.events, storage.EventTypeHeat)
	assert.Equal(t, clock.Now(), c.Status().UpdatedAt)
}
