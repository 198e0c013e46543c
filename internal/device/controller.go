// Package device implements the tub controller that panels connect to: the
// thermostat, the light mood selection and the messages that report them.
package device

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stephens/tubpanel/internal/config"
	"github.com/stephens/tubpanel/internal/log"
	"github.com/stephens/tubpanel/internal/protocol"
	"github.com/stephens/tubpanel/internal/storage"
)

// Store persists settings and records events
type Store interface {
	GetSettings() (*storage.DeviceSettings, error)
	SaveSetpoint(setTemp int) error
	SaveLight(light, setTemp int) error
	LogEvent(source storage.EventSource, eventType storage.EventType, message string, details interface{}) error
}

// Broadcaster delivers a message to every connected panel
type Broadcaster interface {
	Broadcast(v interface{})
}

// Status is the controller snapshot served by the status API
type Status struct {
	Temp        float64   `json:"temp"`
	SetTemp     int       `json:"set_temp"`
	Min         int       `json:"min"`
	Max         int       `json:"max"`
	Heat        bool      `json:"heat"`
	Pump        bool      `json:"pump"`
	CoolingDown bool      `json:"cooling_down"`
	Circulating bool      `json:"circulating"`
	Light       int       `json:"light"`
	Mood        string    `json:"mood"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type event struct {
	source    storage.EventSource
	eventType storage.EventType
	message   string
	details   interface{}
}

// Controller owns the device state. It is safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	cfg    config.DeviceConfig
	store  Store
	out    Broadcaster
	thermo *Thermostat
	water  WaterModel
	now    Clock

	temp     float64
	setpoint int
	mood     int
	lastTick time.Time

	logger *log.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithClock overrides the controller's clock
func WithClock(now Clock) Option {
	return func(c *Controller) { c.now = now }
}

// NewController restores the persisted setpoint and mood and starts the thermostat
func NewController(cfg config.DeviceConfig, store Store, out Broadcaster, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:   cfg,
		store: store,
		out:   out,
		water: WaterModel{
			Ambient:  cfg.AmbientTemp,
			HeatRate: cfg.HeatRate,
			LossRate: cfg.LossRate,
		},
		now:      time.Now,
		temp:     cfg.StartTemp,
		setpoint: cfg.DefaultTemp,
		logger:   log.WithField("component", "controller"),
	}
	for _, opt := range opts {
		opt(c)
	}

	settings, err := store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings != nil {
		if c.inRange(settings.SetTemp) {
			c.setpoint = settings.SetTemp
		}
		if ValidMood(settings.Light) {
			c.mood = settings.Light
		}
	}

	c.thermo = NewThermostat(ThermostatConfig{
		DriftDegrees:        cfg.DriftDegrees,
		DriftTime:           cfg.DriftTime.Duration(),
		Cooldown:            cfg.Cooldown.Duration(),
		CirculationInterval: cfg.CirculationInterval.Duration(),
		CirculationRun:      cfg.CirculationRun.Duration(),
	}, c.now)
	c.lastTick = c.now()

	c.logger.Info("Controller ready: setpoint %d, mood %s", c.setpoint, MoodName(c.mood))
	return c, nil
}

// Greeting is what a newly connected panel receives, in order
func (c *Controller) Greeting() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []interface{}{c.defaults(), c.data(), c.lights()}
}

// HandleMessage applies one inbound panel message. Replies go back to the sender only.
func (c *Controller) HandleMessage(clientID string, data []byte) ([]interface{}, error) {
	var cmd protocol.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	var replies, broadcasts []interface{}
	var events []event

	c.mu.Lock()
	if sp, ok := cmd.Setpoint(); ok {
		if c.inRange(sp) {
			events = append(events, c.changeSetpoint(clientID, sp)...)
			broadcasts = append(broadcasts, c.data())
		} else {
			c.logger.Warn("Rejecting setpoint %d outside %d..%d", sp, c.cfg.MinTemp, c.cfg.MaxTemp)
			replies = append(replies, c.defaults())
		}
	}
	if cmd.Light != nil {
		if ValidMood(*cmd.Light) {
			events = append(events, c.changeMood(clientID, *cmd.Light)...)
			broadcasts = append(broadcasts, protocol.LightChanged{Light: c.mood})
		} else {
			c.logger.Warn("Rejecting light %d", *cmd.Light)
		}
	}
	if cmd.Refresh != 0 {
		replies = append(replies, c.defaults())
	}
	c.mu.Unlock()

	c.record(events)
	for _, msg := range broadcasts {
		c.out.Broadcast(msg)
	}
	return replies, nil
}

// Tick advances the water model, runs the thermostat and broadcasts the reading
func (c *Controller) Tick() {
	c.mu.Lock()
	now := c.now()
	heating := c.thermo.Heat
	c.temp = c.water.Next(c.temp, heating, now.Sub(c.lastTick))
	c.lastTick = now
	events := c.step()
	msg := c.data()
	c.mu.Unlock()

	c.record(events)
	c.out.Broadcast(msg)
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Temp:        protocol.RoundTenth(c.temp),
		SetTemp:     c.setpoint,
		Min:         c.cfg.MinTemp,
		Max:         c.cfg.MaxTemp,
		Heat:        c.thermo.Heat,
		Pump:        c.thermo.Pump,
		CoolingDown: c.thermo.CoolingDown(),
		Circulating: c.thermo.Circulating(),
		Light:       c.mood,
		Mood:        MoodName(c.mood),
		UpdatedAt:   c.lastTick,
	}
}

// changeSetpoint must be called with c.mu held
func (c *Controller) changeSetpoint(clientID string, sp int) []event {
	c.setpoint = sp
	if err := c.store.SaveSetpoint(sp); err != nil {
		c.logger.Error("Failed to save setpoint: %v", err)
	}
	c.thermo.ForceExpire()

	events := []event{{
		source:    storage.EventSourcePanel,
		eventType: storage.EventTypeSetpoint,
		message:   fmt.Sprintf("Setpoint changed to %d", sp),
		details:   map[string]interface{}{"client": clientID, "set_temp": sp},
	}}
	return append(events, c.step()...)
}

// changeMood must be called with c.mu held
func (c *Controller) changeMood(clientID string, mood int) []event {
	c.mood = mood
	if err := c.store.SaveLight(mood, c.setpoint); err != nil {
		c.logger.Error("Failed to save light: %v", err)
	}
	return []event{{
		source:    storage.EventSourcePanel,
		eventType: storage.EventTypeLight,
		message:   fmt.Sprintf("Light set to %s", MoodName(mood)),
		details:   map[string]interface{}{"client": clientID, "light": mood},
	}}
}

// step must be called with c.mu held
func (c *Controller) step() []event {
	heat, pump := c.thermo.Heat, c.thermo.Pump
	c.thermo.Step(c.temp, c.setpoint)

	var events []event
	details := map[string]interface{}{"temp": protocol.RoundTenth(c.temp), "set_temp": c.setpoint}
	if heat != c.thermo.Heat {
		events = append(events, event{
			source:    storage.EventSourceThermostat,
			eventType: storage.EventTypeHeat,
			message:   "Heat " + protocol.OnOff(c.thermo.Heat),
			details:   details,
		})
	}
	if pump != c.thermo.Pump {
		events = append(events, event{
			source:    storage.EventSourceThermostat,
			eventType: storage.EventTypePump,
			message:   "Pump " + protocol.OnOff(c.thermo.Pump),
			details:   details,
		})
	}
	return events
}

func (c *Controller) record(events []event) {
	for _, e := range events {
		c.logger.Info("%s", e.message)
		if err := c.store.LogEvent(e.source, e.eventType, e.message, e.details); err != nil {
			c.logger.Warn("Failed to log event: %v", err)
		}
	}
}

func (c *Controller) inRange(sp int) bool {
	return sp >= c.cfg.MinTemp && sp <= c.cfg.MaxTemp
}

func (c *Controller) defaults() protocol.Defaults {
	return protocol.Defaults{
		Type:    protocol.TypeDefaults,
		Max:     c.cfg.MaxTemp,
		Min:     c.cfg.MinTemp,
		SetTemp: c.setpoint,
	}
}

func (c *Controller) data() protocol.Data {
	return protocol.Data{
		Type:    protocol.TypeData,
		Temp:    protocol.RoundTenth(c.temp),
		SetTemp: c.setpoint,
		Pump:    protocol.OnOff(c.thermo.Pump),
		Heat:    protocol.OnOff(c.thermo.Heat),
	}
}

func (c *Controller) lights() protocol.Lights {
	return protocol.Lights{
		Colors: append([]string(nil), Moods...),
		Light:  c.mood,
	}
}
