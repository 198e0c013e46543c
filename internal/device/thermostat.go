package device

import "time"

// ThermostatConfig holds the hysteresis and pump timings
type ThermostatConfig struct {
	DriftDegrees        float64
	DriftTime           time.Duration
	Cooldown            time.Duration
	CirculationInterval time.Duration
	CirculationRun      time.Duration
}

// Thermostat drives the heater and pump relays.
//
// Heat turns on once the water has stayed DriftDegrees below the setpoint for
// DriftTime, and off once it has stayed DriftDegrees above it for DriftTime.
// The pump keeps running for Cooldown after the heater stops. When the pump has
// been idle for CirculationInterval it runs for CirculationRun.
type Thermostat struct {
	cfg ThermostatConfig

	cold     *Timer
	hot      *Timer
	cooldown *Timer
	pump     *Timer

	coolingDown bool
	circulating bool

	Heat bool
	Pump bool
}

// NewThermostat starts with the heater off and the pump on
func NewThermostat(cfg ThermostatConfig, now Clock) *Thermostat {
	return &Thermostat{
		cfg:      cfg,
		cold:     NewTimer(cfg.DriftTime, now),
		hot:      NewTimer(cfg.DriftTime, now),
		cooldown: NewTimer(cfg.Cooldown, now),
		pump:     NewTimer(cfg.CirculationInterval, now),
		Pump:     true,
	}
}

// ForceExpire skips the drift wait so the next Step reacts to a new setpoint immediately
func (t *Thermostat) ForceExpire() {
	t.cold.ForceExpire()
	t.hot.ForceExpire()
}

// CoolingDown reports whether the pump is running out the element cooldown
func (t *Thermostat) CoolingDown() bool {
	return t.coolingDown
}

// Circulating reports whether the pump is on for a circulation run
func (t *Thermostat) Circulating() bool {
	return t.circulating
}

// Step evaluates the relays against the current reading
func (t *Thermostat) Step(current float64, setpoint int) {
	sp := float64(setpoint)

	// too cold
	if current > sp-t.cfg.DriftDegrees {
		t.cold.Reset()
	} else if !t.Heat && t.cold.Expired() {
		t.Pump = true
		t.Heat = true
	}

	// too hot
	if current < sp+t.cfg.DriftDegrees && t.Heat {
		t.hot.Reset()
	} else if t.Heat && t.hot.Expired() {
		t.cooldown.Reset()
		t.coolingDown = true
		t.Heat = false
	} else if t.coolingDown && t.cooldown.Expired() {
		t.coolingDown = false
		t.circulating = false
		t.pump.Reset()
		t.Pump = false
	}

	// circulation
	if t.Pump && !t.circulating {
		t.pump.Reset()
	} else if !t.circulating && t.pump.Expired() {
		t.circulating = true
		t.Pump = true
	} else if t.circulating && !t.Heat && !t.coolingDown &&
		t.pump.Elapsed() >= t.cfg.CirculationInterval+t.cfg.CirculationRun {
		t.circulating = false
		t.Pump = false
		t.pump.Reset()
	}
}
