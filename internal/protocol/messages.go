// Package protocol defines the JSON messages exchanged between the panel and the tub controller.
package protocol

import (
	"math"
	"net/url"
)

// SocketPath is the only endpoint the controller serves its socket on
const SocketPath = "/ws"

// Envelope types sent by the controller
const (
	TypeData     = "data"
	TypeDefaults = "defaults"
)

// Status strings used for heat and pump
const (
	StatusOn  = "ON"
	StatusOff = "OFF"
)

// SocketURL derives the socket URL from the device host, e.g. "hottub.local" -> "ws://hottub.local/ws"
func SocketURL(host string) string {
	u := url.URL{Scheme: "ws", Host: host, Path: SocketPath}
	return u.String()
}

// --- Panel -> controller ---

// SetTempFlat requests a new setpoint (flat variant)
type SetTempFlat struct {
	SetTemp int `json:"setTemp"`
}

// SetTemp requests a new setpoint (envelope variant)
type SetTemp struct {
	SetTemp int `json:"set_temp"`
}

// Light selects a light mood by index
type Light struct {
	Light int `json:"light"`
}

// Refresh asks the controller to resend its defaults
type Refresh struct {
	Refresh int `json:"refresh"`
}

// RefreshRequest is the canonical refresh message
var RefreshRequest = Refresh{Refresh: 1}

// Command is the union of everything a panel may send. Absent keys stay nil/zero.
type Command struct {
	SetTemp      *int `json:"setTemp,omitempty"`
	SetTempSnake *int `json:"set_temp,omitempty"`
	Light        *int `json:"light,omitempty"`
	Refresh      int  `json:"refresh,omitempty"`
}

// Setpoint returns the requested setpoint from either spelling. A zero value counts as absent.
func (c Command) Setpoint() (int, bool) {
	if c.SetTempSnake != nil && *c.SetTempSnake != 0 {
		return *c.SetTempSnake, true
	}
	if c.SetTemp != nil && *c.SetTemp != 0 {
		return *c.SetTemp, true
	}
	return 0, false
}

// --- Controller -> panel ---

// Data carries the live readings
type Data struct {
	Type    string  `json:"type"`
	Temp    float64 `json:"temp"`
	SetTemp int     `json:"setTemp"`
	Pump    string  `json:"pump"`
	Heat    string  `json:"heat"`
}

// Defaults carries the adjustment range and current setpoint
type Defaults struct {
	Type    string `json:"type"`
	Max     int    `json:"max"`
	Min     int    `json:"min"`
	SetTemp int    `json:"setTemp"`
}

// Lights carries the mood list and the current selection. Colors must precede light.
type Lights struct {
	Colors []string `json:"colors"`
	Light  int      `json:"light"`
}

// LightChanged announces a new mood selection
type LightChanged struct {
	Light int `json:"light"`
}

// OnOff renders a boolean as "ON"/"OFF"
func OnOff(v bool) string {
	if v {
		return StatusOn
	}
	return StatusOff
}

// RoundTenth rounds a temperature to one decimal place
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
