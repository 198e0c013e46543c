package storage

import (
	"encoding/json"
	"time"
)

// DeviceSettings is the persisted controller configuration. There is only ever one row.
type DeviceSettings struct {
	SetTemp   int       `json:"set_temp"`
	Light     int       `json:"light"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventSource represents the source of an event
type EventSource string

const (
	EventSourcePanel      EventSource = "panel"
	EventSourceThermostat EventSource = "thermostat"
	EventSourceSystem     EventSource = "system"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeSetpoint   EventType = "setpoint"
	EventTypeLight      EventType = "light"
	EventTypeHeat       EventType = "heat"
	EventTypePump       EventType = "pump"
	EventTypeConnection EventType = "connection"
	EventTypeError      EventType = "error"
	EventTypeInfo       EventType = "info"
)

// EventLog represents a log entry
type EventLog struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Source    EventSource     `json:"source"`
	EventType EventType       `json:"event_type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// EventLogFilter for querying events
type EventLogFilter struct {
	Source    *EventSource
	EventType *EventType
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}
