// Package panel mirrors the tub controller's state into a fixed set of display
// elements and turns user adjustments into outbound messages.
//
// A Panel is not safe for concurrent use. Every call is expected to run on the
// event loop.
package panel

import (
	"time"

	"github.com/stephens/tubpanel/internal/log"
)

// Variant selects which outbound message shapes the panel speaks
type Variant string

const (
	// VariantEnvelope talks to the current firmware: {"set_temp":v} followed by {"refresh":1}
	VariantEnvelope Variant = "envelope"
	// VariantFlat talks to the older firmware: {"setTemp":v}
	VariantFlat Variant = "flat"
)

// ParseVariant maps a config string to a Variant, defaulting to envelope
func ParseVariant(s string) Variant {
	if Variant(s) == VariantFlat {
		return VariantFlat
	}
	return VariantEnvelope
}

// Default adjustment bounds until the controller says otherwise
const (
	DefaultMin = 40
	DefaultMax = 106
)

// Sender transmits an outbound message
type Sender interface {
	Send(v interface{}) error
}

// Settings is the last state confirmed by the controller
type Settings struct {
	Temp    float64
	SetTemp int
	Min     int
	Max     int
	Heat    string
	Pump    string
	Light   int
	Colors  []string
}

// Panel owns the settings and the document they are reflected into
type Panel struct {
	doc      *Document
	settings Settings
	sender   Sender
	variant  Variant
	now      func() time.Time
	logger   *log.Logger
}

// Option configures a Panel
type Option func(*Panel)

// WithClock overrides the clock used for the refresh timestamp
func WithClock(now func() time.Time) Option {
	return func(p *Panel) { p.now = now }
}

// WithVariant selects the outbound protocol variant
func WithVariant(v Variant) Option {
	return func(p *Panel) { p.variant = v }
}

// New creates a panel that sends through sender
func New(sender Sender, opts ...Option) *Panel {
	p := &Panel{
		doc: NewDocument(),
		settings: Settings{
			Min:   DefaultMin,
			Max:   DefaultMax,
			Light: -1,
		},
		sender:  sender,
		variant: VariantEnvelope,
		now:     time.Now,
		logger:  log.WithField("component", "panel"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Document returns the element surface
func (p *Panel) Document() *Document {
	return p.doc
}

// Settings returns a copy of the confirmed settings
func (p *Panel) Settings() Settings {
	s := p.settings
	s.Colors = append([]string(nil), p.settings.Colors...)
	return s
}

// Variant returns the outbound protocol variant
func (p *Panel) Variant() Variant {
	return p.variant
}
