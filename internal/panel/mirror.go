package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stephens/tubpanel/internal/protocol"
)

// ErrUnknownField is returned by ApplyUpdate for keys that are not settable
var ErrUnknownField = errors.New("unknown field")

// RefreshTimeFormat is the layout of the refresh-time element
const RefreshTimeFormat = "3:04:05 PM   Jan 2, 2006"

// Merge applies every settable key of an inbound JSON object, in the order sent.
// Unknown keys are skipped. A value that cannot be decoded is logged and skipped.
func (p *Panel) Merge(data []byte) error {
	fields, err := protocol.DecodeObject(data)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if err := p.ApplyUpdate(f.Key, f.Value); err != nil {
			if errors.Is(err, ErrUnknownField) {
				continue
			}
			p.logger.Debug("Ignoring %s: %v", f.Key, err)
		}
	}
	return nil
}

// ApplyUpdate sets one field and writes the elements that display it
func (p *Panel) ApplyUpdate(field string, raw json.RawMessage) error {
	switch field {
	case "temp":
		v, err := decodeNumber(raw)
		if err != nil {
			return fmt.Errorf("temp: %w", err)
		}
		p.setTemp(v)
	case "setTemp":
		v, err := decodeNumber(raw)
		if err != nil {
			return fmt.Errorf("setTemp: %w", err)
		}
		p.setSetpoint(int(v))
	case "colors":
		var colors []string
		if err := json.Unmarshal(raw, &colors); err != nil {
			return fmt.Errorf("colors: %w", err)
		}
		p.setColors(colors)
	case "light":
		v, err := decodeNumber(raw)
		if err != nil {
			return fmt.Errorf("light: %w", err)
		}
		p.setLight(int(v))
	case "heat":
		p.settings.Heat = decodeStatus(raw)
		p.doc.SetText(IDHeat, p.settings.Heat)
	case "pump":
		p.settings.Pump = decodeStatus(raw)
		p.doc.SetText(IDPump, p.settings.Pump)
	case "min":
		v, err := decodeNumber(raw)
		if err != nil {
			return fmt.Errorf("min: %w", err)
		}
		p.settings.Min = int(v)
		p.doc.SetMin(IDAdjustTemp, strconv.Itoa(p.settings.Min))
	case "max":
		v, err := decodeNumber(raw)
		if err != nil {
			return fmt.Errorf("max: %w", err)
		}
		p.settings.Max = int(v)
		p.doc.SetMax(IDAdjustTemp, strconv.Itoa(p.settings.Max))
	default:
		return ErrUnknownField
	}
	return nil
}

func (p *Panel) setTemp(v float64) {
	p.doc.SetText(IDTemp, FormatTemp(v))
	p.doc.SetText(IDRefreshTime, p.now().Format(RefreshTimeFormat))
	p.settings.Temp = v
}

func (p *Panel) setSetpoint(v int) {
	if v == p.settings.SetTemp {
		return
	}
	s := strconv.Itoa(v)
	p.doc.SetText(IDSetTemp, s)
	p.doc.SetText(IDSetTemp2, s)
	p.doc.SetValue(IDAdjustTemp, s)
	p.settings.SetTemp = v
}

func (p *Panel) setColors(colors []string) {
	p.doc.SetOptions(IDAdjustLight, colors)
	p.doc.SetValue(IDAdjustLight, lightValue(p.settings.Light))
	p.settings.Colors = append([]string(nil), colors...)
}

func (p *Panel) setLight(v int) {
	if v == p.settings.Light {
		return
	}
	p.doc.SetValue(IDAdjustLight, lightValue(v))
	p.doc.SetText(IDLight, p.lightText(v))
	p.settings.Light = v
}

func (p *Panel) lightText(v int) string {
	if v == 0 {
		return protocol.StatusOff
	}
	if v > 0 && v < len(p.settings.Colors) {
		return p.settings.Colors[v]
	}
	return strconv.Itoa(v)
}

func lightValue(v int) string {
	if v < 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// FormatTemp shows whole numbers with one decimal place and everything else as is
func FormatTemp(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decodeNumber accepts a JSON number or a numeric string
func decodeNumber(raw json.RawMessage) (float64, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %s", raw)
	}
}

// decodeStatus maps 0, false, null, "" and "OFF" to OFF and anything else to ON
func decodeStatus(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return protocol.StatusOff
	}
	switch s := v.(type) {
	case nil:
		return protocol.StatusOff
	case float64:
		return protocol.OnOff(s != 0)
	case bool:
		return protocol.OnOff(s)
	case string:
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "", "0", "OFF", "FALSE":
			return protocol.StatusOff
		}
		return protocol.StatusOn
	default:
		return protocol.StatusOn
	}
}
