package panel

import (
	"errors"
	"strconv"
	"strings"

	"github.com/stephens/tubpanel/internal/protocol"
)

// ErrLightOutOfRange is returned when a light index is not in the color list
var ErrLightOutOfRange = errors.New("light selection out of range")

// Plus raises the adjustment value by one if the result stays within bounds
func (p *Panel) Plus() {
	p.step(1)
}

// Minus lowers the adjustment value by one if the result stays within bounds
func (p *Panel) Minus() {
	p.step(-1)
}

func (p *Panel) step(delta int) {
	cur, ok := p.adjustValue()
	if !ok {
		return
	}
	candidate := cur + delta
	if !p.inRange(candidate) {
		return
	}
	p.doc.SetValue(IDAdjustTemp, strconv.Itoa(candidate))
}

// Edit replaces the adjustment input text, as typing would
func (p *Panel) Edit(text string) {
	p.doc.SetValue(IDAdjustTemp, text)
}

// Blur reverts the adjustment input to the confirmed setpoint when it is out of range or not a number
func (p *Panel) Blur() {
	v, ok := p.adjustValue()
	if ok && p.inRange(v) {
		return
	}
	p.doc.SetValue(IDAdjustTemp, strconv.Itoa(p.settings.SetTemp))
}

// Submit sends the adjustment value as the new setpoint. Out of range values send nothing.
func (p *Panel) Submit() error {
	v, ok := p.adjustValue()
	if !ok || !p.inRange(v) {
		p.logger.Debug("Not sending setpoint %q", p.doc.Value(IDAdjustTemp))
		return nil
	}

	if p.variant == VariantFlat {
		return p.send(protocol.SetTempFlat{SetTemp: v})
	}
	if err := p.send(protocol.SetTemp{SetTemp: v}); err != nil {
		return err
	}
	return p.send(protocol.RefreshRequest)
}

// SelectLight picks a light mood and sends it
func (p *Panel) SelectLight(i int) error {
	if i < 0 || (len(p.settings.Colors) > 0 && i >= len(p.settings.Colors)) {
		return ErrLightOutOfRange
	}
	p.doc.SetValue(IDAdjustLight, strconv.Itoa(i))
	return p.send(protocol.Light{Light: i})
}

// Refresh asks the controller to resend its defaults
func (p *Panel) Refresh() error {
	return p.send(protocol.RefreshRequest)
}

func (p *Panel) send(msg interface{}) error {
	p.logger.Debug("Sending: %+v", msg)
	return p.sender.Send(msg)
}

func (p *Panel) inRange(v int) bool {
	return v >= p.settings.Min && v <= p.settings.Max
}

// adjustValue parses the adjustment input the way a lenient integer parse would
func (p *Panel) adjustValue() (int, bool) {
	s := strings.TrimSpace(p.doc.Value(IDAdjustTemp))
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}
