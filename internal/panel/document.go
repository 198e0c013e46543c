package panel

// Element IDs the panel binds to
const (
	IDTemp         = "temp"
	IDSetTemp      = "set-temp"
	IDSetTemp2     = "set-temp2"
	IDPump         = "pump"
	IDHeat         = "heat"
	IDLight        = "light"
	IDAdjustTemp   = "adjust-temp"
	IDAdjustLight  = "adjust-light"
	IDRefreshTime  = "refresh-time"
	IDPlus         = "plus"
	IDMinus        = "minus"
	IDSubmitButton = "submit-button"
)

var elementIDs = []string{
	IDTemp, IDSetTemp, IDSetTemp2, IDPump, IDHeat, IDLight,
	IDAdjustTemp, IDAdjustLight, IDRefreshTime,
	IDPlus, IDMinus, IDSubmitButton,
}

// Element is one addressable display node
type Element struct {
	ID      string
	Text    string
	Value   string
	Min     string
	Max     string
	Options []string
}

// Document holds the fixed set of elements and counts writes to each
type Document struct {
	elements map[string]*Element
	writes   map[string]int
	dirty    bool
}

// NewDocument creates the element surface with its initial labels
func NewDocument() *Document {
	d := &Document{
		elements: make(map[string]*Element, len(elementIDs)),
		writes:   make(map[string]int, len(elementIDs)),
	}
	for _, id := range elementIDs {
		d.elements[id] = &Element{ID: id}
	}
	d.elements[IDPlus].Text = "+"
	d.elements[IDMinus].Text = "-"
	d.elements[IDSubmitButton].Text = "Submit"
	d.elements[IDAdjustTemp].Min = "40"
	d.elements[IDAdjustTemp].Max = "106"
	d.dirty = true
	return d
}

// Get returns a copy of the element, or false for an unknown ID
func (d *Document) Get(id string) (Element, bool) {
	el, ok := d.elements[id]
	if !ok {
		return Element{}, false
	}
	cp := *el
	cp.Options = append([]string(nil), el.Options...)
	return cp, true
}

// Text returns the element's text content
func (d *Document) Text(id string) string {
	if el, ok := d.elements[id]; ok {
		return el.Text
	}
	return ""
}

// Value returns the element's control value
func (d *Document) Value(id string) string {
	if el, ok := d.elements[id]; ok {
		return el.Value
	}
	return ""
}

func (d *Document) SetText(id, text string) {
	d.write(id, func(el *Element) { el.Text = text })
}

func (d *Document) SetValue(id, value string) {
	d.write(id, func(el *Element) { el.Value = value })
}

func (d *Document) SetMin(id, min string) {
	d.write(id, func(el *Element) { el.Min = min })
}

func (d *Document) SetMax(id, max string) {
	d.write(id, func(el *Element) { el.Max = max })
}

func (d *Document) SetOptions(id string, options []string) {
	d.write(id, func(el *Element) { el.Options = append([]string(nil), options...) })
}

func (d *Document) write(id string, fn func(*Element)) {
	el, ok := d.elements[id]
	if !ok {
		return
	}
	fn(el)
	d.writes[id]++
	d.dirty = true
}

// Writes returns how many times the element was written since the last ResetWrites
func (d *Document) Writes(id string) int {
	return d.writes[id]
}

// WrittenIDs lists every element written since the last ResetWrites
func (d *Document) WrittenIDs() []string {
	var ids []string
	for _, id := range elementIDs {
		if d.writes[id] > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResetWrites clears the write counters
func (d *Document) ResetWrites() {
	d.writes = make(map[string]int, len(elementIDs))
}

// TakeDirty reports whether anything changed since the last call and clears the flag
func (d *Document) TakeDirty() bool {
	dirty := d.dirty
	d.dirty = false
	return dirty
}
