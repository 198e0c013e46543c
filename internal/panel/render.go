package panel

import (
	"io"
	"text/template"
)

const clearScreen = "\033[H\033[2J"

var screenTemplate = template.Must(template.New("screen").Parse(`{{.Clear}}Hot Tub
  Temperature  {{or .Temp "--"}}°F     Set  {{or .SetTemp "--"}}°F
  Heat  {{or .Heat "--"}}   Pump  {{or .Pump "--"}}   Light  {{or .Light "--"}}

  Adjust  [{{.Min}}..{{.Max}}]  {{.Adjust}}   (+ / - / set <n> / submit, target {{or .SetTemp2 "--"}})
{{- if .Options}}
  Moods{{range $i, $o := .Options}}
    {{if eq (printf "%d" $i) $.Selected}}>{{else}} {{end}} {{$i}}  {{$o}}{{end}}
{{- end}}

  Updated  {{or .RefreshTime "never"}}
`))

type screen struct {
	Clear       string
	Temp        string
	SetTemp     string
	SetTemp2    string
	Heat        string
	Pump        string
	Light       string
	Min         string
	Max         string
	Adjust      string
	Options     []string
	Selected    string
	RefreshTime string
}

// Renderer paints the document to a terminal
type Renderer struct {
	out   io.Writer
	clear bool
}

// NewRenderer creates a renderer. clear prefixes each frame with an ANSI clear-screen.
func NewRenderer(out io.Writer, clear bool) *Renderer {
	return &Renderer{out: out, clear: clear}
}

// Render writes one frame
func (r *Renderer) Render(doc *Document) error {
	adjust, _ := doc.Get(IDAdjustTemp)
	lights, _ := doc.Get(IDAdjustLight)

	s := screen{
		Temp:        doc.Text(IDTemp),
		SetTemp:     doc.Text(IDSetTemp),
		SetTemp2:    doc.Text(IDSetTemp2),
		Heat:        doc.Text(IDHeat),
		Pump:        doc.Text(IDPump),
		Light:       doc.Text(IDLight),
		Min:         adjust.Min,
		Max:         adjust.Max,
		Adjust:      adjust.Value,
		Options:     lights.Options,
		Selected:    lights.Value,
		RefreshTime: doc.Text(IDRefreshTime),
	}
	if r.clear {
		s.Clear = clearScreen
	}
	return screenTemplate.Execute(r.out, s)
}

// RenderIfDirty writes a frame only when the document changed since the last frame
func (r *Renderer) RenderIfDirty(doc *Document) error {
	if !doc.TakeDirty() {
		return nil
	}
	return r.Render(doc)
}
