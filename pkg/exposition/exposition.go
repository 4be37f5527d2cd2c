// Package exposition renders a SampleSet as Prometheus/OpenMetrics style
// text into a bounded buffer.
package exposition

import (
	"math"
	"strconv"
	"strings"

	"github.com/ericogr/ina219-exporter/pkg/sampler"
)

const (
	DefaultMaxBytes = 1024

	// SensorErrorBody is the body served instead of metrics when sampling
	// failed.
	SensorErrorBody = "Sensor error."

	infoHelp = "Metadata about the device."
)

type Status int

const (
	Success Status = iota
	SensorError
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case SensorError:
		return "sensor_error"
	}
	return "unknown"
}

// Identity is the static device metadata emitted on the info gauge.
type Identity struct {
	Namespace string
	Version   string
	Board     string
	Sensor    string
}

// Document is one rendered response body.
type Document struct {
	Body      []byte
	Status    Status
	Truncated bool
}

type Formatter struct {
	maxBytes int
}

// NewFormatter returns a formatter whose documents never exceed maxBytes.
// A non-positive value selects DefaultMaxBytes.
func NewFormatter(maxBytes int) *Formatter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Formatter{maxBytes: maxBytes}
}

func (f *Formatter) MaxBytes() int { return f.maxBytes }

// Render formats set for id. A non-nil err, an empty set or a non-finite
// value yields the sensor error document. Output depends only on the
// arguments; the set's timestamp is not rendered.
//
// When the document does not fit it is cut after the last complete line
// that fits and Truncated is set.
func (f *Formatter) Render(set sampler.SampleSet, err error, id Identity) Document {
	if err != nil || !valid(set) {
		return Document{Body: []byte(SensorErrorBody), Status: SensorError}
	}

	b := newBoundedBuffer(f.maxBytes)
	ns := id.Namespace

	info := ns + "_info"
	b.line("# HELP " + info + " " + infoHelp)
	b.line("# TYPE " + info + " gauge")
	b.line("# UNIT " + info)
	b.line(info + `{version="` + escapeLabel(id.Version) +
		`",board="` + escapeLabel(id.Board) +
		`",sensor="` + escapeLabel(id.Sensor) + `"} 1`)

	for _, r := range set.Readings {
		name := ns + "_" + r.Metric
		b.line("# HELP " + name + " " + escapeHelp(r.Help))
		b.line("# TYPE " + name + " gauge")
		b.line("# UNIT " + name + " " + r.Unit)
		b.line(name + " " + formatValue(r.Value))
	}

	return Document{Body: b.bytes(), Status: Success, Truncated: b.truncated}
}

func valid(set sampler.SampleSet) bool {
	if len(set.Readings) == 0 {
		return false
	}
	for _, r := range set.Readings {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			return false
		}
	}
	return true
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

var (
	labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
)

func escapeLabel(s string) string { return labelEscaper.Replace(s) }
func escapeHelp(s string) string  { return helpEscaper.Replace(s) }

// boundedBuffer accepts whole lines until the next one would exceed max.
// After the first rejected line every later line is dropped too, so the
// output is always a prefix of the full document.
type boundedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{buf: make([]byte, 0, max), max: max}
}

func (b *boundedBuffer) line(s string) {
	if b.truncated {
		return
	}
	if len(b.buf)+len(s)+1 > b.max {
		b.truncated = true
		return
	}
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, '\n')
}

func (b *boundedBuffer) bytes() []byte { return b.buf }
