package encode

import (
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/nickyhof/QueryGate/core"
)

const (
	DefaultMaxDepth = 100
	HardMaxDepth    = 10000 // deeper nesting would exhaust the stack
)

// jsonMarker stands in for records nested too deep; fieldError for a field
// that could not be rendered.
const (
	jsonNull   = "null"
	jsonMarker = "[]"
	fieldError = `""`
	hexDigits  = "0123456789ABCDEF"
)

// Resolver looks up records referenced from other records.
type Resolver interface {
	Record(id int64) (core.Record, error)
}

type Options struct {
	Format core.Format
	// Escape applies to JSON output; CSV output always doubles quotes.
	Escape   core.Escape
	ShowID   bool
	MaxDepth int
}

// Encoder writes records into a Buffer. The first buffer error is sticky:
// later writes are skipped and every method returns it.
type Encoder struct {
	buf  *Buffer
	res  Resolver
	opts Options
	err  error

	degraded int
}

func NewEncoder(buf *Buffer, res Resolver, opts Options) *Encoder {
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.MaxDepth > HardMaxDepth {
		opts.MaxDepth = HardMaxDepth
	}
	if opts.Format == core.CSVFormat {
		opts.Escape = core.EscapeCSV
	}
	return &Encoder{buf: buf, res: res, opts: opts}
}

// Records writes a result list: a JSON array of records, or one CSV row per
// record.
func (e *Encoder) Records(recs []core.Record) error {
	if e.opts.Format == core.CSVFormat {
		for _, rec := range recs {
			e.record(rec, 0)
			e.byte('\n')
		}
		return e.err
	}

	e.byte('[')
	for i, rec := range recs {
		if i > 0 {
			e.byte(',')
		}
		e.record(rec, 0)
	}
	e.byte(']')
	return e.err
}

// Record writes a single record.
func (e *Encoder) Record(rec core.Record) error {
	e.record(rec, 0)
	return e.err
}

// Value writes a single scalar or referenced record.
func (e *Encoder) Value(v core.Value) error {
	e.value(v, 0)
	return e.err
}

// Degraded counts the fields written as an empty string because they could
// not be rendered.
func (e *Encoder) Degraded() int {
	return e.degraded
}

// Text writes s as a quoted string.
func (e *Encoder) Text(s string) error {
	e.quoted(s)
	return e.err
}

func (e *Encoder) record(rec core.Record, depth int) {
	csv := e.opts.Format == core.CSVFormat
	if !csv {
		e.byte('[')
	}
	first := true
	sep := func() {
		if !first {
			e.byte(',')
		}
		first = false
	}
	if e.opts.ShowID {
		sep()
		e.str(strconv.FormatInt(rec.ID, 10))
	}
	for _, v := range rec.Fields {
		sep()
		e.value(v, depth)
	}
	if !csv {
		e.byte(']')
	}
}

func (e *Encoder) value(v core.Value, depth int) {
	switch v.Type {
	case core.NullType:
		if e.opts.Format != core.CSVFormat {
			e.str(jsonNull)
		}
	case core.IntType:
		e.str(strconv.FormatInt(v.Int, 10))
	case core.DoubleType:
		if math.IsNaN(v.Double) || math.IsInf(v.Double, 0) {
			e.fieldError()
			return
		}
		e.str(strconv.FormatFloat(v.Double, 'g', -1, 64))
	case core.StrType, core.CharType, core.BlobType:
		e.quoted(v.Str)
	case core.RecordType:
		e.nested(v.Int, depth+1)
	default:
		e.fieldError()
	}
}

func (e *Encoder) fieldError() {
	e.degraded++
	e.str(fieldError)
}

func (e *Encoder) nested(id int64, depth int) {
	csv := e.opts.Format == core.CSVFormat
	if depth > e.opts.MaxDepth {
		if !csv {
			e.str(jsonMarker)
		}
		return
	}
	if e.res == nil {
		e.fieldError()
		return
	}
	rec, err := e.res.Record(id)
	if err != nil {
		e.fieldError()
		return
	}
	if !csv {
		e.record(rec, depth)
		return
	}

	// A nested record in CSV is a single cell holding its JSON rendering.
	room := e.buf.max - e.buf.Len()
	sub := NewEncoder(NewBufferSize(min(256, room), room), e.res, Options{
		Format:   core.JSONFormat,
		Escape:   core.EscapeJSON,
		ShowID:   e.opts.ShowID,
		MaxDepth: e.opts.MaxDepth,
	})
	sub.record(rec, depth)
	e.degraded += sub.degraded
	if sub.err != nil {
		e.fail(sub.err)
		return
	}
	e.quoted(sub.buf.String())
}

func (e *Encoder) quoted(s string) {
	e.byte('"')
	switch e.opts.Escape {
	case core.EscapeURL:
		e.urlEscaped(s)
	case core.EscapeJSON:
		e.jsonEscaped(s)
	case core.EscapeCSV:
		e.csvEscaped(s)
	default:
		e.str(s)
	}
	e.byte('"')
}

func (e *Encoder) urlEscaped(s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c == '"' || c < 0x20 || c >= 0x80 {
			e.byte('%')
			e.byte(hexDigits[c>>4])
			e.byte(hexDigits[c&0xF])
			continue
		}
		e.byte(c)
	}
}

func (e *Encoder) jsonEscaped(s string) {
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			e.str(s[start:i])
			switch c {
			case '"', '\\':
				e.byte('\\')
				e.byte(c)
			case '\n':
				e.str(`\n`)
			case '\r':
				e.str(`\r`)
			case '\t':
				e.str(`\t`)
			case '\b':
				e.str(`\b`)
			case '\f':
				e.str(`\f`)
			default:
				e.str(`\u00`)
				e.byte(hexDigits[c>>4])
				e.byte(hexDigits[c&0xF])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			e.str(s[start:i])
			e.str(`\ufffd`)
			i += size
			start = i
			continue
		}
		i += size
	}
	e.str(s[start:])
}

func (e *Encoder) csvEscaped(s string) {
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			e.str(s[start : i+1])
			e.byte('"')
			start = i + 1
		}
	}
	e.str(s[start:])
}

func (e *Encoder) str(s string) {
	if e.err == nil {
		_, e.err = e.buf.WriteString(s)
	}
}

func (e *Encoder) byte(c byte) {
	if e.err == nil {
		e.err = e.buf.WriteByte(c)
	}
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
