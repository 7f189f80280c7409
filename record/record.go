package record

import (
	"fmt"
	"time"
)

// Kind is one of the closed set of primitive column kinds which a
// Record slot may hold.
type Kind int

const (
	Boolean Kind = iota + 1
	Integer
	Float
	Text
	Timestamp
	Structured
)

// String returns the lower-case name of the Kind.
func (k Kind) String() string {
	switch k {
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Text:
		return "text"
	case Timestamp:
		return "timestamp"
	case Structured:
		return "structured"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KindFromString maps the lower-case name of a Kind to its value.
func KindFromString(s string) (Kind, error) {
	switch s {
	case "boolean":
		return Boolean, nil
	case "integer":
		return Integer, nil
	case "float":
		return Float, nil
	case "text":
		return Text, nil
	case "timestamp":
		return Timestamp, nil
	case "structured":
		return Structured, nil
	default:
		return 0, fmt.Errorf("unknown column kind %q", s)
	}
}

// Column is a named, typed column of a Schema.
type Column struct {
	Name string
	Kind Kind
}

// Schema is an ordered list of Columns shared by every Record of a run.
// A Schema is immutable once constructed, and is passed by reference into
// Spool and codec operations.
type Schema []Column

// Value is a tagged union over the supported column kinds, or an
// explicit null. The zero Value is null with no Kind.
type Value struct {
	kind Kind
	null bool

	b bool
	i int64
	f float64
	s string // Text, or canonical JSON of Structured.
	t time.Time
}

// Null returns a null Value of the given Kind.
func Null(k Kind) Value { return Value{kind: k, null: true} }

// Bool returns a Boolean Value.
func Bool(v bool) Value { return Value{kind: Boolean, b: v} }

// Int returns an Integer Value.
func Int(v int64) Value { return Value{kind: Integer, i: v} }

// Flt returns a Float Value.
func Flt(v float64) Value { return Value{kind: Float, f: v} }

// Txt returns a Text Value.
func Txt(v string) Value { return Value{kind: Text, s: v} }

// Time returns a Timestamp Value, normalized to UTC.
func Time(v time.Time) Value { return Value{kind: Timestamp, t: v.UTC()} }

// JSON returns a Structured Value holding serialized JSON. The
// serialization is canonicalized by the codec on encode.
func JSON(v string) Value { return Value{kind: Structured, s: v} }

// Kind of the Value.
func (v Value) Kind() Kind { return v.kind }

// IsNull returns whether the Value is null.
func (v Value) IsNull() bool { return v.null }

func (v Value) Boolean() bool       { return v.b }
func (v Value) Integer() int64      { return v.i }
func (v Value) Float() float64      { return v.f }
func (v Value) Text() string        { return v.s }
func (v Value) Timestamp() time.Time { return v.t }
func (v Value) Structured() string  { return v.s }

// Equal returns whether two Values are observationally equal. Timestamps
// compare with time.Time.Equal, and NaN Floats compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.null != o.null {
		return false
	} else if v.null {
		return true
	}
	switch v.kind {
	case Boolean:
		return v.b == o.b
	case Integer:
		return v.i == o.i
	case Float:
		return v.f == o.f || (v.f != v.f && o.f != o.f)
	case Text, Structured:
		return v.s == o.s
	case Timestamp:
		return v.t.Equal(o.t)
	default:
		return false
	}
}

// Record is an in-memory row: a fixed-size ordered array of Values,
// one per Schema column. A Record is created fresh per logical row and
// mutated only by column-indexed setters, during capture from an
// upstream reader or while parsing spooled text.
type Record []Value

// New returns an empty Record shaped by |schema|, with every slot null.
func New(schema Schema) Record {
	var r = make(Record, len(schema))
	for i, col := range schema {
		r[i] = Null(col.Kind)
	}
	return r
}

// Set the Value at column index |col|.
func (r Record) Set(col int, v Value) { r[col] = v }

// At returns the Value at column index |col|.
func (r Record) At(col int) Value { return r[col] }

// Equal returns whether two Records are observationally equal:
// same length, same null pattern, and equal Values.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of the Record.
func (r Record) Copy() Record {
	var out = make(Record, len(r))
	copy(out, r)
	return out
}

// FieldReader is the interface of an upstream, column-oriented record
// reader. Getters are addressed by column index and are valid only for
// the column's Kind. Implementations surface read failures through Err.
type FieldReader interface {
	// Next advances to the next record, returning false at the end of
	// input or on error (inspect Err to distinguish).
	Next() bool
	// Err returns the first error encountered by the reader.
	Err() error
	// Schema of records produced by the reader.
	Schema() Schema

	IsNull(col int) bool
	Boolean(col int) bool
	Integer(col int) int64
	Float(col int) float64
	Text(col int) string
	Timestamp(col int) time.Time
	Structured(col int) string
}

// Capture reads every column of the FieldReader's current record into
// a new Record. The Record is fully populated on return.
func Capture(fr FieldReader) Record {
	var schema = fr.Schema()
	var r = New(schema)

	for i, col := range schema {
		if fr.IsNull(i) {
			r[i] = Null(col.Kind)
			continue
		}
		switch col.Kind {
		case Boolean:
			r[i] = Bool(fr.Boolean(i))
		case Integer:
			r[i] = Int(fr.Integer(i))
		case Float:
			r[i] = Flt(fr.Float(i))
		case Text:
			r[i] = Txt(fr.Text(i))
		case Timestamp:
			r[i] = Time(fr.Timestamp(i))
		case Structured:
			r[i] = JSON(fr.Structured(i))
		default:
			panic(fmt.Sprintf("invalid Kind (%v)", col.Kind))
		}
	}
	return r
}
