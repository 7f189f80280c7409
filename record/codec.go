package record

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// NullSentinel is the reserved field encoding of a null Value. It cannot
// collide with any valid encoding: no non-text Kind produces a leading
// backslash, and Text values beginning with one are escaped by doubling it.
const NullSentinel = `\N`

// TimestampLayout is the canonical Timestamp encoding: UTC, RFC-3339 with
// exactly nine fractional digits. A fixed width guarantees the round-trip
// law regardless of trailing zeros.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EncodeFields renders the Record as one textual field per Schema column,
// suitable for writing as a single CSV record. It errors if a non-null
// slot's Kind disagrees with the Schema.
func EncodeFields(r Record, schema Schema) ([]string, error) {
	if len(r) != len(schema) {
		return nil, errors.Errorf("record has %d fields; schema has %d", len(r), len(schema))
	}
	var fields = make([]string, len(r))

	for i, col := range schema {
		var v = r[i]

		if v.IsNull() {
			fields[i] = NullSentinel
			continue
		} else if v.Kind() != col.Kind {
			return nil, errors.Errorf("column %s: value kind %v does not match schema kind %v",
				col.Name, v.Kind(), col.Kind)
		}

		switch col.Kind {
		case Boolean:
			fields[i] = strconv.FormatBool(v.Boolean())
		case Integer:
			fields[i] = strconv.FormatInt(v.Integer(), 10)
		case Float:
			// 'g' with precision -1 uses the minimal digits which
			// round-trip exactly, and renders NaN and ±Inf by name.
			fields[i] = strconv.FormatFloat(v.Float(), 'g', -1, 64)
		case Text:
			fields[i] = escapeText(v.Text())
		case Timestamp:
			fields[i] = v.Timestamp().UTC().Format(TimestampLayout)
		case Structured:
			var buf bytes.Buffer
			if err := json.Compact(&buf, []byte(v.Structured())); err != nil {
				return nil, errors.Wrapf(err, "column %s: invalid structured value", col.Name)
			}
			fields[i] = buf.String()
		default:
			return nil, errors.Errorf("column %s: invalid schema kind %v", col.Name, col.Kind)
		}
	}
	return fields, nil
}

// DecodeFields parses textual fields back into a fully-populated Record.
// It errors if the field count mismatches the Schema, or if a field is not
// a valid lexical form of its column's Kind.
func DecodeFields(fields []string, schema Schema) (Record, error) {
	if len(fields) != len(schema) {
		return nil, errors.Errorf("expected %d fields, got %d", len(schema), len(fields))
	}
	var r = New(schema)

	for i, col := range schema {
		var f = fields[i]

		if f == NullSentinel {
			continue // New initialized the slot as null.
		}

		switch col.Kind {
		case Boolean:
			var v, err = strconv.ParseBool(f)
			if err != nil {
				return nil, decodeErr(col, f, err)
			}
			r[i] = Bool(v)
		case Integer:
			var v, err = strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, decodeErr(col, f, err)
			}
			r[i] = Int(v)
		case Float:
			var v, err = strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, decodeErr(col, f, err)
			}
			r[i] = Flt(v)
		case Text:
			r[i] = Txt(unescapeText(f))
		case Timestamp:
			var v, err = time.Parse(time.RFC3339Nano, f)
			if err != nil {
				return nil, decodeErr(col, f, err)
			}
			r[i] = Time(v)
		case Structured:
			if !json.Valid([]byte(f)) {
				return nil, errors.Errorf("column %s: %q is not valid JSON", col.Name, f)
			}
			r[i] = JSON(f)
		default:
			return nil, errors.Errorf("column %s: invalid schema kind %v", col.Name, col.Kind)
		}
	}
	return r, nil
}

func decodeErr(col Column, field string, err error) error {
	return errors.Wrapf(err, "column %s (%v): parsing %q", col.Name, col.Kind, field)
}

// escapeText doubles a leading backslash, so that no Text encoding can
// equal NullSentinel. Text is the only Kind able to produce one: JSON
// serializations begin with a quote, brace, bracket, digit, or keyword.
func escapeText(s string) string {
	if strings.HasPrefix(s, `\`) {
		return `\` + s
	}
	return s
}

func unescapeText(s string) string {
	if strings.HasPrefix(s, `\\`) {
		return s[1:]
	}
	return s
}
