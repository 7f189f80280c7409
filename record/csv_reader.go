package record

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/pkg/errors"
)

// CSVReader is a FieldReader over delimited text input, decoding one
// Record per CSV record using the spool field encoding (so null
// sentinels and escaped text round-trip from files a Spool wrote).
type CSVReader struct {
	schema Schema
	cr     *csv.Reader
	cur    Record
	line   int
	err    error
}

// NewCSVReader returns a CSVReader of |r| shaped by |schema|.
func NewCSVReader(r io.Reader, schema Schema) *CSVReader {
	var cr = csv.NewReader(r)
	cr.FieldsPerRecord = len(schema)

	return &CSVReader{schema: schema, cr: cr}
}

// Next advances to the next record. It returns false at the end of input,
// or on a malformed record (inspect Err to distinguish).
func (r *CSVReader) Next() bool {
	if r.err != nil {
		return false
	}
	var fields, err = r.cr.Read()
	if err == io.EOF {
		return false
	} else if err != nil {
		r.err = err
		return false
	}
	r.line++

	if r.cur, err = DecodeFields(fields, r.schema); err != nil {
		r.err = errors.WithMessagef(err, "record %d", r.line)
		return false
	}
	return true
}

// Err returns the first error encountered while reading.
func (r *CSVReader) Err() error { return r.err }

// Schema of records produced by the reader.
func (r *CSVReader) Schema() Schema { return r.schema }

func (r *CSVReader) IsNull(col int) bool        { return r.cur[col].IsNull() }
func (r *CSVReader) Boolean(col int) bool       { return r.cur[col].Boolean() }
func (r *CSVReader) Integer(col int) int64      { return r.cur[col].Integer() }
func (r *CSVReader) Float(col int) float64      { return r.cur[col].Float() }
func (r *CSVReader) Text(col int) string        { return r.cur[col].Text() }
func (r *CSVReader) Timestamp(col int) time.Time { return r.cur[col].Timestamp() }
func (r *CSVReader) Structured(col int) string  { return r.cur[col].Structured() }
