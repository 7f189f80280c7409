package spool

import (
	"go.sinker.dev/core/record"
)

// Reader adapts an upstream record.FieldReader so that every record it
// produces is durably captured into a Spool before being observed by
// the caller. It's the capture path of the retry data path: a batch
// built from a Reader can always be rebuilt from the Spool.
type Reader struct {
	fr  record.FieldReader
	sp  *Spool
	cur record.Record
	err error
}

// NewReader returns a Reader of |fr| which captures into |sp|.
func NewReader(fr record.FieldReader, sp *Spool) *Reader {
	return &Reader{fr: fr, sp: sp}
}

// Next advances the upstream reader, captures its current record, and
// appends it to the Spool. It returns false at the end of upstream
// input or on a capture error (inspect Err to distinguish).
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.fr.Next() {
		r.err = r.fr.Err()
		return false
	}
	r.cur = record.Capture(r.fr)

	if err := r.sp.Append(r.cur); err != nil {
		r.err = err
		return false
	}
	return true
}

// Record returns the current, fully-populated record. It's valid until
// the next call to Next.
func (r *Reader) Record() record.Record { return r.cur }

// Err returns the first error encountered by Next.
func (r *Reader) Err() error { return r.err }
