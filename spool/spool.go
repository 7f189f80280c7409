package spool

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sinker.dev/core/record"
)

// Spool is a sequential, file-backed buffer of records sharing a Schema.
//
// A Spool is not safe for concurrent use: Append, Clear, Replay and Close
// must be invoked from a single logical thread of control. Systems needing
// concurrent spools run one Spool instance per lane.
type Spool struct {
	schema record.Schema
	dir    string

	file  *os.File
	cw    *csv.Writer
	count int
}

// New creates a Spool over |schema| with a new, empty backing file in
// |dir| (or the default temporary directory, if empty), open for append.
func New(dir string, schema record.Schema) (*Spool, error) {
	var s = &Spool{schema: schema, dir: dir}

	var file, err = s.createFile()
	if err != nil {
		return nil, err
	}
	s.file, s.cw = file, csv.NewWriter(file)
	return s, nil
}

// Schema of records held by the Spool.
func (s *Spool) Schema() record.Schema { return s.schema }

// Len returns the number of records in the active backing file.
func (s *Spool) Len() int { return s.count }

// Append encodes the record and writes it as one line of the backing
// file, flushing before returning: a later reader of the file observes
// this record even if the process crashes before the next Append.
//
// Append with no active file is a contract violation (*StateError).
func (s *Spool) Append(r record.Record) error {
	if s.file == nil {
		return &StateError{Op: "append"}
	}
	var fields, err = record.EncodeFields(r, s.schema)
	if err != nil {
		return errors.WithMessage(err, "encoding record")
	}

	s.cw.Write(fields)
	s.cw.Flush()
	if err = s.cw.Error(); err != nil {
		return &IOError{Op: "append", Err: err}
	}
	s.count++
	appendsTotal.Inc()
	return nil
}

// Clear discards the current backing file, unlinking it from the
// filesystem, and opens a fresh empty one. It's called once a batch has
// durably committed and its spooled copy is no longer needed.
func (s *Spool) Clear() error {
	s.discard()

	var file, err = s.createFile()
	if err != nil {
		return err
	}
	s.file, s.cw, s.count = file, csv.NewWriter(file), 0
	clearsTotal.Inc()
	return nil
}

// Replay streams every spooled record through |decide|, re-spooling those
// it keeps into a new backing file which then atomically replaces the
// active one. |decide| may mutate the record in place before returning
// true: the kept record is re-encoded after the callback, so a replay
// both filters and transforms. The relative order of kept records is
// preserved, and a replay keeping zero records leaves an empty (not
// absent) spool, open for further Appends.
//
// A record which fails to decode aborts the replay with a
// *CorruptionError naming the offending line; the active spool is left
// unchanged. Spool integrity is load-bearing for the correctness of
// retries, so corrupt lines are never silently skipped.
func (s *Spool) Replay(decide func(record.Record) bool) error {
	if s.file == nil {
		return &StateError{Op: "replay"}
	}

	// Flush any buffered appends before reading the file back.
	s.cw.Flush()
	if err := s.cw.Error(); err != nil {
		return &IOError{Op: "replay flush", Err: err}
	}

	// The active file's offset is at its end. Read through an
	// independent handle rather than disturbing the append position.
	var rf, err = os.Open(s.file.Name())
	if err != nil {
		return &StateError{Op: "replay"}
	}
	defer rf.Close()

	var next *os.File
	if next, err = s.createFile(); err != nil {
		return err
	}
	var nextCW = csv.NewWriter(next)

	var abort = func(err error) error {
		next.Close()
		os.Remove(next.Name())
		return err
	}

	var cr = csv.NewReader(rf)
	// ReuseRecord is deliberately left false: |decide| may retain the
	// decoded record (e.g. to rebuild an insert batch), so field memory
	// must not alias the reader's internal buffer.
	cr.FieldsPerRecord = len(s.schema)

	var line, kept int
	for {
		var fields, err = cr.Read()
		if err == io.EOF {
			break
		}
		line++

		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				return abort(&CorruptionError{Line: line, Err: err})
			}
			return abort(&IOError{Op: "replay read", Err: err})
		}

		var rec record.Record
		if rec, err = record.DecodeFields(fields, s.schema); err != nil {
			return abort(&CorruptionError{Line: line, Err: err})
		}

		if !decide(rec) {
			replayDroppedTotal.Inc()
			continue
		}
		if fields, err = record.EncodeFields(rec, s.schema); err != nil {
			return abort(errors.WithMessage(err, "re-encoding replayed record"))
		}
		nextCW.Write(fields)
		if err = nextCW.Error(); err != nil {
			return abort(&IOError{Op: "replay write", Err: err})
		}
		kept++
	}

	nextCW.Flush()
	if err = nextCW.Error(); err != nil {
		return abort(&IOError{Op: "replay write", Err: err})
	}

	// Swap: the new file becomes active, and the old is unlinked.
	var dropped = s.count - kept
	s.discard()
	s.file, s.cw, s.count = next, nextCW, kept

	replaysTotal.Inc()
	replayKeptTotal.Add(float64(kept))
	log.WithFields(log.Fields{
		"kept":    kept,
		"dropped": dropped,
		"path":    next.Name(),
	}).Debug("replayed spool")

	return nil
}

// Close flushes and releases the active backing file, unlinking it.
// After Close no further Append or Replay is possible until Clear
// re-opens the Spool.
func (s *Spool) Close() error {
	if s.file == nil {
		return nil
	}
	s.cw.Flush()
	var err = s.cw.Error()
	s.discard()

	if err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}

// discard closes and unlinks the active file, if any. Failures are
// logged only: the file lives in a temporary directory and a leaked
// entry there doesn't compromise the data path.
func (s *Spool) discard() {
	if s.file == nil {
		return
	}
	var path = s.file.Name()
	if err := s.file.Close(); err != nil {
		log.WithFields(log.Fields{"err": err, "path": path}).Warn("failed to close spool file")
	}
	if err := os.Remove(path); err != nil {
		log.WithFields(log.Fields{"err": err, "path": path}).Warn("failed to remove spool file")
	}
	s.file, s.cw, s.count = nil, nil, 0
}

func (s *Spool) createFile() (*os.File, error) {
	var file, err = os.CreateTemp(s.dir, "sinker-records-*.csv")
	if err != nil {
		return nil, &IOError{Op: "create", Err: err}
	}
	return file, nil
}
