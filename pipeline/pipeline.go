// Package pipeline drives the retry-safe data path of the batched
// database writer: records are read exactly once from the upstream
// reader, durably spooled, and flushed in batches with the keep-alive
// coordinator paused around each flush. A failed flush is rebuilt from
// the spool — never by re-reading the upstream source.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.sinker.dev/core/record"
	"go.sinker.dev/core/spool"
)

var (
	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinker_pipeline_records_total",
		Help: "Cumulative number of records read from the upstream source",
	})
	flushRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinker_pipeline_flush_retries_total",
		Help: "Cumulative number of batch flush retries",
	})
)

// BatchWriter accumulates records and executes them as one batch
// operation against the database. insert.Batch is the standard
// implementation.
type BatchWriter interface {
	Add(record.Record)
	Len() int
	Discard()
	Flush(ctx context.Context) error
}

// Suspender is the pause/resume surface of the keep-alive coordinator.
type Suspender interface {
	Pause()
	Resume()
}

// Config of a Driver.
type Config struct {
	// BatchSize is the number of records flushed per batch.
	BatchSize int
	// ShouldRetry decides whether a failed flush attempt is retried.
	// The Driver supplies the retry mechanism (durable replay of the
	// exact batch); the policy — attempts, backoff — belongs to the
	// caller, and ShouldRetry is where it sleeps and counts. Nil
	// disables retries.
	ShouldRetry func(err error, attempt int) bool
	// Keep filters (and may transform, by mutating in place) spooled
	// records while a failed batch is rebuilt. Nil keeps every record.
	Keep func(record.Record) bool
}

// Driver orchestrates one lane of the data path. It is not safe for
// concurrent use: the spool demands single-writer discipline, so
// concurrent lanes each run their own Driver and Spool.
type Driver struct {
	reader *spool.Reader
	sp     *spool.Spool
	writer BatchWriter
	ka     Suspender
	cfg    Config
}

// NewDriver returns a Driver reading |fr| through |sp|, flushing batches
// with |writer|, and pausing |ka| (which may be nil) around each flush.
func NewDriver(fr record.FieldReader, sp *spool.Spool, writer BatchWriter, ka Suspender, cfg Config) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Driver{
		reader: spool.NewReader(fr, sp),
		sp:     sp,
		writer: writer,
		ka:     ka,
		cfg:    cfg,
	}
}

// Run consumes the upstream reader to completion, flushing every
// BatchSize records and once more at the end of input. It returns the
// first unrecoverable error: an upstream read failure, a spool failure,
// or a flush failure which ShouldRetry declined to retry.
func (d *Driver) Run(ctx context.Context) error {
	for d.reader.Next() {
		d.writer.Add(d.reader.Record())
		recordsTotal.Inc()

		if d.writer.Len() >= d.cfg.BatchSize {
			if err := d.flush(ctx); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if err := d.reader.Err(); err != nil {
		return err
	}
	return d.flush(ctx)
}

// flush executes the pending batch, pausing the keep-alive so the
// connection is quiescent for the duration. On failure it consults
// ShouldRetry, rebuilds the exact batch from the spool, and tries
// again; on success the spooled copy is cleared.
func (d *Driver) flush(ctx context.Context) error {
	if d.writer.Len() == 0 {
		return nil
	}
	var flushID = uuid.New()

	for attempt := 1; ; attempt++ {
		if d.ka != nil {
			d.ka.Pause()
		}
		var err = d.writer.Flush(ctx)
		if d.ka != nil {
			d.ka.Resume()
		}

		if err == nil {
			return d.sp.Clear()
		}
		log.WithFields(log.Fields{
			"err":     err,
			"flush":   flushID,
			"attempt": attempt,
		}).Warn("batch flush failed")

		if d.cfg.ShouldRetry == nil || !d.cfg.ShouldRetry(err, attempt) {
			return err
		}
		flushRetriesTotal.Inc()

		if err = d.rebuild(); err != nil {
			return err
		}
	}
}

// rebuild replays the spool, re-adding kept records to a discarded
// batch in their original relative order.
func (d *Driver) rebuild() error {
	d.writer.Discard()

	var keep = d.cfg.Keep
	if keep == nil {
		keep = func(record.Record) bool { return true }
	}
	return d.sp.Replay(func(r record.Record) bool {
		if !keep(r) {
			return false
		}
		d.writer.Add(r)
		return true
	})
}
