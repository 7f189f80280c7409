// Package spool implements a sequential, file-backed buffer of records.
//
// A Spool durably captures every record consumed from an upstream reader,
// so that a failed batch insert can be retried from the spooled copy
// without re-reading the upstream source (which may be non-replayable,
// such as a paginated network API).
//
// The Spool owns one temporary backing file at a time, appending one
// encoded record per line. Replay streams the file through a caller
// decision function and re-spools the kept subset into a new backing
// file, which atomically replaces the old one. Files are unlinked as
// they're replaced: spools are transient and never accumulate on disk.
package spool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinker_spool_appends_total",
		Help: "Cumulative number of records appended to spools",
	})
	clearsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinker_spool_clears_total",
		Help: "Cumulative number of spool clears",
	})
	replaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinker_spool_replays_total",
		Help: "Cumulative number of completed spool replays",
	})
	replayKeptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinker_spool_replay_kept_total",
		Help: "Cumulative number of records kept across spool replays",
	})
	replayDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinker_spool_replay_dropped_total",
		Help: "Cumulative number of records dropped across spool replays",
	})
)
