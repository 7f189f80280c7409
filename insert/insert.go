// Package insert builds and executes batched, multi-row INSERT statements
// over database/sql, with per-dialect placeholder syntax.
package insert

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.sinker.dev/core/record"
)

var (
	rowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinker_insert_rows_total",
		Help: "Cumulative number of rows inserted",
	})
	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sinker_insert_flushes_total",
		Help: "Cumulative number of batch INSERT executions",
	}, []string{"status"})
)

// Dialect selects the SQL placeholder syntax of the target database.
type Dialect int

const (
	// Postgres uses ordinal placeholders ($1, $2, ...).
	Postgres Dialect = iota + 1
	// SQLite uses positional placeholders (?).
	SQLite
)

// DialectFromDriver maps a database/sql driver name to its Dialect.
func DialectFromDriver(name string) (Dialect, error) {
	switch name {
	case "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return 0, errors.Errorf("no dialect for driver %q", name)
	}
}

// Placeholder returns the 1-indexed |n|'th parameter placeholder.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Quote returns |ident| as a quoted SQL identifier. Double-quoting is
// accepted by both supported dialects.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Batch accumulates records and flushes them as a single multi-row
// INSERT. It implements the pipeline's BatchWriter contract.
type Batch struct {
	db      *sql.DB
	dialect Dialect
	table   string
	schema  record.Schema
	rows    []record.Record
}

// NewBatch returns an empty Batch inserting into |table| of |db|.
func NewBatch(db *sql.DB, dialect Dialect, table string, schema record.Schema) *Batch {
	return &Batch{db: db, dialect: dialect, table: table, schema: schema}
}

// Add a record to the pending batch. The record is copied: the caller
// may reuse it after Add returns.
func (b *Batch) Add(r record.Record) {
	b.rows = append(b.rows, r.Copy())
}

// Len returns the number of pending records.
func (b *Batch) Len() int { return len(b.rows) }

// Discard drops all pending records without executing them.
func (b *Batch) Discard() { b.rows = b.rows[:0] }

// Flush executes the pending records as one multi-row INSERT, clearing
// the batch on success. Flushing an empty Batch is a no-op. On failure
// the pending records are retained, but callers typically Discard and
// rebuild them from the spool instead.
func (b *Batch) Flush(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}
	var stmt, args = b.build()

	if _, err := b.db.ExecContext(ctx, stmt, args...); err != nil {
		flushesTotal.WithLabelValues("fail").Inc()
		return errors.Wrapf(err, "inserting %d rows into %s", len(b.rows), b.table)
	}
	flushesTotal.WithLabelValues("ok").Inc()
	rowsTotal.Add(float64(len(b.rows)))

	b.rows = b.rows[:0]
	return nil
}

func (b *Batch) build() (string, []interface{}) {
	var cols = make([]string, len(b.schema))
	for i, c := range b.schema {
		cols[i] = Quote(c.Name)
	}

	var sb strings.Builder
	var args = make([]interface{}, 0, len(b.rows)*len(b.schema))

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ",
		Quote(b.table), strings.Join(cols, ", "))

	for ri, row := range b.rows {
		if ri != 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for ci := range b.schema {
			if ci != 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.dialect.Placeholder(len(args) + 1))
			args = append(args, bindValue(row[ci]))
		}
		sb.WriteByte(')')
	}
	return sb.String(), args
}

// bindValue maps a record Value to its database/sql parameter form.
func bindValue(v record.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case record.Boolean:
		return v.Boolean()
	case record.Integer:
		return v.Integer()
	case record.Float:
		return v.Float()
	case record.Text:
		return v.Text()
	case record.Timestamp:
		return v.Timestamp()
	case record.Structured:
		return v.Structured()
	default:
		panic(fmt.Sprintf("invalid Kind (%v)", v.Kind()))
	}
}
