package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.sinker.dev/core/record"
	"go.sinker.dev/core/spool"
)

func testSchema() record.Schema {
	return record.Schema{
		{Name: "ok", Kind: record.Boolean},
		{Name: "count", Kind: record.Integer},
		{Name: "name", Kind: record.Text},
	}
}

func rec(ok bool, count int64, name string) record.Record {
	return record.Record{record.Bool(ok), record.Int(count), record.Txt(name)}
}

// testWriter is a BatchWriter which records flushed batches and can be
// scripted to fail its first |failures| flushes. It also appends to a
// shared event trace, letting tests assert pause/flush/resume ordering.
type testWriter struct {
	pending  []record.Record
	flushed  [][]record.Record
	failures int
	events   *[]string
}

func (w *testWriter) Add(r record.Record) { w.pending = append(w.pending, r.Copy()) }
func (w *testWriter) Len() int            { return len(w.pending) }
func (w *testWriter) Discard()            { w.pending = w.pending[:0] }

func (w *testWriter) Flush(context.Context) error {
	if w.events != nil {
		*w.events = append(*w.events, "flush")
	}
	if w.failures > 0 {
		w.failures--
		return errors.New("insert failed")
	}
	var batch = make([]record.Record, len(w.pending))
	copy(batch, w.pending)
	w.flushed = append(w.flushed, batch)
	w.pending = w.pending[:0]
	return nil
}

// testSuspender traces Pause and Resume calls.
type testSuspender struct{ events *[]string }

func (s *testSuspender) Pause()  { *s.events = append(*s.events, "pause") }
func (s *testSuspender) Resume() { *s.events = append(*s.events, "resume") }

func newTestDriver(t *testing.T, input string, w *testWriter, ka Suspender, cfg Config) (*Driver, *spool.Spool) {
	var schema = testSchema()
	var sp, err = spool.New(t.TempDir(), schema)
	require.NoError(t, err)
	t.Cleanup(func() { sp.Close() })

	var fr = record.NewCSVReader(strings.NewReader(input), schema)
	return NewDriver(fr, sp, w, ka, cfg), sp
}

func TestBatchesAreFlushedAndSpoolCleared(t *testing.T) {
	var events []string
	var w = &testWriter{events: &events}
	var ka = &testSuspender{events: &events}

	var d, sp = newTestDriver(t,
		"true,1,a\ntrue,2,b\ntrue,3,c\n",
		w, ka, Config{BatchSize: 2})

	require.NoError(t, d.Run(context.Background()))

	// Two flushes: a full batch of two, and the final partial batch.
	require.Len(t, w.flushed, 2)
	require.Len(t, w.flushed[0], 2)
	require.Len(t, w.flushed[1], 1)
	require.True(t, rec(true, 3, "c").Equal(w.flushed[1][0]))

	// The keep-alive was paused around every flush.
	require.Equal(t, []string{"pause", "flush", "resume", "pause", "flush", "resume"}, events)

	// The spooled copy was cleared after the durable commit.
	require.Equal(t, 0, sp.Len())
}

func TestFailedFlushIsRebuiltFromSpool(t *testing.T) {
	var w = &testWriter{failures: 1}
	var attempts []int

	var d, sp = newTestDriver(t,
		"true,1,a\nfalse,2,\"b,c\"\n",
		w, nil, Config{
			BatchSize: 10,
			ShouldRetry: func(err error, attempt int) bool {
				attempts = append(attempts, attempt)
				return true
			},
		})

	require.NoError(t, d.Run(context.Background()))
	require.Equal(t, []int{1}, attempts)

	// The retried batch holds the exact records of the failed one, in
	// order, rebuilt from the spool rather than the upstream source.
	require.Len(t, w.flushed, 1)
	require.Len(t, w.flushed[0], 2)
	require.True(t, rec(true, 1, "a").Equal(w.flushed[0][0]))
	require.True(t, rec(false, 2, "b,c").Equal(w.flushed[0][1]))

	require.Equal(t, 0, sp.Len())
}

func TestRetryDeclinedSurfacesFlushError(t *testing.T) {
	var w = &testWriter{failures: 10}
	var d, sp = newTestDriver(t, "true,1,a\n", w, nil, Config{BatchSize: 10})

	var err = d.Run(context.Background())
	require.EqualError(t, err, "insert failed")

	// The spool retains the un-flushed records for the caller.
	require.Equal(t, 1, sp.Len())
}

func TestKeepFilterAppliesDuringRebuild(t *testing.T) {
	var w = &testWriter{failures: 1}

	var d, _ = newTestDriver(t,
		"true,1,a\ntrue,2,b\ntrue,3,c\n",
		w, nil, Config{
			BatchSize:   10,
			ShouldRetry: func(error, int) bool { return true },
			// Drop the middle record while rebuilding.
			Keep: func(r record.Record) bool { return r.At(1).Integer() != 2 },
		})

	require.NoError(t, d.Run(context.Background()))

	require.Len(t, w.flushed, 1)
	require.Len(t, w.flushed[0], 2)
	require.Equal(t, int64(1), w.flushed[0][0].At(1).Integer())
	require.Equal(t, int64(3), w.flushed[0][1].At(1).Integer())
}

func TestUpstreamReadErrorAborts(t *testing.T) {
	var w = &testWriter{}
	var d, _ = newTestDriver(t, "true,1,a\ntrue,nope,b\n", w, nil, Config{BatchSize: 10})

	require.Error(t, d.Run(context.Background()))
	require.Empty(t, w.flushed)
}

func TestCancelledContextStopsTheRun(t *testing.T) {
	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	var w = &testWriter{}
	var d, _ = newTestDriver(t, "true,1,a\ntrue,2,b\n", w, nil, Config{BatchSize: 10})

	require.Equal(t, context.Canceled, d.Run(ctx))
}
