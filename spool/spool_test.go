package spool

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.sinker.dev/core/record"
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

// contents replays the Spool with a keep-all decision, collecting every
// record. The replay itself is part of what's under test: it must leave
// the Spool observationally unchanged.
func contents(t *testing.T, s *Spool) []record.Record {
	var out []record.Record
	require.NoError(t, s.Replay(func(r record.Record) bool {
		out = append(out, r)
		return true
	}))
	return out
}

func TestAppendAndReplayPreservesSequence(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)
	defer s.Close()

	var rows = []record.Record{
		rec(true, 1, "a"),
		rec(false, -2, "b,c"),
		rec(true, 3, ""),
	}
	for _, r := range rows {
		require.NoError(t, s.Append(r))
	}
	require.Equal(t, 3, s.Len())

	// Replay keeping everything reproduces the exact sequence, twice over.
	for i := 0; i < 2; i++ {
		var got = contents(t, s)
		require.Len(t, got, len(rows))
		for j := range rows {
			require.True(t, rows[j].Equal(got[j]), "row %d", j)
		}
		require.Equal(t, 3, s.Len())
	}
}

func TestReplayFiltersAndPreservesOrder(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)
	defer s.Close()

	for i := int64(0); i < 6; i++ {
		require.NoError(t, s.Append(rec(true, i, "r")))
	}

	// Keep only even-indexed records.
	var ind int
	require.NoError(t, s.Replay(func(r record.Record) bool {
		ind++
		return ind%2 == 1
	}))
	require.Equal(t, 3, s.Len())

	var got = contents(t, s)
	require.Len(t, got, 3)
	for i, want := range []int64{0, 2, 4} {
		require.Equal(t, want, got[i].At(1).Integer())
	}

	// Clear-then-append behaves as if freshly opened.
	require.NoError(t, s.Clear())
	require.Equal(t, 0, s.Len())
	require.NoError(t, s.Append(rec(false, 99, "fresh")))
	require.Equal(t, 1, s.Len())

	got = contents(t, s)
	require.Len(t, got, 1)
	require.Equal(t, int64(99), got[0].At(1).Integer())
}

func TestReplayMayTransformKeptRecords(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(rec(true, 1, "before")))
	require.NoError(t, s.Replay(func(r record.Record) bool {
		r.Set(2, record.Txt("after"))
		return true
	}))

	var got = contents(t, s)
	require.Len(t, got, 1)
	require.Equal(t, "after", got[0].At(2).Text())
}

func TestReplayKeepingNothingLeavesEmptyOpenSpool(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(rec(true, 1, "a")))
	require.NoError(t, s.Replay(func(record.Record) bool { return false }))
	require.Equal(t, 0, s.Len())

	// The spool is empty, not absent: appends still work.
	require.NoError(t, s.Append(rec(false, 2, "b")))
	require.Equal(t, 1, s.Len())
}

func TestFilesAreUnlinkedAsTheyAreReplaced(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)

	var first = s.file.Name()
	require.NoError(t, s.Append(rec(true, 1, "a")))

	require.NoError(t, s.Replay(func(record.Record) bool { return true }))
	var second = s.file.Name()
	require.NotEqual(t, first, second)

	_, err = os.Stat(first)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, s.Clear())
	_, err = os.Stat(second)
	require.True(t, os.IsNotExist(err))

	var third = s.file.Name()
	require.NoError(t, s.Close())
	_, err = os.Stat(third)
	require.True(t, os.IsNotExist(err))
}

func TestOperationsAfterCloseAreStateErrors(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Append(rec(true, 1, "a"))
	require.IsType(t, &StateError{}, err)
	require.EqualError(t, err, "spool append: no active spool file")

	err = s.Replay(func(record.Record) bool { return true })
	require.IsType(t, &StateError{}, err)

	// Close is idempotent, and Clear re-opens the Spool.
	require.NoError(t, s.Close())
	require.NoError(t, s.Clear())
	require.NoError(t, s.Append(rec(true, 1, "a")))
}

func TestReplayOfCorruptLineAborts(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(rec(true, 1, "a")))

	// Inject a line which parses as CSV but not under the schema.
	_, err = s.file.WriteString("true,not-a-number,x\n")
	require.NoError(t, err)
	require.NoError(t, s.Append(rec(false, 3, "c")))

	err = s.Replay(func(record.Record) bool { return true })
	var corrupt, ok = err.(*CorruptionError)
	require.True(t, ok, "expected CorruptionError, got %v", err)
	require.Equal(t, 2, corrupt.Line)

	// The replay aborted without disturbing the active spool: all three
	// lines, including the corrupt one, are still on disk.
	var raw []byte
	raw, err = os.ReadFile(s.file.Name())
	require.NoError(t, err)
	require.Equal(t, "true,1,a\ntrue,not-a-number,x\nfalse,3,c\n", string(raw))
}

func TestReplayOfRaggedLineIsCorruption(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(rec(true, 1, "a")))
	_, err = s.file.WriteString("too,few\n")
	require.NoError(t, err)

	err = s.Replay(func(record.Record) bool { return true })
	var corrupt, ok = err.(*CorruptionError)
	require.True(t, ok, "expected CorruptionError, got %v", err)
	require.Equal(t, 2, corrupt.Line)
}

// The end-to-end scenario of the data path: capture, replay a subset,
// and decode the surviving spool.
func TestScenarioReplayKeepsExactRecord(t *testing.T) {
	var s, err = New(t.TempDir(), testSchema())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(rec(true, 1, "a")))
	require.NoError(t, s.Append(rec(false, 2, "b,c")))

	var ind int
	require.NoError(t, s.Replay(func(r record.Record) bool {
		ind++
		return ind == 2
	}))

	var got = contents(t, s)
	require.Len(t, got, 1)
	require.True(t, rec(false, 2, "b,c").Equal(got[0]))
}
