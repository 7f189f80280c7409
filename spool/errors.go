package spool

import "fmt"

// IOError indicates the spool backing file could not be created, opened,
// written, or read. It is not retried internally: the caller decides
// whether to abort the run.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("spool %s: %s", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// StateError indicates an operation was invoked outside its valid state,
// such as an append with no active spool file. It is a programming-contract
// violation and is never silently ignored.
type StateError struct {
	Op string
}

func (e *StateError) Error() string { return fmt.Sprintf("spool %s: no active spool file", e.Op) }

// CorruptionError indicates a spooled line failed to decode under the
// current schema. It is fatal for the replay: the remainder of the spool
// cannot be trusted, so no partial recovery is attempted.
type CorruptionError struct {
	Line int
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("spool corruption at line %d: %s", e.Line, e.Err)
}
func (e *CorruptionError) Unwrap() error { return e.Err }
