package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrRunActive   = errors.New("an ingest is already running")
	ErrNoActiveRun = errors.New("no ingest is running")

	// errCancelled is returned by pipeline steps that stopped because the
	// run was cancelled. Cancel has already moved the run to idle.
	errCancelled = errors.New("ingest cancelled")
)

// ValidationError describes a request rejected before any work started.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
