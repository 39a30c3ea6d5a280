package ingest

import "fmt"

type Status int

const (
	Idle Status = iota
	Scanning
	Copying
	Tagging
	Organizing
	Success
	Error
)

func (s Status) Values() []string {
	return []string{"idle", "scanning", "copying", "tagging", "organizing", "success", "error"}
}

func (s Status) String() string {
	if s < Idle || s > Error {
		return fmt.Sprintf("UNKNOWN[%d]", int(s))
	}

	return s.Values()[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// IsActive reports whether a run in this state is still executing.
func (s Status) IsActive() bool {
	switch s {
	case Scanning, Copying, Tagging, Organizing:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a run in this state has finished.
func (s Status) IsTerminal() bool {
	return s == Success || s == Error
}

// isAllowedTransition encodes the pipeline's state machine. Any state may
// return to idle via cancellation.
func isAllowedTransition(from, to Status) bool {
	if to == Idle {
		return true
	}

	switch from {
	case Idle:
		return to == Scanning || to == Error
	case Scanning:
		return to == Copying || to == Error
	case Copying:
		return to == Tagging || to == Error
	case Tagging:
		return to == Organizing || to == Error
	case Organizing:
		return to == Success || to == Error
	default:
		return false
	}
}
