package process

import (
	"errors"
	"fmt"
)

var ErrToolNotFound = errors.New("tool could not be found")

// SpawnError is returned when an external program could not be started,
// usually because the binary is missing or not executable.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError describes a process which ran but did not exit successfully.
type ExitError struct {
	Command string
	Status  ExitStatus
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s %s", e.Command, e.Status)
}

// KillError is returned when the operating system refuses to terminate a
// running process.
type KillError struct {
	PID int
	Err error
}

func (e *KillError) Error() string {
	return fmt.Sprintf("failed to kill process %d: %v", e.PID, e.Err)
}

func (e *KillError) Unwrap() error { return e.Err }
