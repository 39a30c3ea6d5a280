package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/Tasaveer/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.Get("Process")

const (
	lineBufferSize = 256
	maxLineLength  = 1024 * 1024
)

// ExitStatus is the terminal state of a process. A nil Code means the
// process did not exit on its own (it was killed or terminated by a signal).
type ExitStatus struct {
	Code *int
}

func (s ExitStatus) Killed() bool  { return s.Code == nil }
func (s ExitStatus) Success() bool { return s.Code != nil && *s.Code == 0 }

func (s ExitStatus) String() string {
	if s.Code == nil {
		return "was killed"
	}

	return fmt.Sprintf("exited with code %d", *s.Code)
}

// Handle is a running (or finished) external process. Output from stdout
// and stderr is merged, line by line, in to a single bounded channel.
type Handle struct {
	id      uuid.UUID
	command string
	args    []string
	cmd     *exec.Cmd
	lines   chan string
	done    chan struct{}

	mu     sync.Mutex
	exited bool
	status ExitStatus
}

// Spawn starts the command. The returned handle's Lines channel must be
// drained, otherwise the process will block once its output fills the
// buffer.
func Spawn(command string, args ...string) (*Handle, error) {
	cmd := exec.Command(command, args...)
	configureCommand(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	handle := &Handle{
		id:      uuid.New(),
		command: command,
		args:    args,
		cmd:     cmd,
		lines:   make(chan string, lineBufferSize),
		done:    make(chan struct{}),
	}
	log.Emit(logger.DEBUG, "Spawned %s\n", handle)

	go handle.supervise(stdout, stderr)
	return handle, nil
}

func (handle *Handle) supervise(stdout io.Reader, stderr io.Reader) {
	var g errgroup.Group
	g.Go(func() error { return handle.pump(stdout) })
	g.Go(func() error { return handle.pump(stderr) })
	if err := g.Wait(); err != nil {
		log.Emit(logger.WARNING, "Output of %s could not be fully read: %v\n", handle, err)
	}
	close(handle.lines)

	waitErr := handle.cmd.Wait()
	status := ExitStatus{}
	if state := handle.cmd.ProcessState; state != nil && state.ExitCode() >= 0 {
		code := state.ExitCode()
		status.Code = &code
	} else if waitErr != nil {
		log.Emit(logger.DEBUG, "Wait for %s returned: %v\n", handle, waitErr)
	}

	handle.mu.Lock()
	handle.exited = true
	handle.status = status
	handle.mu.Unlock()

	if !status.Success() {
		log.Emit(logger.WARNING, "Process %s %s\n", handle, status)
	} else {
		log.Emit(logger.DEBUG, "Process %s %s\n", handle, status)
	}

	close(handle.done)
}

func (handle *Handle) pump(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		handle.lines <- strings.TrimRight(scanner.Text(), "\r")
	}

	// A pipe closed underneath us by a kill is expected.
	err := scanner.Err()
	if err == nil || errors.Is(err, os.ErrClosed) {
		return nil
	}

	// Anything left must still be read, otherwise the process blocks
	// writing to a full pipe and never exits.
	if _, drainErr := io.Copy(io.Discard, r); drainErr != nil && !errors.Is(drainErr, os.ErrClosed) {
		log.Emit(logger.DEBUG, "Failed to drain output of %s: %v\n", handle, drainErr)
	}

	return err
}

func (handle *Handle) ID() uuid.UUID { return handle.id }

// Name is the base name of the spawned binary.
func (handle *Handle) Name() string { return filepath.Base(handle.command) }

// Lines yields every line of output. It is closed once both output streams
// have been exhausted, which happens before Done is closed.
func (handle *Handle) Lines() <-chan string { return handle.lines }

// Done is closed once the process has terminated and its status is known.
func (handle *Handle) Done() <-chan struct{} { return handle.done }

// Wait blocks until the process terminates. The caller must be draining
// Lines (or have arranged for it to be drained).
func (handle *Handle) Wait() ExitStatus {
	<-handle.done
	return handle.Status()
}

// Status returns the exit status, which is only meaningful once Exited
// reports true.
func (handle *Handle) Status() ExitStatus {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.status
}

func (handle *Handle) Exited() bool {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.exited
}

// Kill terminates the process and any children it started. Killing a
// process which has already exited is a no-op.
func (handle *Handle) Kill() error {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	if handle.exited {
		return nil
	}

	if err := killTree(handle.cmd); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}

		return &KillError{PID: handle.cmd.Process.Pid, Err: err}
	}

	log.Emit(logger.STOP, "Killed %s\n", handle)
	return nil
}

func (handle *Handle) String() string {
	pid := -1
	if handle.cmd.Process != nil {
		pid = handle.cmd.Process.Pid
	}

	return fmt.Sprintf("{%s pid=%d | args=%v}", handle.Name(), pid, handle.args)
}

// Result is the collected output of a process run to completion.
type Result struct {
	Lines  []string
	Status ExitStatus
}

// Run spawns the command, collects its output and waits for it to finish.
// Cancelling the context kills the process. A non-zero exit is returned as
// an *ExitError alongside the collected output.
func Run(ctx context.Context, command string, args ...string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	handle, err := Spawn(command, args...)
	if err != nil {
		return Result{}, err
	}

	result := Result{Lines: make([]string, 0)}
	lines, cancelled := handle.Lines(), ctx.Done()
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			result.Lines = append(result.Lines, line)
		case <-cancelled:
			if err := handle.Kill(); err != nil {
				log.Emit(logger.ERROR, "Failed to kill %s after cancellation: %v\n", handle, err)
			}
			// Keep draining so the supervisor can observe the exit.
			cancelled = nil
		}
	}

	result.Status = handle.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if !result.Status.Success() {
		return result, &ExitError{Command: handle.Name(), Status: result.Status}
	}

	return result, nil
}
