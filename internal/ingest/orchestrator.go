package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Tasaveer/internal/activity"
	"github.com/hbomb79/Tasaveer/internal/classify"
	"github.com/hbomb79/Tasaveer/internal/event"
	"github.com/hbomb79/Tasaveer/internal/media"
	"github.com/hbomb79/Tasaveer/internal/process"
	"github.com/hbomb79/Tasaveer/internal/tags"
	"github.com/hbomb79/Tasaveer/internal/tools"
	"github.com/hbomb79/Tasaveer/pkg/logger"
)

var log = logger.Get("Ingest")

type (
	Scanner interface {
		Scan(ctx context.Context, root string) ([]media.FileRecord, error)
	}

	TagSource interface {
		Snapshot() *tags.Snapshot
	}

	Transferer interface {
		Transfer(ctx context.Context, req tools.Transfer) (*process.Handle, error)
	}

	// Toolkit is the set of external tools used by a single run.
	Toolkit struct {
		Copier    Transferer
		Organizer Transferer
		Keywords  tools.KeywordWriter
		// Dates may be nil, in which case files without a capture date are
		// organised by whatever date the organiser falls back to.
		Dates   tools.DateWriter
		Cleaner tools.Cleaner
	}

	// ToolkitFactory resolves the tools for a run. It is called once
	// at the start of every run so that a tool installed while the
	// service is running is picked up by the next run.
	ToolkitFactory func() (Toolkit, error)

	// Request describes the ingest a caller would like to perform.
	Request struct {
		Source      string `json:"source" validate:"required"`
		Destination string `json:"destination" validate:"required"`
		DateFormat  string `json:"date_format"`
	}

	// Orchestrator owns the single ingest run of this process, sequencing
	// the pipeline steps and supervising the processes they spawn.
	Orchestrator struct {
		mu      sync.Mutex
		run     *Run
		runID   atomic.Pointer[uuid.UUID]
		logs    *activity.Aggregator
		bus     event.EventDispatcher
		tags    TagSource
		scanner Scanner
		toolkit ToolkitFactory
		config  Config
		goos    string
	}

	// Run is the state of one ingest. It is only mutated with the owning
	// orchestrator's lock held.
	Run struct {
		ID          uuid.UUID
		Source      string
		Destination string
		StagingDir  string
		DateFormat  string
		StartedAt   time.Time

		status          Status
		cancelRequested bool
		tracked         map[uuid.UUID]*process.Handle
		err             error
		ctx             context.Context
		cancel          context.CancelFunc
		// unwound is closed once the pipeline goroutine has returned, and
		// done once the run has settled in its final state.
		unwound chan struct{}
		done    chan struct{}
	}

	// RunSnapshot is a point-in-time copy of the current run, safe to
	// hand to observers.
	RunSnapshot struct {
		ID               uuid.UUID `json:"id"`
		Status           Status    `json:"status"`
		CancelRequested  bool      `json:"cancel_requested"`
		Source           string    `json:"source,omitempty"`
		Destination      string    `json:"destination,omitempty"`
		StagingDir       string    `json:"staging_dir,omitempty"`
		StartedAt        time.Time `json:"started_at,omitempty"`
		Error            string    `json:"error,omitempty"`
		TrackedProcesses []string  `json:"tracked_processes"`
		Log              []string  `json:"log"`
	}
)

// New creates an orchestrator. Its Run method must be running before a
// run is started, as it hosts the log aggregator.
func New(config Config, bus event.EventDispatcher, tagSource TagSource, scanner Scanner, toolkit ToolkitFactory) *Orchestrator {
	orchestrator := &Orchestrator{
		bus:     bus,
		tags:    tagSource,
		scanner: scanner,
		toolkit: toolkit,
		config:  config,
		goos:    runtime.GOOS,
	}
	orchestrator.logs = activity.New(config.FlushInterval, orchestrator.publishLogs)

	return orchestrator
}

// Run hosts the log aggregator until the context is cancelled. Any run
// still active at that point is cancelled and awaited before the
// aggregator is stopped.
func (orchestrator *Orchestrator) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	loopErr := make(chan error, 1)
	go func() { loopErr <- orchestrator.logs.Run(loopCtx) }()

	log.Emit(logger.NEW, "Ingest orchestrator started\n")
	select {
	case <-ctx.Done():
	case err := <-loopErr:
		return err
	}

	if err := orchestrator.Cancel(); err == nil {
		log.Emit(logger.WARNING, "Cancelled active ingest during shutdown\n")
	}
	<-orchestrator.Done()

	stopLoop()
	log.Emit(logger.STOP, "Ingest orchestrator stopped\n")
	return <-loopErr
}

// Start validates the request and begins a new run in the background,
// returning its ID. A request that fails validation still produces a run
// in the error state so that its log explains the failure.
func (orchestrator *Orchestrator) Start(req Request) (uuid.UUID, error) {
	orchestrator.mu.Lock()
	if prev := orchestrator.run; prev != nil && !prev.finished() {
		orchestrator.mu.Unlock()
		return uuid.Nil, ErrRunActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{
		ID:          uuid.New(),
		Source:      req.Source,
		Destination: req.Destination,
		DateFormat:  req.DateFormat,
		StartedAt:   time.Now(),
		status:      Idle,
		tracked:     make(map[uuid.UUID]*process.Handle),
		ctx:         ctx,
		cancel:      cancel,
		unwound:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	if run.DateFormat == "" {
		run.DateFormat = orchestrator.config.DateFormat
	}
	orchestrator.run = run
	orchestrator.runID.Store(&run.ID)
	orchestrator.mu.Unlock()

	orchestrator.logs.Reset()
	orchestrator.logs.Pushf("Starting ingest of %s in to %s", req.Source, req.Destination)

	if err := orchestrator.validate(req); err != nil {
		orchestrator.fail(run, err)
		orchestrator.unwind(run)
		return uuid.Nil, err
	}
	orchestrator.mu.Lock()
	run.StagingDir = filepath.Join(req.Destination, orchestrator.config.StagingDirName)
	orchestrator.mu.Unlock()

	toolkit, err := orchestrator.toolkit()
	if err != nil {
		orchestrator.fail(run, err)
		orchestrator.unwind(run)
		return uuid.Nil, err
	}

	// A Cancel which landed while the request was being prepared is
	// waiting for the run to unwind, so the pipeline is never started.
	orchestrator.mu.Lock()
	cancelled := run.cancelRequested
	orchestrator.mu.Unlock()
	if cancelled {
		orchestrator.unwind(run)
		return run.ID, nil
	}

	log.Emit(logger.NEW, "Starting ingest %s (%s -> %s)\n", run.ID, run.Source, run.Destination)
	orchestrator.logs.SetActive(true)
	go orchestrator.execute(run, toolkit)

	return run.ID, nil
}

func (orchestrator *Orchestrator) validate(req Request) error {
	if err := validateSource(req.Source); err != nil {
		return err
	}
	if err := validateDestination(orchestrator.goos, req.Destination); err != nil {
		return err
	}

	return validateDisjoint(req.Source, req.Destination)
}

// Cancel stops the active run: every tracked process is killed and the
// run's goroutine is allowed to unwind before the log is sealed with a
// cancellation entry and the run returns to idle. Once Cancel returns a
// new run may be started.
func (orchestrator *Orchestrator) Cancel() error {
	orchestrator.mu.Lock()
	run := orchestrator.run
	if run == nil || run.cancelRequested || run.status.IsTerminal() || run.finished() {
		orchestrator.mu.Unlock()
		return ErrNoActiveRun
	}

	run.cancelRequested = true
	run.cancel()
	handles := run.trackedHandles()
	run.tracked = make(map[uuid.UUID]*process.Handle)
	orchestrator.mu.Unlock()

	log.Emit(logger.STOP, "Cancelling ingest %s\n", run.ID)
	outcomes := make([]string, 0, len(handles))
	for _, handle := range handles {
		if err := handle.Kill(); err != nil {
			log.Emit(logger.ERROR, "Failed to kill %s: %v\n", handle, err)
			outcomes = append(outcomes, fmt.Sprintf("Failed to stop %s: %v", handle.Name(), err))
			continue
		}

		outcomes = append(outcomes, fmt.Sprintf("Stopped %s", handle.Name()))
	}

	// Output of the killed processes is forwarded until their steps
	// return, so nothing is written after the run has unwound.
	<-run.unwound

	orchestrator.logs.Push("Cancelling ingest...")
	for _, outcome := range outcomes {
		orchestrator.logs.Push(outcome)
	}
	orchestrator.logs.Seal("Ingest cancelled")

	orchestrator.mu.Lock()
	run.status = Idle
	orchestrator.mu.Unlock()
	orchestrator.dispatchStatus(run, Idle, "cancelled")
	orchestrator.logs.SetActive(false)
	close(run.done)

	return nil
}

// Status returns a snapshot of the current (or most recent) run.
func (orchestrator *Orchestrator) Status() RunSnapshot {
	orchestrator.mu.Lock()
	defer orchestrator.mu.Unlock()

	snapshot := RunSnapshot{Status: Idle, TrackedProcesses: make([]string, 0)}
	if run := orchestrator.run; run != nil {
		snapshot.ID = run.ID
		snapshot.Status = run.status
		snapshot.CancelRequested = run.cancelRequested
		snapshot.Source = run.Source
		snapshot.Destination = run.Destination
		snapshot.StagingDir = run.StagingDir
		snapshot.StartedAt = run.StartedAt
		if run.err != nil {
			snapshot.Error = run.err.Error()
		}
		for _, handle := range run.trackedHandles() {
			snapshot.TrackedProcesses = append(snapshot.TrackedProcesses, handle.Name())
		}
	}
	snapshot.Log = orchestrator.logs.Lines()

	return snapshot
}

// Done returns a channel which is closed once the current run has settled:
// its pipeline has stopped and, for a cancelled run, the log is sealed. If
// no run has been started the channel is already closed.
func (orchestrator *Orchestrator) Done() <-chan struct{} {
	orchestrator.mu.Lock()
	defer orchestrator.mu.Unlock()

	if orchestrator.run == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}

	return orchestrator.run.done
}

// Wait blocks until the current run has stopped, returning its final
// snapshot.
func (orchestrator *Orchestrator) Wait(ctx context.Context) (RunSnapshot, error) {
	select {
	case <-orchestrator.Done():
		orchestrator.logs.Sync()
		return orchestrator.Status(), nil
	case <-ctx.Done():
		return RunSnapshot{}, ctx.Err()
	}
}

// Logs exposes the user-visible log of the current run.
func (orchestrator *Orchestrator) Logs() *activity.Aggregator {
	return orchestrator.logs
}

// ScanForTags is the pre-flight step: it scans the source and groups its
// files by camera and directory against the current tags, without
// touching any run state.
func (orchestrator *Orchestrator) ScanForTags(ctx context.Context, source string) (classify.Result, error) {
	if err := validateSource(source); err != nil {
		return classify.Result{}, err
	}

	records, err := orchestrator.scanner.Scan(ctx, source)
	if err != nil {
		return classify.Result{}, fmt.Errorf("failed to scan %s: %w", source, err)
	}

	return classify.Classify(records, source, orchestrator.tags.Snapshot()), nil
}

// transition moves the run to the given status, dispatching the change.
// It reports false, leaving the run untouched, if the run has been
// cancelled or the move is not permitted.
func (orchestrator *Orchestrator) transition(run *Run, to Status, message string) bool {
	orchestrator.mu.Lock()
	if run.cancelRequested {
		orchestrator.mu.Unlock()
		return false
	}
	if !isAllowedTransition(run.status, to) {
		from := run.status
		orchestrator.mu.Unlock()
		log.Emit(logger.ERROR, "Illegal ingest transition %s -> %s for run %s\n", from, to, run.ID)
		return false
	}
	run.status = to
	orchestrator.mu.Unlock()

	log.Emit(logger.INFO, "Ingest %s is now %s\n", run.ID, to)
	orchestrator.dispatchStatus(run, to, message)
	return true
}

// fail moves the run to the error state. The staging directory is left
// in place so that nothing already copied is lost.
func (orchestrator *Orchestrator) fail(run *Run, err error) {
	orchestrator.mu.Lock()
	if run.cancelRequested {
		orchestrator.mu.Unlock()
		return
	}
	run.tracked = make(map[uuid.UUID]*process.Handle)
	run.status = Error
	run.err = err
	staging := run.StagingDir
	orchestrator.mu.Unlock()

	log.Emit(logger.ERROR, "Ingest %s failed: %v\n", run.ID, err)
	orchestrator.logs.Pushf("Error: %v", err)
	if staging != "" {
		orchestrator.logs.Pushf("Staged files (if any) have been left in %s", staging)
	}
	// Flushed first so that observers of the status change see the
	// complete log.
	orchestrator.logs.SetActive(false)
	orchestrator.dispatchStatus(run, Error, err.Error())
}

// logf pushes a line to the run's log unless the run has been cancelled.
func (orchestrator *Orchestrator) logf(run *Run, format string, args ...any) {
	if orchestrator.cancelled(run) {
		return
	}

	orchestrator.logs.Pushf(format, args...)
}

func (orchestrator *Orchestrator) dispatchStatus(run *Run, status Status, message string) {
	if orchestrator.bus == nil {
		return
	}

	orchestrator.bus.Dispatch(event.INGEST_STATUS, event.StatusChange{RunID: run.ID, Status: status.String(), Message: message})
}

func (orchestrator *Orchestrator) publishLogs(batch []string) {
	if orchestrator.bus == nil {
		return
	}

	var id uuid.UUID
	if current := orchestrator.runID.Load(); current != nil {
		id = *current
	}
	orchestrator.bus.Dispatch(event.INGEST_LOG, event.LogBatch{RunID: id, Lines: batch})
}

func (orchestrator *Orchestrator) cancelled(run *Run) bool {
	orchestrator.mu.Lock()
	defer orchestrator.mu.Unlock()
	return run.cancelRequested
}

// unwind records that the run's pipeline has stopped. The run settles here
// unless it is being cancelled, in which case Cancel settles it once the
// log is sealed.
func (orchestrator *Orchestrator) unwind(run *Run) {
	orchestrator.mu.Lock()
	defer orchestrator.mu.Unlock()

	close(run.unwound)
	if !run.cancelRequested {
		close(run.done)
	}
}

func (run *Run) finished() bool {
	select {
	case <-run.done:
		return true
	default:
		return false
	}
}

// trackedHandles returns the tracked processes in a stable order.
func (run *Run) trackedHandles() []*process.Handle {
	handles := make([]*process.Handle, 0, len(run.tracked))
	for _, handle := range run.tracked {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool {
		return handles[i].ID().String() < handles[j].ID().String()
	})

	return handles
}
