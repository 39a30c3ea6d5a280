package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hbomb79/Tasaveer/internal/classify"
	"github.com/hbomb79/Tasaveer/internal/media"
	"github.com/hbomb79/Tasaveer/internal/process"
	"github.com/hbomb79/Tasaveer/internal/tools"
	"github.com/hbomb79/Tasaveer/pkg/logger"
	"golang.org/x/sync/errgroup"
)

type step struct {
	status  Status
	message string
	perform func(*Run, Toolkit) error
}

// execute runs each pipeline step in order on the run's own goroutine.
// Any step error other than cancellation moves the run to error.
func (orchestrator *Orchestrator) execute(run *Run, toolkit Toolkit) {
	defer orchestrator.unwind(run)
	defer run.cancel()

	steps := []step{
		{Scanning, "Scanning source", orchestrator.scan},
		{Copying, "Copying to staging", orchestrator.copy},
		{Tagging, "Writing keywords", orchestrator.tag},
		{Organizing, "Organising by date", orchestrator.organize},
	}

	for _, s := range steps {
		if !orchestrator.transition(run, s.status, s.message) {
			return
		}

		orchestrator.logf(run, "%s...", s.message)
		if err := s.perform(run, toolkit); err != nil {
			if errors.Is(err, errCancelled) || orchestrator.cancelled(run) {
				log.Emit(logger.DEBUG, "Step %s of ingest %s stopped after cancellation\n", s.status, run.ID)
				return
			}

			orchestrator.fail(run, err)
			return
		}
	}

	orchestrator.cleanup(run, toolkit)
	if !orchestrator.transition(run, Success, "Ingest complete") {
		return
	}

	orchestrator.logf(run, "Ingest complete")
	log.Emit(logger.SUCCESS, "Ingest %s completed\n", run.ID)
	orchestrator.logs.SetActive(false)
}

func (orchestrator *Orchestrator) scan(run *Run, _ Toolkit) error {
	records, err := orchestrator.scanner.Scan(run.ctx, run.Source)
	if orchestrator.cancelled(run) {
		return errCancelled
	}
	if err != nil {
		return fmt.Errorf("failed to scan source: %w", err)
	}

	result := classify.Classify(records, run.Source, orchestrator.tags.Snapshot())
	orchestrator.logf(run, "Found %d media files", result.Total)
	for _, group := range result.Cameras {
		if group.TagName != "" {
			orchestrator.logf(run, "  %s: %d files (tag: %s)", group.Key, group.Count, group.TagName)
		} else {
			orchestrator.logf(run, "  %s: %d files", group.Key, group.Count)
		}
	}

	return nil
}

func (orchestrator *Orchestrator) copy(run *Run, toolkit Toolkit) error {
	return orchestrator.runTracked(run, "copy", func(ctx context.Context) (*process.Handle, error) {
		return toolkit.Copier.Transfer(ctx, tools.Transfer{
			Source:      run.Source,
			Destination: run.StagingDir,
			DateFormat:  run.DateFormat,
		})
	})
}

// tag re-scans the staged copy, writes the filename date of any file with
// no capture date, then writes keywords to every staged file with a camera
// or directory tag. A file which cannot be updated is reported and skipped.
func (orchestrator *Orchestrator) tag(run *Run, toolkit Toolkit) error {
	records, err := orchestrator.scanner.Scan(run.ctx, run.StagingDir)
	if orchestrator.cancelled(run) {
		return errCancelled
	}
	if err != nil {
		return fmt.Errorf("failed to scan staging: %w", err)
	}

	orchestrator.writeDates(run, toolkit, records)
	if orchestrator.cancelled(run) {
		return errCancelled
	}

	assignments := classify.Assign(records, run.StagingDir, orchestrator.tags.Snapshot())
	if len(assignments) == 0 {
		orchestrator.logf(run, "No staged files matched a tag")
		return nil
	}
	if toolkit.Keywords == nil {
		orchestrator.logf(run, "Warning: no keyword writer available, skipping tagging of %d files", len(assignments))
		return nil
	}

	orchestrator.logf(run, "Tagging %d of %d staged files", len(assignments), len(records))

	paths := make([]string, len(assignments))
	for i, assignment := range assignments {
		paths[i] = assignment.Path
	}
	failed := orchestrator.forEachFile(run, paths, "could not tag", func(ctx context.Context, i int) error {
		if err := toolkit.Keywords.WriteKeywords(ctx, paths[i], assignments[i].Keywords); err != nil {
			return err
		}

		log.Emit(logger.VERBOSE, "Tagged %s with %v\n", paths[i], assignments[i].Keywords)
		return nil
	})
	if orchestrator.cancelled(run) {
		return errCancelled
	}

	if failed > 0 {
		orchestrator.logf(run, "Tagged %d files, %d could not be tagged", len(assignments)-failed, failed)
	} else {
		orchestrator.logf(run, "Tagged %d files", len(assignments))
	}

	return nil
}

// writeDates embeds the filename date in every staged file whose metadata
// carries no capture date, so that it is organised by when it was taken
// rather than when it was last modified.
func (orchestrator *Orchestrator) writeDates(run *Run, toolkit Toolkit, records []media.FileRecord) {
	missing := make([]media.FileRecord, 0)
	for _, record := range records {
		if !record.HasDate && record.ExtractedDate != nil {
			missing = append(missing, record)
		}
	}
	if len(missing) == 0 {
		return
	}
	if toolkit.Dates == nil {
		orchestrator.logf(run, "Warning: no date writer available, %d files without a capture date will be organised by modification time", len(missing))
		return
	}

	paths := make([]string, len(missing))
	for i, record := range missing {
		paths[i] = record.Path
	}
	failed := orchestrator.forEachFile(run, paths, "could not write capture date to", func(ctx context.Context, i int) error {
		taken := missing[i].ExtractedDate.Timestamp()
		if err := toolkit.Dates.WriteDate(ctx, paths[i], taken); err != nil {
			return err
		}

		log.Emit(logger.VERBOSE, "Wrote capture date %s (%s) to %s\n", taken, missing[i].ExtractedDate.Pattern, paths[i])
		return nil
	})

	orchestrator.logf(run, "Wrote capture dates to %d of %d files without one", len(missing)-failed, len(missing))
}

// forEachFile calls apply for every path on a pool of TaggingWorkers
// goroutines. Each failure is logged as a warning, unless the run was
// cancelled, and the number of failures is returned.
func (orchestrator *Orchestrator) forEachFile(run *Run, paths []string, warning string, apply func(context.Context, int) error) int {
	var failed atomic.Int32
	var group errgroup.Group
	group.SetLimit(max(orchestrator.config.TaggingWorkers, 1))
	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			if run.ctx.Err() != nil {
				return nil
			}

			if err := apply(run.ctx, i); err != nil && run.ctx.Err() == nil {
				failed.Add(1)
				orchestrator.logf(run, "Warning: %s %s: %v", warning, path, err)
			}
			return nil
		})
	}
	_ = group.Wait()

	return int(failed.Load())
}

func (orchestrator *Orchestrator) organize(run *Run, toolkit Toolkit) error {
	return orchestrator.runTracked(run, "organize", func(ctx context.Context) (*process.Handle, error) {
		return toolkit.Organizer.Transfer(ctx, tools.Transfer{
			Source:      run.StagingDir,
			Destination: run.Destination,
			DateFormat:  run.DateFormat,
			Move:        true,
		})
	})
}

// cleanup removes the staging directory. Failing to do so leaves the
// archive intact, so it is only reported.
func (orchestrator *Orchestrator) cleanup(run *Run, toolkit Toolkit) {
	cleaner := toolkit.Cleaner
	if cleaner == nil {
		cleaner = tools.NativeCleaner{}
	}

	if err := cleaner.RemoveTree(run.ctx, run.StagingDir); err != nil {
		log.Emit(logger.WARNING, "Failed to remove staging %s: %v\n", run.StagingDir, err)
		orchestrator.logf(run, "Warning: could not remove staging directory %s: %v", run.StagingDir, err)
		return
	}

	orchestrator.logf(run, "Removed staging directory")
}

// runTracked spawns a process while holding the run lock, so that a
// concurrent Cancel either prevents the spawn or sees the process in the
// tracked set and kills it. Output is forwarded to the log until the
// process exits.
func (orchestrator *Orchestrator) runTracked(run *Run, label string, spawn func(context.Context) (*process.Handle, error)) error {
	orchestrator.mu.Lock()
	if run.cancelRequested {
		orchestrator.mu.Unlock()
		return errCancelled
	}

	handle, err := spawn(run.ctx)
	if err != nil {
		orchestrator.mu.Unlock()
		return fmt.Errorf("%s step could not start: %w", label, err)
	}
	run.tracked[handle.ID()] = handle
	orchestrator.mu.Unlock()

	log.Emit(logger.DEBUG, "Tracking %s for step %s of ingest %s\n", handle, label, run.ID)
	forwarded := orchestrator.logs.Attach(handle)
	status := handle.Wait()
	<-forwarded

	orchestrator.mu.Lock()
	delete(run.tracked, handle.ID())
	cancelled := run.cancelRequested
	orchestrator.mu.Unlock()

	if cancelled {
		return errCancelled
	}
	if !status.Success() {
		return &process.ExitError{Command: label, Status: status}
	}

	return nil
}
