package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Tasaveer/internal/ingest"
	"github.com/hbomb79/Tasaveer/pkg/logger"
	"github.com/hbomb79/Tasaveer/pkg/sync"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("Watcher")

type (
	// Config contains configuration options that allow
	// customization of how Tasaveer detects sources to auto-ingest.
	Config struct {
		// When a change is detected, a copy from a camera card or phone is
		// likely still in progress. As we cannot KNOW when it is complete, we
		// instead wait for the source to be quiet for this long before
		// starting an ingest.
		QuietPeriod time.Duration `yaml:"quiet_period" env:"WATCH_QUIET_PERIOD" env-default:"30s"`
	}

	// Target is a source folder to watch and the archive it ingests in to.
	Target struct {
		Source      string `yaml:"source" validate:"required"`
		Destination string `yaml:"destination" validate:"required"`
		DateFormat  string `yaml:"date_format"`
	}

	Starter interface {
		Start(ingest.Request) (uuid.UUID, error)
	}

	// Watcher starts an ingest of a target each time its source folder
	// settles after a change.
	Watcher struct {
		config  Config
		starter Starter
		targets []Target
		timers  sync.TypedSyncMap[string, *time.Timer]
		trigger chan Target
		done    chan struct{}
	}
)

func New(config Config, starter Starter, targets ...Target) *Watcher {
	return &Watcher{
		config:  config,
		starter: starter,
		targets: targets,
		trigger: make(chan Target),
		done:    make(chan struct{}),
	}
}

// Run watches every target's source recursively until the context is
// cancelled.
func (watcher *Watcher) Run(ctx context.Context) error {
	defer close(watcher.done)

	events := make(chan notify.EventInfo, 128)
	defer notify.Stop(events)
	defer watcher.stopTimers()

	for i, target := range watcher.targets {
		// Events report resolved paths, e.g. /private/var rather than /var on macOS.
		if resolved, err := filepath.EvalSymlinks(target.Source); err == nil {
			watcher.targets[i].Source = resolved
		}

		if err := notify.Watch(filepath.Join(watcher.targets[i].Source, "..."), events, notify.Create, notify.Write, notify.Rename, notify.Remove); err != nil {
			return fmt.Errorf("failed to watch %s: %w", target.Source, err)
		}
		log.Emit(logger.NEW, "Watching %s for new media (quiet period %s)\n", target.Source, watcher.config.QuietPeriod)
	}

	for {
		select {
		case ev := <-events:
			target, ok := watcher.targetFor(ev.Path())
			if !ok || strings.HasPrefix(filepath.Base(ev.Path()), ".") {
				continue
			}

			log.Emit(logger.VERBOSE, "Change %s at %s\n", ev.Event(), ev.Path())
			watcher.arm(target)
		case target := <-watcher.trigger:
			watcher.ingest(target)
		case <-ctx.Done():
			return nil
		}
	}
}

// arm (re)starts the quiet-period timer for the target.
func (watcher *Watcher) arm(target Target) {
	if timer, ok := watcher.timers.Load(target.Source); ok {
		timer.Reset(watcher.config.QuietPeriod)
		return
	}

	watcher.timers.Store(target.Source, time.AfterFunc(watcher.config.QuietPeriod, func() {
		select {
		case watcher.trigger <- target:
		case <-watcher.done:
		}
	}))
}

func (watcher *Watcher) ingest(target Target) {
	id, err := watcher.starter.Start(ingest.Request{
		Source:      target.Source,
		Destination: target.Destination,
		DateFormat:  target.DateFormat,
	})

	switch {
	case err == nil:
		log.Emit(logger.SUCCESS, "Started ingest %s of %s\n", id, target.Source)
	case errors.Is(err, ingest.ErrRunActive):
		log.Emit(logger.INFO, "Ingest already running, will retry %s after %s\n", target.Source, watcher.config.QuietPeriod)
		watcher.arm(target)
	default:
		log.Emit(logger.ERROR, "Failed to start ingest of %s: %v\n", target.Source, err)
	}
}

// targetFor returns the target whose source contains path, preferring
// the most specific when sources are nested.
func (watcher *Watcher) targetFor(path string) (Target, bool) {
	var (
		best  Target
		found bool
	)
	for _, target := range watcher.targets {
		rel, err := filepath.Rel(target.Source, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}

		if !found || len(target.Source) > len(best.Source) {
			best, found = target, true
		}
	}

	return best, found
}

func (watcher *Watcher) stopTimers() {
	watcher.timers.Range(func(source string, timer *time.Timer) bool {
		timer.Stop()
		watcher.timers.Delete(source)
		return true
	})
}
