package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hbomb79/Tasaveer/internal/api"
	"github.com/hbomb79/Tasaveer/internal/event"
	"github.com/hbomb79/Tasaveer/internal/ingest"
	"github.com/hbomb79/Tasaveer/internal/media"
	"github.com/hbomb79/Tasaveer/internal/process"
	"github.com/hbomb79/Tasaveer/internal/settings"
	"github.com/hbomb79/Tasaveer/internal/tags"
	"github.com/hbomb79/Tasaveer/internal/tools"
	"github.com/hbomb79/Tasaveer/internal/watch"
	"github.com/hbomb79/Tasaveer/pkg/logger"
)

var log = logger.Get("Core")

// failureTailLines is how much of a failed run's log is repeated on the
// console when nothing else is showing it.
const failureTailLines = 10

type (
	RunnableService interface {
		Run(context.Context) error
	}

	labelledService struct {
		label   string
		service RunnableService
	}
)

// Tasaveer represents the top-level object for the application, and is
// responsible for constructing the stores and services and running them
// for the lifetime of a command.
type tasaveerImpl struct {
	eventBus event.EventCoordinator
	config   TasaveerConfig
	resolver *process.Resolver

	tagStore     *tags.Store
	orchestrator *ingest.Orchestrator
}

func New(config TasaveerConfig) *tasaveerImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Tasaveer using config: %#v\n", config)
	tasaveer := &tasaveerImpl{
		eventBus: event.New(),
		config:   config,
		resolver: process.NewResolver(config.Tools.Paths, config.Tools.BundleDir),
		tagStore: tags.NewStore(settings.NewFileStore(config.SettingsPath)),
	}

	scanner := media.NewScanner(tasaveer.metadataReader())
	tasaveer.orchestrator = ingest.New(config.Ingest, tasaveer.eventBus, tasaveer.tagStore, scanner, tasaveer.buildToolkit)

	return tasaveer
}

func (tasaveer *tasaveerImpl) EventBus() event.EventCoordinator   { return tasaveer.eventBus }
func (tasaveer *tasaveerImpl) Tags() *tags.Store                  { return tasaveer.tagStore }
func (tasaveer *tasaveerImpl) Orchestrator() *ingest.Orchestrator { return tasaveer.orchestrator }

// Serve runs the ingest orchestrator behind the REST gateway, along with
// a watcher for any targets in the config. It does not return until the
// context is cancelled or a service crashes.
func (tasaveer *tasaveerImpl) Serve(ctx context.Context) error {
	services := []labelledService{
		{"ingest-orchestrator", tasaveer.orchestrator},
		{"rest-gateway", api.NewRestGateway(&tasaveer.config.RestConfig, tasaveer.orchestrator, tasaveer.tagStore, tasaveer.eventBus)},
	}
	if len(tasaveer.config.Watch.Targets) > 0 {
		services = append(services, labelledService{"folder-watcher", tasaveer.newWatcher(tasaveer.config.Watch.Targets...)})
	}

	tasaveer.reportFailures()
	return tasaveer.run(ctx, services...)
}

// Watch ingests each target whenever its source settles after a change.
func (tasaveer *tasaveerImpl) Watch(ctx context.Context, targets ...watch.Target) error {
	return tasaveer.run(ctx,
		labelledService{"ingest-orchestrator", tasaveer.orchestrator},
		labelledService{"folder-watcher", tasaveer.newWatcher(targets...)},
	)
}

// Ingest performs a single run to completion and returns its final
// snapshot. Cancelling the context cancels the run.
func (tasaveer *tasaveerImpl) Ingest(parent context.Context, req ingest.Request) (ingest.RunSnapshot, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	stopped := make(chan error, 1)
	go func() { stopped <- tasaveer.orchestrator.Run(ctx) }()

	_, startErr := tasaveer.orchestrator.Start(req)
	<-tasaveer.orchestrator.Done()
	tasaveer.orchestrator.Logs().Sync()
	snapshot := tasaveer.orchestrator.Status()

	cancel()
	if err := <-stopped; err != nil {
		return snapshot, err
	}

	return snapshot, startErr
}

// reportFailures repeats the last lines of a failed run's log on the
// console, as a served run's log is otherwise only visible to API clients.
func (tasaveer *tasaveerImpl) reportFailures() {
	tasaveer.eventBus.RegisterAsyncHandlerFunction(event.INGEST_STATUS, func(_ event.Event, payload event.Payload) {
		change := payload.(event.StatusChange)
		if change.Status != ingest.Error.String() {
			return
		}

		logs := tasaveer.orchestrator.Logs()
		logs.Sync()
		log.Emit(logger.ERROR, "Ingest %s failed: %s\n    %s\n", change.RunID, change.Message, strings.Join(logs.Tail(failureTailLines), "\n    "))
	})
}

func (tasaveer *tasaveerImpl) newWatcher(targets ...watch.Target) *watch.Watcher {
	for i := range targets {
		if targets[i].DateFormat == "" {
			targets[i].DateFormat = tasaveer.config.Ingest.DateFormat
		}
	}

	return watch.New(tasaveer.config.Watch.Config, tasaveer.orchestrator, targets...)
}

func (tasaveer *tasaveerImpl) run(parent context.Context, services ...labelledService) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel(fmt.Errorf("%s crashed: %w", label, err))
	}

	wg := &sync.WaitGroup{}
	for _, s := range services {
		tasaveer.spawnAsyncService(ctx, wg, s.service, s.label, crashHandler)
	}
	log.Emit(logger.SUCCESS, "Tasaveer services spawned!\n")

	wg.Wait()

	// Parent cancellation is how services are asked to stop, so only a
	// crash is reported.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the service waitgroup is updated correctly
func (tasaveer *tasaveerImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}

// metadataReader builds the reader used by the scanner according to the
// configured mode. Where exiftool is wanted but cannot be found, the
// native reader is used alone.
func (tasaveer *tasaveerImpl) metadataReader() media.MetadataReader {
	mode := tasaveer.config.Scan.Reader
	if mode == ReaderNative {
		return media.NativeReader{}
	}

	binary, err := tasaveer.resolver.Resolve(tools.Exiftool)
	if err != nil {
		log.Emit(logger.WARNING, "Metadata will be read natively as exiftool is unavailable: %v\n", err)
		return media.NativeReader{}
	}

	exiftool := &tools.ExiftoolReader{Binary: binary}
	if mode == ReaderExiftool {
		return exiftool
	}

	return media.ChainReader{media.NativeReader{}, exiftool}
}

// buildToolkit resolves the external tools for a run. It is called as
// each run starts so that tools installed while Tasaveer is running are
// picked up. Only the copy and organise tools are required.
func (tasaveer *tasaveerImpl) buildToolkit() (ingest.Toolkit, error) {
	config := tasaveer.config.Tools
	copyTemplate, organizeTemplate := config.copyTemplate(), config.organizeTemplate()

	binaries, err := tasaveer.resolver.ResolveAll(copyTemplate.Tool, organizeTemplate.Tool)
	if err != nil {
		return ingest.Toolkit{}, err
	}

	toolkit := ingest.Toolkit{
		Copier:    tools.NewCommandTransferer(binaries[copyTemplate.Tool], copyTemplate),
		Organizer: tools.NewCommandTransferer(binaries[organizeTemplate.Tool], organizeTemplate),
		Cleaner:   tools.NativeCleaner{},
	}

	exiftool, exiftoolErr := tasaveer.resolver.Resolve(tools.Exiftool)
	if exiftoolErr == nil {
		toolkit.Dates = &tools.ExiftoolDateWriter{Binary: exiftool}
	} else {
		log.Emit(logger.WARNING, "Capture dates will not be written as exiftool is unavailable: %v\n", exiftoolErr)
	}

	if !config.DisableKeywords {
		router := &tools.KeywordRouter{
			ByExtension: map[string]tools.KeywordWriter{".mp3": tools.ID3KeywordWriter{}},
		}
		if exiftoolErr == nil {
			router.Default = &tools.ExiftoolKeywordWriter{Binary: exiftool}
		} else {
			log.Emit(logger.WARNING, "Only MP3 files can be tagged as exiftool is unavailable: %v\n", exiftoolErr)
		}
		toolkit.Keywords = router
	}

	if !config.Cleanup.IsZero() {
		binary, err := tasaveer.resolver.Resolve(config.Cleanup.Tool)
		if err != nil {
			return ingest.Toolkit{}, err
		}
		toolkit.Cleaner = tools.NewCommandCleaner(binary, config.Cleanup)
	}

	return toolkit, nil
}
