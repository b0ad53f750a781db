package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/lukasz26671/webaudioprov/internal/api"
	"github.com/lukasz26671/webaudioprov/internal/api/histories"
	"github.com/lukasz26671/webaudioprov/internal/cache"
	"github.com/lukasz26671/webaudioprov/internal/event"
	"github.com/lukasz26671/webaudioprov/internal/fetch"
	"github.com/lukasz26671/webaudioprov/internal/history"
	"github.com/lukasz26671/webaudioprov/internal/pipeline"
	"github.com/lukasz26671/webaudioprov/internal/probe"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		BroadcastFetchActivity(event.Event, event.Payload)
	}
)

// webAudioProvImpl represents the top-level object for the server, and is
// responsible for initialising the cache, the retrieval pipeline, event
// handling, the optional history store, et cetera...
type webAudioProvImpl struct {
	eventBus   event.EventCoordinator
	config     AppConfig
	cacheStore *cache.Store
}

func New(config AppConfig) *webAudioProvImpl {
	log.Emit(logger.DEBUG, "Bootstrapping services using config: %#v\n", config)
	return &webAudioProvImpl{
		eventBus:   event.New(),
		config:     config,
		cacheStore: cache.NewStore(config.CacheDir()),
	}
}

// Run will start the service by bringing up all required services and
// connections: the cache, the optional database connection, the retrieval
// pipeline and the REST gateway.
//
// This function will not return until the service is stopped. To stop it,
// the provided context must be cancelled. Errors from which the service
// cannot recover will also cause it to stop.
func (app *webAudioProvImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	// Stale artifacts from previous runs are discarded wholesale; the
	// cache is rebuilt on demand.
	log.Emit(logger.NEW, "Clearing media cache at '%s'...\n", app.cacheStore.Root())
	if err := app.cacheStore.Clear(); err != nil {
		return fmt.Errorf("failed to clear media cache: %w", err)
	}

	var recorder pipeline.Recorder
	var historyService histories.Service
	if app.config.Database.Enabled() {
		log.Emit(logger.NEW, "Connecting to database...\n")
		store, err := history.Connect(app.config.Database)
		if err != nil {
			return err
		}
		defer store.Close()

		recorder = store
		historyService = store
	}

	toolPath := app.config.Fetch.ToolPath
	if toolPath == "" {
		toolPath = fetch.InstallTool(app.config.Fetch.WorkDir)
	}
	log.Emit(logger.INFO, "Using fetch tool at '%s'\n", toolPath)

	orchestrator := fetch.NewOrchestrator(app.config.Fetch, toolPath, app.cacheStore)
	prober := probe.New(toolPath)
	pipe := pipeline.New(prober, orchestrator, app.cacheStore, app.config.Limits, app.eventBus, recorder)

	// Socket broadcasts run asynchronously so a slow client write can
	// never stall the pipeline's dispatch.
	var gateway RestGateway = api.NewRestGateway(&app.config.Rest, pipe, historyService)
	app.eventBus.RegisterAsyncHandlerFunction(event.FETCH_UPDATE, gateway.BroadcastFetchActivity)
	app.eventBus.RegisterAsyncHandlerFunction(event.FETCH_COMPLETE, gateway.BroadcastFetchActivity)

	wg := &sync.WaitGroup{}
	app.spawnAsyncService(ctx, wg, gateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as its own
// go-routine, ensuring that the service waitgroup is updated correctly.
func (app *webAudioProvImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
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
