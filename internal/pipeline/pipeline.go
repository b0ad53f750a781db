// Package pipeline ties resolution, probing, policy and fetching together
// in to the retrieval flow the HTTP layer consumes. Concurrent requests for
// the same item and kind are collapsed so the external tools only ever run
// once per artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/lukasz26671/webaudioprov/internal/cache"
	"github.com/lukasz26671/webaudioprov/internal/event"
	"github.com/lukasz26671/webaudioprov/internal/item"
	"github.com/lukasz26671/webaudioprov/internal/policy"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
	"golang.org/x/sync/singleflight"
)

var log = logger.Get("Pipeline")

// ErrNoDirectURL indicates the probe completed but the tool reported no
// direct media URL to redirect the client to.
var ErrNoDirectURL = errors.New("no direct media URL available for item")

type (
	prober interface {
		Probe(ctx context.Context, id item.ID, kind item.Kind) (*item.Metadata, error)
	}

	fetcher interface {
		Materialize(ctx context.Context, metadata *item.Metadata, kind item.Kind, transcode bool) (string, error)
	}

	// Recorder persists completed materializations. A nil recorder
	// disables persistence without changing the pipeline's behaviour.
	Recorder interface {
		Record(ctx context.Context, metadata *item.Metadata, kind item.Kind, key string) error
	}
)

// Artifact is a cache-resident media file ready for serving.
type Artifact struct {
	Path     string
	Key      string
	Kind     item.Kind
	Metadata *item.Metadata
}

type Pipeline struct {
	prober   prober
	fetcher  fetcher
	cache    *cache.Store
	limits   policy.Limits
	eventBus event.EventDispatcher
	recorder Recorder
	flight   singleflight.Group
}

func New(prober prober, fetcher fetcher, cacheStore *cache.Store, limits policy.Limits, eventBus event.EventDispatcher, recorder Recorder) *Pipeline {
	return &Pipeline{
		prober:   prober,
		fetcher:  fetcher,
		cache:    cacheStore,
		limits:   limits,
		eventBus: eventBus,
		recorder: recorder,
	}
}

// Info resolves the reference and returns the probed metadata for the item
// without materializing anything.
func (pipeline *Pipeline) Info(ctx context.Context, reference string) (*item.Metadata, error) {
	id, err := item.Resolve(reference)
	if err != nil {
		return nil, err
	}

	return pipeline.prober.Probe(ctx, id, item.Audio)
}

// ResolveRedirect resolves the reference and returns the upstream direct
// media URL for the item's audio, suitable as a redirect target. The
// duration policy does not apply here; nothing is downloaded.
func (pipeline *Pipeline) ResolveRedirect(ctx context.Context, reference string) (string, error) {
	id, err := item.Resolve(reference)
	if err != nil {
		return "", err
	}

	metadata, err := pipeline.prober.Probe(ctx, id, item.Audio)
	if err != nil {
		return "", err
	}

	if metadata.URL == "" {
		return "", fmt.Errorf("%w: %s", ErrNoDirectURL, id)
	}

	return metadata.URL, nil
}

// MaterializeForServing resolves the reference, probes its metadata,
// enforces the duration policy for the kind and returns a cache-resident
// artifact in the processed container, fetching and transcoding on a cache
// miss. Concurrent misses for the same item and kind share one fetch.
func (pipeline *Pipeline) MaterializeForServing(ctx context.Context, reference string, kind item.Kind) (*Artifact, error) {
	id, err := item.Resolve(reference)
	if err != nil {
		return nil, err
	}

	metadata, err := pipeline.prober.Probe(ctx, id, kind)
	if err != nil {
		return nil, err
	}

	if err := policy.Check(metadata.DurationSecs, kind, pipeline.limits); err != nil {
		return nil, err
	}

	key := item.CacheKey(metadata.Title, metadata.ID, kind, true)
	if path, ok := pipeline.cache.Lookup(key); ok {
		log.Emit(logger.DEBUG, "Cache hit for %s (%s)\n", id, kind)
		return &Artifact{Path: path, Key: key, Kind: kind, Metadata: metadata}, nil
	}

	flightKey := fmt.Sprintf("%s|%s", id, kind)
	result, err, shared := pipeline.flight.Do(flightKey, func() (any, error) {
		// A request that queued behind the winning flight may find the
		// artifact already placed by the time it gets here.
		if path, ok := pipeline.cache.Lookup(key); ok {
			return path, nil
		}

		// The flight outlives the request that started it. Its result is
		// shared with every concurrent waiter, so the disconnect of the
		// initiating client must not abort the fetch underneath them.
		return pipeline.fetch(context.WithoutCancel(ctx), metadata, kind)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		log.Emit(logger.DEBUG, "Shared in-flight fetch of %s (%s)\n", id, kind)
	}

	return &Artifact{Path: result.(string), Key: key, Kind: kind, Metadata: metadata}, nil
}

// fetch runs the materialization for a confirmed cache miss, reporting its
// lifecycle on the event bus and recording the completed artifact.
func (pipeline *Pipeline) fetch(ctx context.Context, metadata *item.Metadata, kind item.Kind) (any, error) {
	pipeline.dispatch(event.FETCH_UPDATE, metadata, kind, event.FETCHING, nil)

	path, err := pipeline.fetcher.Materialize(ctx, metadata, kind, true)
	if err != nil {
		pipeline.dispatch(event.FETCH_COMPLETE, metadata, kind, event.FAILED, err)
		return nil, err
	}

	pipeline.dispatch(event.FETCH_COMPLETE, metadata, kind, event.COMPLETE, nil)
	if pipeline.recorder != nil {
		key := item.CacheKey(metadata.Title, metadata.ID, kind, true)
		if err := pipeline.recorder.Record(ctx, metadata, kind, key); err != nil {
			log.Emit(logger.WARNING, "Failed to record materialization of %s (%s): %s\n", metadata.ID, kind, err)
		}
	}

	return path, nil
}

func (pipeline *Pipeline) dispatch(ev event.Event, metadata *item.Metadata, kind item.Kind, status event.FetchStatus, cause error) {
	if pipeline.eventBus == nil {
		return
	}

	payload := event.FetchActivity{
		ItemID: metadata.ID,
		Title:  metadata.Title,
		Kind:   kind.String(),
		Status: status,
	}
	if cause != nil {
		payload.Error = cause.Error()
	}

	pipeline.eventBus.Dispatch(ev, payload)
}
