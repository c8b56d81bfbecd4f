package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tOgg1/courier/internal/events"
)

type queryFunc func(ctx context.Context, q Query) ([]Document, error)

// watch runs a coalescing subscription: every change to the collection
// marks the query dirty, and the worker re-runs it and hands the consumer
// the freshest result. A result that has not been taken when another change
// lands is discarded in favour of a new one.
func watch(ctx context.Context, pub *events.InMemoryPublisher, q Query, run queryFunc, logger zerolog.Logger) (<-chan Snapshot, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot)
	dirty := make(chan struct{}, 1)

	subID := "watch-" + uuid.NewString()
	err := pub.Subscribe(subID, events.Filter{Collections: []string{q.Collection}}, func(*events.Change) {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		defer func() { _ = pub.Unsubscribe(subID) }()

		if err != nil {
			deliver(ctx, out, Snapshot{Err: err})
			return
		}

		for {
			docs, qerr := run(ctx, q)
			if qerr != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(qerr).Str("collection", q.Collection).Msg("subscription query failed")
					deliver(ctx, out, Snapshot{Err: qerr})
				}
				return
			}

			select {
			case out <- Snapshot{Documents: docs}:
			case <-dirty:
				continue
			case <-ctx.Done():
				return
			}

			select {
			case <-dirty:
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
	return out, stop
}

func deliver(ctx context.Context, out chan<- Snapshot, snap Snapshot) {
	select {
	case out <- snap:
	case <-ctx.Done():
	}
}
