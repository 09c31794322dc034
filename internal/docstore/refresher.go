package docstore

import (
	"context"
	"sync"
)

// QueryFunc loads the current matching set for a subscription.
type QueryFunc func(ctx context.Context) ([]Document, error)

// Refresher re-runs a query whenever it is signalled and hands the full
// result to onChange. Signals coalesce: a burst of changes while a query is
// running yields one more query, never a queue of stale snapshots.
type Refresher struct {
	signal chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartRefresher starts the refresh loop and signals it once, so the
// subscriber receives the initial set right away.
func StartRefresher(ctx context.Context, query QueryFunc, onChange ChangeFunc, onError func(error)) *Refresher {
	ctx, cancel := context.WithCancel(ctx)
	r := &Refresher{
		signal: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go r.loop(ctx, query, onChange, onError)
	r.Signal()

	return r
}

// Signal requests a refresh.
func (r *Refresher) Signal() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Stop ends the loop. A callback already running finishes first.
func (r *Refresher) Stop() {
	r.once.Do(r.cancel)
}

// Done is closed once the loop has exited.
func (r *Refresher) Done() <-chan struct{} {
	return r.done
}

func (r *Refresher) loop(ctx context.Context, query QueryFunc, onChange ChangeFunc, onError func(error)) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.signal:
		}

		docs, err := query(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}

		onChange(docs)
	}
}
