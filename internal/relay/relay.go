// Package relay republishes the snapshots of one source feed to a
// publisher, so many dashboards can share a single upstream subscription.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gastos/internal/feed"
	"gastos/internal/log"
)

// DefaultRepublishInterval is how often the latest snapshot is sent again
// for consumers that connected after it was first published.
const DefaultRepublishInterval = 30 * time.Second

// Publisher sends snapshots and errors downstream.
type Publisher interface {
	PublishSnapshot(ctx context.Context, collection string, seq int64, docs []feed.Document) error
	PublishError(ctx context.Context, collection string, seq int64, err error) error
}

// ErrSourceFailed wraps the error that ended the source subscription.
var ErrSourceFailed = errors.New("source feed failed")

type Relay struct {
	source    feed.Feed
	publisher Publisher
	query     feed.Query
	interval  time.Duration
	logger    *log.Logger

	mu      sync.Mutex
	pending *event
	last    *event
	seq     int64
	wake    chan struct{}
}

type event struct {
	seq  int64
	docs []feed.Document
	err  error
}

func New(source feed.Feed, publisher Publisher, query feed.Query, interval time.Duration, logger *log.Logger) *Relay {
	if query.Collection == "" {
		query = feed.ExpensesByDate("")
	}
	if interval <= 0 {
		interval = DefaultRepublishInterval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Relay{
		source:    source,
		publisher: publisher,
		query:     query,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentRelay).With(log.FieldCollection, query.Collection),
		wake:      make(chan struct{}, 1),
	}
}

// Run relays until ctx is done or the source fails. Only the newest
// snapshot is kept while the publisher is busy.
func (r *Relay) Run(ctx context.Context) error {
	unsub, err := r.source.Subscribe(ctx, r.query, r.onSnapshot, r.onError)
	if err != nil {
		return fmt.Errorf("subscribe to source: %w", err)
	}
	defer unsub()

	r.logger.InfoContext(ctx, "Relay started", log.FieldQuery, r.query.String(), log.FieldOperation, log.OpStartup)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Relay stopping", "reason", ctx.Err(), log.FieldOperation, log.OpShutdown)
			return nil
		case <-r.wake:
			ev := r.take()
			if ev == nil {
				continue
			}
			if err := r.publish(ctx, ev); err != nil {
				r.logger.LogError(ctx, "Failed to publish snapshot", err, log.OpPublish, nil)
			}
			if ev.err != nil {
				return fmt.Errorf("%w: %w", ErrSourceFailed, ev.err)
			}
		case <-ticker.C:
			r.mu.Lock()
			last := r.last
			r.mu.Unlock()
			if last == nil {
				continue
			}
			if err := r.publish(ctx, last); err != nil {
				r.logger.LogError(ctx, "Failed to republish snapshot", err, log.OpPublish, nil)
			}
		}
	}
}

func (r *Relay) onSnapshot(docs []feed.Document) {
	r.push(&event{docs: docs})
}

func (r *Relay) onError(err error) {
	r.push(&event{err: err})
}

func (r *Relay) push(ev *event) {
	r.mu.Lock()
	r.seq++
	ev.seq = r.seq
	if r.pending == nil || r.pending.err == nil {
		r.pending = ev
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) take() *event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := r.pending
	r.pending = nil
	if ev != nil && ev.err == nil {
		r.last = ev
	}
	return ev
}

func (r *Relay) publish(ctx context.Context, ev *event) error {
	if ev.err != nil {
		r.logger.WarnContext(ctx, "Source feed failed, forwarding error", log.FieldError, ev.err)
		return r.publisher.PublishError(ctx, r.query.Collection, ev.seq, ev.err)
	}
	r.logger.DebugContext(ctx, "Publishing snapshot", log.NewFields().
		WithSnapshot(r.query.Collection, ev.seq, len(ev.docs)).
		WithOperation(log.OpPublish).
		ToSlice()...)
	return r.publisher.PublishSnapshot(ctx, r.query.Collection, ev.seq, ev.docs)
}
