// Package store keeps the live list of expenses and the views derived from
// it. The Store owns the single feed subscription; Aggregates and
// Pagination recompute on every Store change.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/feed"
	"gastos/internal/log"
)

// LoadErrorMessage is the State.Error shown for any feed failure.
const LoadErrorMessage = "No se pudieron cargar los gastos."

// State is one complete value of the store. While Loading, Data is empty
// and Error is blank.
type State struct {
	Loading bool           `json:"loading"`
	Data    []core.Expense `json:"data"`
	Error   string         `json:"error,omitempty"`
	// Version counts authoritative snapshots received from the feed.
	Version int64 `json:"version"`
	// Local is set while Data carries an optimistic Update not yet
	// superseded by a snapshot.
	Local bool `json:"local"`
}

// Failed reports whether the feed reported an error.
func (s State) Failed() bool {
	return s.Error != ""
}

// Config configures a Store.
type Config struct {
	// Query defaults to all expenses ordered by date, newest first.
	Query    feed.Query
	Location *time.Location
	Logger   *log.Logger
}

// Store holds the normalized expenses of one feed subscription and
// notifies subscribers of every new State in order.
type Store struct {
	norm   core.Normalizer
	query  feed.Query
	logger *log.Logger
	state  *observable[State]

	mu          sync.Mutex
	unsubscribe feed.Unsubscribe
	detached    bool

	ready     chan struct{}
	readyOnce sync.Once
}

// New opens the feed subscription. Failing to subscribe is reported the
// same way as a feed error: through State.Error.
func New(ctx context.Context, f feed.Feed, cfg Config) *Store {
	if cfg.Query.Collection == "" {
		cfg.Query = feed.ExpensesByDate("")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}

	s := &Store{
		norm:   core.NewNormalizer(cfg.Location),
		query:  cfg.Query,
		logger: cfg.Logger.WithComponent(log.ComponentStore).With(log.FieldCollection, cfg.Query.Collection),
		state:  newObservable(State{Loading: true, Data: []core.Expense{}}),
		ready:  make(chan struct{}),
	}

	s.logger.InfoContext(ctx, "Subscribing to feed", log.FieldQuery, cfg.Query.String(), log.FieldOperation, log.OpSubscribe)
	unsub, err := f.Subscribe(ctx, cfg.Query, s.applySnapshot, s.applyError)
	if err != nil {
		s.applyError(err)
		return s
	}

	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		unsub()
		return s
	}
	s.unsubscribe = unsub
	s.mu.Unlock()
	return s
}

// Subscribe calls fn with the current state and then with every new one.
// The returned func stops the notifications.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.state.subscribe(fn)
}

// Current returns the latest state. Data must not be modified.
func (s *Store) Current() State {
	return s.state.get()
}

// Update applies an optimistic change to Data ahead of the feed. fn gets a
// copy it may modify. The next snapshot replaces the result. Update does
// nothing while loading, after an error, or once the store is detached from
// the feed.
func (s *Store) Update(fn func([]core.Expense) []core.Expense) {
	s.mu.Lock()
	cur := s.state.get()
	if s.detached || cur.Loading || cur.Failed() {
		s.mu.Unlock()
		return
	}
	data := fn(slices.Clone(cur.Data))
	if data == nil {
		data = []core.Expense{}
	}
	s.state.publish(State{Data: data, Version: cur.Version, Local: true})
	s.mu.Unlock()

	s.logger.Debug("Applied local update", log.FieldOperation, log.OpUpdate, log.FieldDocuments, len(data))
	s.state.drain()
}

// UnsubscribeFromFeed cancels the feed subscription. The last state stays
// readable and subscribers stay registered but get no further states.
func (s *Store) UnsubscribeFromFeed() {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	s.detached = true
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.logger.Info("Unsubscribed from feed", log.FieldOperation, log.OpShutdown)
}

// AwaitReady blocks until the first snapshot or error arrives.
func (s *Store) AwaitReady(ctx context.Context) (State, error) {
	select {
	case <-s.ready:
		return s.Current(), nil
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

// Ready reports whether the store has left the loading state.
func (s *Store) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Location is the zone expense dates are expressed in.
func (s *Store) Location() *time.Location {
	return s.norm.Location()
}

// Normalize maps a raw record the way snapshots are mapped.
func (s *Store) Normalize(id string, fields map[string]any) core.Expense {
	return s.norm.Normalize(id, fields)
}

func (s *Store) applySnapshot(docs []feed.Document) {
	data := make([]core.Expense, len(docs))
	for i, d := range docs {
		data[i] = s.norm.Normalize(d.ID, d.Fields)
	}

	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	next := State{Data: data, Version: s.state.get().Version + 1}
	s.state.publish(next)
	s.mu.Unlock()

	s.logger.Debug("Snapshot received", log.NewFields().
		WithSnapshot(s.query.Collection, next.Version, len(data)).
		WithOperation(log.OpSnapshot).
		ToSlice()...)
	s.markReady()
	s.state.drain()
}

func (s *Store) applyError(err error) {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	s.state.publish(State{Data: []core.Expense{}, Error: LoadErrorMessage, Version: s.state.get().Version})
	s.mu.Unlock()

	s.logger.LogError(context.Background(), "Feed error", err, log.OpSnapshot, nil)
	s.markReady()
	s.state.drain()
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}
