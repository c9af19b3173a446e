package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Totals holds the four aggregate views. All are empty or zero while the
// store is loading or failed.
type Totals struct {
	Monthly []core.MonthlyTotal `json:"monthly"`
	Yearly  []core.YearlyTotal  `json:"yearly"`
	Daily   decimal.Decimal     `json:"daily"`
	Weekly  decimal.Decimal     `json:"weekly"`
}

// ComputeTotals evaluates every aggregate over st with now as the current
// time in loc.
func ComputeTotals(st State, now time.Time, loc *time.Location) Totals {
	if st.Loading || st.Failed() {
		return Totals{
			Monthly: []core.MonthlyTotal{},
			Yearly:  []core.YearlyTotal{},
			Daily:   decimal.Zero,
			Weekly:  decimal.Zero,
		}
	}
	return Totals{
		Monthly: core.MonthlyTotals(st.Data),
		Yearly:  core.YearlyTotals(st.Data),
		Daily:   core.DailyTotal(st.Data, now, loc),
		Weekly:  core.WeeklyTotal(st.Data, now, loc),
	}
}

// Aggregates keeps Totals in step with a Store. Recompute never
// publishes totals computed from a state older than the last one the
// store delivered.
type Aggregates struct {
	store  *Store
	now    func() time.Time
	totals *observable[Totals]
	unsub  func()

	mu   sync.Mutex
	gen  uint64
	last State
}

// AggregatesOption configures NewAggregates.
type AggregatesOption func(*Aggregates)

// WithClock replaces time.Now for the daily and weekly totals.
func WithClock(now func() time.Time) AggregatesOption {
	return func(a *Aggregates) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregates computes the totals of s and recomputes them on every
// state s delivers until Close.
func NewAggregates(s *Store, opts ...AggregatesOption) *Aggregates {
	a := &Aggregates{store: s, now: time.Now, last: s.Current()}
	for _, opt := range opts {
		opt(a)
	}
	a.totals = newObservable(a.compute(a.last))
	a.unsub = s.Subscribe(func(st State) {
		t := a.compute(st)
		a.mu.Lock()
		a.gen++
		a.last = st
		a.totals.publish(t)
		a.mu.Unlock()
		a.totals.drain()
	})
	return a
}

func (a *Aggregates) compute(st State) Totals {
	return ComputeTotals(st, a.now(), a.store.Location())
}

// Current returns the latest totals.
func (a *Aggregates) Current() Totals {
	return a.totals.get()
}

// Subscribe calls fn with the current totals and on every recomputation.
func (a *Aggregates) Subscribe(fn func(Totals)) func() {
	return a.totals.subscribe(fn)
}

// Recompute re-evaluates the totals against the clock, for when the day
// or week rolls over without a new snapshot. If a snapshot lands while
// it computes, its totals win and Recompute returns them.
func (a *Aggregates) Recompute() Totals {
	a.mu.Lock()
	gen, st := a.gen, a.last
	a.mu.Unlock()

	t := a.compute(st)

	a.mu.Lock()
	if a.gen == gen {
		a.totals.publish(t)
	}
	a.mu.Unlock()
	a.totals.drain()
	return a.totals.get()
}

// Close stops following the store.
func (a *Aggregates) Close() {
	a.unsub()
}
