// Package feed defines the live data source the expense store consumes:
// an ordered collection of records, delivered as full snapshots every
// time it changes.
package feed

import (
	"context"
	"errors"
	"strings"
)

// DefaultCollection is the collection holding expense records.
const DefaultCollection = "gastos"

var (
	// ErrClosed is returned by operations on a feed that has been closed.
	ErrClosed = errors.New("feed closed")
	// ErrReadOnly is returned when a feed cannot accept writes.
	ErrReadOnly = errors.New("feed is read-only")
)

type (
	// Query selects a collection and its ordering.
	Query struct {
		Collection string
		OrderBy    string
		Descending bool
	}

	// Document is one stored record as delivered by a feed.
	Document struct {
		ID     string         `json:"id" yaml:"id"`
		Fields map[string]any `json:"fields" yaml:"fields"`
	}

	// Unsubscribe cancels a subscription. It is safe to call more than once,
	// including from inside a callback. A callback already running may
	// complete after it returns.
	Unsubscribe func()

	// Feed delivers full snapshots of a collection until unsubscribed.
	// onSnapshot and onError may be called from any goroutine but never
	// concurrently for the same subscription.
	Feed interface {
		Subscribe(ctx context.Context, q Query, onSnapshot func([]Document), onError func(error)) (Unsubscribe, error)
	}

	// Writer is implemented by feeds that can store new records.
	Writer interface {
		Add(ctx context.Context, collection string, fields map[string]any) (id string, err error)
	}

	// Remover is implemented by feeds that can delete records. It reports
	// whether the record existed.
	Remover interface {
		Delete(ctx context.Context, collection, id string) (bool, error)
	}
)

// ExpensesByDate is the query the expense store subscribes with.
func ExpensesByDate(collection string) Query {
	if strings.TrimSpace(collection) == "" {
		collection = DefaultCollection
	}
	return Query{Collection: collection, OrderBy: "fecha", Descending: true}
}

// String renders q in the "collection orderBy field [desc]" form used in logs.
func (q Query) String() string {
	s := q.Collection
	if q.OrderBy != "" {
		s += " orderBy " + q.OrderBy
		if q.Descending {
			s += " desc"
		}
	}
	return s
}
