package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"gastos/internal/feed"
)

// Feed is an in-process collection store that pushes snapshots to its
// subscribers synchronously, on the goroutine that changed it. Callbacks
// must not write back to the same feed.
type Feed struct {
	mu     sync.Mutex
	emit   sync.Mutex
	cols   map[string][]feed.Document
	subs   map[int]*subscription
	nextID int
	closed bool
}

type subscription struct {
	q          feed.Query
	onSnapshot func([]feed.Document)
	onError    func(error)
}

var (
	_ feed.Feed    = (*Feed)(nil)
	_ feed.Writer  = (*Feed)(nil)
	_ feed.Remover = (*Feed)(nil)
)

// SeedFile is the YAML layout accepted by NewFromFile.
type SeedFile struct {
	Collection string          `yaml:"collection"`
	Documents  []feed.Document `yaml:"documents"`
}

func New() *Feed {
	return &Feed{
		cols: make(map[string][]feed.Document),
		subs: make(map[int]*subscription),
	}
}

// NewFromFile creates a feed seeded from a YAML file. A missing file
// yields an empty feed.
func NewFromFile(path string) (*Feed, error) {
	f := New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	collection := seed.Collection
	if collection == "" {
		collection = feed.DefaultCollection
	}
	for i, d := range seed.Documents {
		if d.ID == "" {
			seed.Documents[i].ID = uuid.NewString()
		}
	}
	f.cols[collection] = seed.Documents
	return f, nil
}

// Subscribe delivers the current snapshot before returning, then again on
// every change.
func (f *Feed) Subscribe(_ context.Context, q feed.Query, onSnapshot func([]feed.Document), onError func(error)) (feed.Unsubscribe, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, feed.ErrClosed
	}
	id := f.nextID
	f.nextID++
	sub := &subscription{q: q, onSnapshot: onSnapshot, onError: onError}
	f.subs[id] = sub
	f.mu.Unlock()

	f.deliver(q.Collection, nil)

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}, nil
}

// Set replaces the whole collection.
func (f *Feed) Set(collection string, docs []feed.Document) {
	f.mu.Lock()
	f.cols[collection] = append([]feed.Document(nil), docs...)
	f.mu.Unlock()
	f.deliver(collection, nil)
}

// Add stores a new document and returns its generated id.
func (f *Feed) Add(_ context.Context, collection string, fields map[string]any) (string, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", feed.ErrClosed
	}
	id := uuid.NewString()
	f.cols[collection] = append(f.cols[collection], feed.Document{ID: id, Fields: fields})
	f.mu.Unlock()
	f.deliver(collection, nil)
	return id, nil
}

// Delete removes a document, reporting whether it existed.
func (f *Feed) Delete(_ context.Context, collection, id string) (bool, error) {
	f.mu.Lock()
	docs := f.cols[collection]
	found := false
	for i, d := range docs {
		if d.ID == id {
			f.cols[collection] = append(docs[:i:i], docs[i+1:]...)
			found = true
			break
		}
	}
	f.mu.Unlock()
	if found {
		f.deliver(collection, nil)
	}
	return found, nil
}

// Fail reports err to every subscriber of collection and ends those
// subscriptions.
func (f *Feed) Fail(collection string, err error) {
	f.deliver(collection, err)
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close drops every subscription; later Subscribe and Add calls fail.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	clear(f.subs)
	return nil
}

func (f *Feed) deliver(collection string, err error) {
	f.emit.Lock()
	defer f.emit.Unlock()

	f.mu.Lock()
	type target struct {
		id   int
		sub  *subscription
		docs []feed.Document
	}
	var targets []target
	for id, s := range f.subs {
		if s.q.Collection != collection {
			continue
		}
		targets = append(targets, target{id: id, sub: s, docs: feed.SortDocuments(f.cols[collection], s.q)})
	}
	f.mu.Unlock()

	for _, t := range targets {
		if !f.live(t.id, t.sub, err != nil) {
			continue
		}
		if err != nil {
			if t.sub.onError != nil {
				t.sub.onError(err)
			}
			continue
		}
		t.sub.onSnapshot(t.docs)
	}
}

// live reports whether the subscription is still registered, removing it
// when end is set.
func (f *Feed) live(id int, sub *subscription, end bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[id] != sub {
		return false
	}
	if end {
		delete(f.subs, id)
	}
	return true
}
