// Package sqlite stores feed documents in a local SQLite file and notices
// changes by polling a per-collection version counter kept by triggers.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"gastos/internal/feed"

	_ "modernc.org/sqlite"
)

// DefaultPollInterval is how often subscriptions check for changes.
const DefaultPollInterval = time.Second

// maxAttempts is how many consecutive read failures a subscription
// tolerates before reporting an error.
const maxAttempts = 5

// Feed is a feed.Feed backed by a SQLite file. Subscriptions poll a
// per-collection version counter and re-read the collection when it moves.
type Feed struct {
	db       *sql.DB
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel []context.CancelFunc
	closed bool
}

var (
	_ feed.Feed    = (*Feed)(nil)
	_ feed.Writer  = (*Feed)(nil)
	_ feed.Remover = (*Feed)(nil)
)

// Option configures Open.
type Option func(*Feed)

// WithPollInterval sets how often subscriptions look for changes.
func WithPollInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithLogger sets the logger for poll failures and unreadable rows.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// Open opens or creates the database at dbPath and migrates it.
func Open(dbPath string, opts ...Option) (*Feed, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	f := &Feed{db: db, interval: DefaultPollInterval, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Close stops every subscription and closes the database.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for _, cancel := range f.cancel {
		cancel()
	}
	f.cancel = nil
	f.mu.Unlock()

	f.wg.Wait()
	return f.db.Close()
}

// Add inserts a document with a generated id.
func (f *Feed) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := f.Put(ctx, collection, feed.Document{ID: id, Fields: fields}); err != nil {
		return "", err
	}
	return id, nil
}

// Put inserts or replaces a document.
func (f *Feed) Put(ctx context.Context, collection string, doc feed.Document) error {
	if f.isClosed() {
		return feed.ErrClosed
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = f.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, fields) VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET fields = excluded.fields, updated_at = CURRENT_TIMESTAMP`,
		collection, doc.ID, string(raw))
	if err != nil {
		return fmt.Errorf("put document %s/%s: %w", collection, doc.ID, err)
	}
	return nil
}

// Delete removes a document, reporting whether it existed.
func (f *Feed) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := f.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return n > 0, nil
}

// Documents reads the collection ordered as q asks.
func (f *Feed) Documents(ctx context.Context, q feed.Query) ([]feed.Document, error) {
	rows, err := f.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE collection = ? ORDER BY created_at, rowid`, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []feed.Document{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		// unreadable fields still count as a record; normalization fills
		// in the defaults
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			f.logger.Warn("Document has invalid fields", "collection", q.Collection, "id", id, "error", err)
			fields = nil
		}
		if fields == nil {
			fields = map[string]any{}
		}
		docs = append(docs, feed.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return feed.SortDocuments(docs, q), nil
}

func (f *Feed) version(ctx context.Context, collection string) (int64, error) {
	var v int64
	err := f.db.QueryRowContext(ctx,
		`SELECT version FROM collection_versions WHERE collection = ?`, collection).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return v, nil
}

// Subscribe starts a poller that delivers the collection once right away
// and again whenever its version changes.
func (f *Feed) Subscribe(ctx context.Context, q feed.Query, onSnapshot func([]feed.Document), onError func(error)) (feed.Unsubscribe, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, feed.ErrClosed
	}
	pollCtx, cancel := context.WithCancel(ctx)
	f.cancel = append(f.cancel, cancel)
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		f.poll(pollCtx, q, onSnapshot, onError)
	}()

	return feed.Unsubscribe(cancel), nil
}

func (f *Feed) poll(ctx context.Context, q feed.Query, onSnapshot func([]feed.Document), onError func(error)) {
	logger := f.logger.With("query", q.String())
	last := int64(-1)
	attempt := 0

	for {
		v, docs, err := f.readIfChanged(ctx, q, last)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			attempt++
			if attempt >= maxAttempts {
				logger.Error("Giving up on subscription", "attempts", attempt, "error", err)
				if onError != nil {
					onError(err)
				}
				return
			}
			wait := feed.Backoff(attempt - 1)
			logger.Warn("Poll failed, retrying", "attempt", attempt, "retry_in", wait, "error", err)
			if !feed.Sleep(ctx, wait) {
				return
			}
			continue
		case docs != nil:
			attempt = 0
			last = v
			logger.Debug("Delivering snapshot", "version", v, "documents", len(docs))
			onSnapshot(docs)
		default:
			attempt = 0
		}

		if !feed.Sleep(ctx, f.interval) {
			return
		}
	}
}

// readIfChanged returns nil docs when the version still equals last.
func (f *Feed) readIfChanged(ctx context.Context, q feed.Query, last int64) (int64, []feed.Document, error) {
	v, err := f.version(ctx, q.Collection)
	if err != nil {
		return 0, nil, err
	}
	if v == last {
		return v, nil, nil
	}
	docs, err := f.Documents(ctx, q)
	if err != nil {
		return 0, nil, err
	}
	return v, docs, nil
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
