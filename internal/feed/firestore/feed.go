// Package firestore reads and writes a Firestore collection through the
// Firestore REST API. Changes are picked up by polling.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	firestore "google.golang.org/api/firestore/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gastos/internal/feed"
)

const (
	DefaultDatabase     = "(default)"
	DefaultPollInterval = 5 * time.Second

	maxAttempts = 5
	pageSize    = 300
)

// Config selects the project and how to authenticate. When EmulatorHost is
// set, requests go to the emulator without credentials.
type Config struct {
	ProjectID       string
	Database        string
	APIKey          string
	CredentialsJSON []byte
	EmulatorHost    string
	PollInterval    time.Duration
}

// ClientOptions builds the API client options for cfg.
func (c Config) ClientOptions() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case c.EmulatorHost != "":
		endpoint := c.EmulatorHost
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(endpoint, "/")+"/"), option.WithoutAuthentication())
	case len(c.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(c.CredentialsJSON))
	case c.APIKey != "":
		opts = append(opts, option.WithAPIKey(c.APIKey))
	}
	return opts
}

// Feed reads and writes a Firestore collection through the REST API.
// Subscriptions poll and deliver a snapshot whenever the documents change.
type Feed struct {
	svc      *firestore.Service
	root     string
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel []context.CancelFunc
	closed bool
}

var (
	_ feed.Feed   = (*Feed)(nil)
	_ feed.Writer = (*Feed)(nil)
)

// New creates a feed for cfg. Extra options are appended to the ones
// derived from cfg.
func New(ctx context.Context, cfg Config, logger *slog.Logger, extra ...option.ClientOption) (*Feed, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := firestore.NewService(ctx, append(cfg.ClientOptions(), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("create firestore service: %w", err)
	}

	return &Feed{
		svc:      svc,
		root:     fmt.Sprintf("projects/%s/databases/%s/documents", cfg.ProjectID, cfg.Database),
		interval: cfg.PollInterval,
		logger:   logger,
	}, nil
}

// Close stops all pollers.
func (f *Feed) Close() error {
	f.mu.Lock()
	f.closed = true
	for _, cancel := range f.cancel {
		cancel()
	}
	f.cancel = nil
	f.mu.Unlock()
	f.wg.Wait()
	return nil
}

// Add creates a document with a generated id.
func (f *Feed) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if f.isClosed() {
		return "", feed.ErrClosed
	}
	encoded, err := encodeFields(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	raw, err := json.Marshal(map[string]any{"fields": encoded})
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	var doc firestore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	created, err := f.svc.Projects.Databases.Documents.
		CreateDocument(f.root, collection, &doc).
		DocumentId(id).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create document in %s: %w", collection, err)
	}
	return documentID(created.Name), nil
}

// List fetches every document of the collection in the order q asks.
func (f *Feed) List(ctx context.Context, q feed.Query) ([]feed.Document, uint64, error) {
	call := f.svc.Projects.Databases.Documents.List(f.root, q.Collection).PageSize(pageSize)
	if q.OrderBy != "" {
		order := q.OrderBy
		if q.Descending {
			order += " desc"
		}
		call = call.OrderBy(order)
	}

	hash := fnv.New64a()
	docs := []feed.Document{}
	err := call.Pages(ctx, func(resp *firestore.ListDocumentsResponse) error {
		raw, err := json.Marshal(resp.Documents)
		if err != nil {
			return fmt.Errorf("re-encode documents: %w", err)
		}
		var page []restDocument
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("decode documents: %w", err)
		}
		for _, d := range page {
			hash.Write([]byte(d.Name))
			hash.Write([]byte{0})
			hash.Write([]byte(d.UpdateTime))
			hash.Write([]byte{0})
			docs = append(docs, feed.Document{ID: documentID(d.Name), Fields: decodeFields(d.Fields)})
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", q, err)
	}
	return docs, hash.Sum64(), nil
}

// Subscribe polls the collection, delivering the first listing and every
// listing that differs from the previous one.
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
	var last uint64
	first := true
	attempt := 0

	for {
		docs, sum, err := f.List(ctx, q)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			attempt++
			if permanent(err) || attempt >= maxAttempts {
				logger.Error("Listener failed", "attempts", attempt, "error", err)
				if onError != nil {
					onError(err)
				}
				return
			}
			wait := feed.Backoff(attempt - 1)
			logger.Warn("List failed, retrying", "attempt", attempt, "retry_in", wait, "error", err)
			if !feed.Sleep(ctx, wait) {
				return
			}
			continue
		case first || sum != last:
			first = false
			last = sum
			attempt = 0
			logger.Debug("Delivering snapshot", "documents", len(docs))
			onSnapshot(docs)
		default:
			attempt = 0
		}

		if !feed.Sleep(ctx, f.interval) {
			return
		}
	}
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func documentID(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
