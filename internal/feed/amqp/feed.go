package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"gastos/internal/feed"
)

// Feed is a read-only feed fed by snapshots a relay publishes to the
// exchange. It reconnects with backoff when the broker goes away.
type Feed struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel []context.CancelFunc
	closed bool
}

var _ feed.Feed = (*Feed)(nil)

// NewFeed returns a feed reading from exchange on the broker at url. An
// empty exchange means DefaultExchange. Nothing connects until Subscribe.
func NewFeed(url, exchange string, logger *slog.Logger) *Feed {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{url: url, exchange: exchange, logger: logger}
}

// Add always fails: the relay owns the source collection.
func (f *Feed) Add(context.Context, string, map[string]any) (string, error) {
	return "", feed.ErrReadOnly
}

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

// Subscribe connects in the background. Nothing is delivered until the
// relay publishes its next snapshot.
func (f *Feed) Subscribe(ctx context.Context, q feed.Query, onSnapshot func([]feed.Document), onError func(error)) (feed.Unsubscribe, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, feed.ErrClosed
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = append(f.cancel, cancel)
	f.wg.Add(1)
	f.mu.Unlock()

	sub := &consumer{q: q, onSnapshot: onSnapshot, onError: onError, logger: f.logger.With("query", q.String())}
	go func() {
		defer f.wg.Done()
		f.run(runCtx, sub)
	}()
	return feed.Unsubscribe(cancel), nil
}

func (f *Feed) run(ctx context.Context, sub *consumer) {
	attempt := 0
	for {
		err := f.consumeOnce(ctx, sub, func() { attempt = 0 })
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, errSubscriptionEnded):
			return
		case err != nil && !isConnectionError(err):
			sub.logger.Error("Snapshot consumer failed", "error", err)
			if sub.onError != nil {
				sub.onError(err)
			}
			return
		}

		wait := feed.Backoff(attempt)
		attempt++
		sub.logger.Warn("Broker connection lost, reconnecting", "attempt", attempt, "retry_in", wait, "error", err)
		if !feed.Sleep(ctx, wait) {
			return
		}
	}
}

var errSubscriptionEnded = errors.New("subscription ended by source error")

func (f *Feed) consumeOnce(ctx context.Context, sub *consumer, connected func()) error {
	client, err := NewClient(f.url, f.exchange, f.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	msgs, err := client.Consume(ctx)
	if err != nil {
		return err
	}
	closed := client.NotifyClose()
	connected()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return fmt.Errorf("connection closed")
			}
			return amqpErr
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			if sub.handleDelivery(ctx, d) {
				return errSubscriptionEnded
			}
		}
	}
}

// acknowledger is the part of amqp091.Delivery handleDelivery needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type consumer struct {
	q          feed.Query
	onSnapshot func([]feed.Document)
	onError    func(error)
	logger     *slog.Logger
	source     string
	lastSeq    int64
}

func (c *consumer) handleDelivery(ctx context.Context, d amqp091.Delivery) bool {
	return c.handle(ctx, d.Body, &d)
}

// handle processes one message body and reports whether the subscription
// ended. Malformed messages are rejected without requeue.
func (c *consumer) handle(ctx context.Context, body []byte, ack acknowledger) bool {
	msg, err := SnapshotMessageFromJSON(body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to unmarshal snapshot", "error", err)
		if err := ack.Nack(false, false); err != nil {
			c.logger.WarnContext(ctx, "Failed to reject message", "error", err)
		}
		return false
	}
	// a failed ack still delivers the snapshot
	if err := ack.Ack(false); err != nil {
		c.logger.WarnContext(ctx, "Failed to ack snapshot", "error", err)
	}

	if msg.Collection != c.q.Collection {
		return false
	}
	if msg.Source != c.source {
		c.source = msg.Source
		c.lastSeq = 0
	}
	if msg.Sequence < c.lastSeq {
		c.logger.DebugContext(ctx, "Dropping stale snapshot", "sequence", msg.Sequence, "last", c.lastSeq)
		return false
	}
	c.lastSeq = msg.Sequence

	if msg.Error != "" {
		if c.onError != nil {
			c.onError(errors.New(msg.Error))
		}
		return true
	}
	c.onSnapshot(feed.SortDocuments(msg.Documents, c.q))
	return false
}
