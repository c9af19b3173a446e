// Package amqp fans collection snapshots out over a RabbitMQ exchange and
// turns them back into a feed on the consuming side.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"gastos/internal/feed"
)

// DefaultExchange is the fanout exchange snapshots are published to.
const DefaultExchange = "gastos.snapshots"

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	source       string
	logger       *slog.Logger
}

func NewClient(url, exchangeName string, logger *slog.Logger) (*Client, error) {
	if exchangeName == "" {
		exchangeName = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		source:       uuid.NewString(),
		logger:       logger,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// Publish sends msg to every bound queue, stamping it with this client's
// source id when it has none.
func (c *Client) Publish(ctx context.Context, msg *SnapshotMessage) error {
	if msg.Source == "" {
		msg.Source = c.source
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		"",             // routing key, ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   msg.Timestamp,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.DebugContext(ctx, "Published snapshot",
		"collection", msg.Collection,
		"sequence", msg.Sequence,
		"documents", len(msg.Documents),
		"error", msg.Error,
		"exchange", c.exchangeName)

	return nil
}

// PublishSnapshot publishes a snapshot of collection.
func (c *Client) PublishSnapshot(ctx context.Context, collection string, seq int64, docs []feed.Document) error {
	return c.Publish(ctx, NewSnapshotMessage(collection, seq, docs))
}

// PublishError tells consumers the source subscription failed.
func (c *Client) PublishError(ctx context.Context, collection string, seq int64, err error) error {
	return c.Publish(ctx, NewErrorMessage(collection, seq, err))
}

// Consume binds a private queue to the exchange and returns its deliveries.
// The queue goes away with the connection.
func (c *Client) Consume(ctx context.Context) (<-chan amqp091.Delivery, error) {
	q, err := c.channel.QueueDeclare(
		"",    // name, server generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, "", c.exchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := c.channel.ConsumeWithContext(
		ctx,
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Consuming snapshots", "queue", q.Name, "exchange", c.exchangeName)
	return msgs, nil
}

// NotifyClose reports when the connection goes away.
func (c *Client) NotifyClose() <-chan *amqp091.Error {
	return c.conn.NotifyClose(make(chan *amqp091.Error, 1))
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// isConnectionError reports errors a reconnect can fix.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover || amqpErr.Code == amqp091.ConnectionForced || amqpErr.Code == amqp091.ChannelError
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"EOF",
		"broken pipe",
		"use of closed network connection",
		"channel/connection is not open",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
