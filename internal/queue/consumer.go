package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/logging"
)

// Handler reacts to a change published by another instance.
type Handler func(ctx context.Context, ev CodeChangedEvent)

// Consumer binds a private, auto-deleted queue to the fanout exchange and
// hands every event from other instances to a Handler.
type Consumer struct {
	url    string
	origin string
	handle Handler
	log    *zap.Logger
}

// NewConsumer creates a Consumer.  Events stamped with origin are skipped:
// the publishing instance has already applied them.
func NewConsumer(url, origin string, handle Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		url:    url,
		origin: origin,
		handle: handle,
		log:    logging.OrNop(logger).With(logging.Component("consumer")),
	}
}

// Run consumes until ctx is cancelled, reconnecting with backoff whenever
// the broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if err := wait(ctx, backoff); err != nil {
				return err
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if err := wait(ctx, 2*time.Second); err != nil {
			return err
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareExchange(ch); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", CodeChangedExchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consuming code change events", zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(ctx, d.Body); err != nil {
				c.log.Warn("dropping code change event", zap.Error(err))
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
	var ev CodeChangedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Origin != "" && ev.Origin == c.origin {
		return nil
	}
	c.handle(ctx, ev)
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
