// Package queue consumes provider bounce events from RabbitMQ.
//
// Each message body is a JSON BounceEvent. Messages are acknowledged
// manually: malformed or invalid events are dropped, handler failures are
// requeued once and then rejected without requeue (dead-lettered when the
// queue has a DLX).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/tbourn/go-newsletter-backend/internal/services"
)

// BounceEvent is the wire format of one bounce.
type BounceEvent struct {
	Email   string `json:"email"`
	IssueID uint   `json:"issue_id,omitempty"`
}

// BounceHandler applies a bounce. *services.BounceService satisfies it.
type BounceHandler interface {
	HandleBounce(ctx context.Context, email string, issueID uint) (services.BounceResult, error)
}

// Consumer reads BounceEvents from one durable queue.
type Consumer struct {
	URL      string
	Queue    string
	Handler  BounceHandler
	Prefetch int
	// RetryDelay is the pause before reconnecting after the broker drops us.
	RetryDelay time.Duration
}

type action int

const (
	actionAck action = iota
	actionDrop
	actionRequeue
	actionReject
)

// Run consumes until ctx is cancelled, reconnecting after broker failures.
func (c *Consumer) Run(ctx context.Context) error {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("queue", c.Queue).Dur("retry_in", delay).Msg("bounce consumer disconnected")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// consume runs one connection's lifetime.
func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.Queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if c.Prefetch > 0 {
		if err := ch.Qos(c.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}

	msgs, err := ch.Consume(
		q.Name,
		"newsletter-bounces",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	log.Info().Str("queue", q.Name).Msg("bounce consumer running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := settle(d, c.handleDelivery(ctx, d.Body, d.Redelivered)); err != nil {
				log.Error().Err(err).Msg("settle bounce message")
			}
		}
	}
}

func settle(d amqp.Delivery, a action) error {
	switch a {
	case actionRequeue:
		return d.Nack(false, true)
	case actionReject:
		return d.Nack(false, false)
	default:
		return d.Ack(false)
	}
}

// handleDelivery decodes and applies one message and decides how to settle it.
func (c *Consumer) handleDelivery(ctx context.Context, body []byte, redelivered bool) action {
	var ev BounceEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Warn().Err(err).Msg("invalid bounce event; dropping")
		return actionDrop
	}
	res, err := c.Handler.HandleBounce(ctx, ev.Email, ev.IssueID)
	switch {
	case err == nil:
		log.Debug().Int("cancelled", res.CancelledSubscriptions).Uint("issue_id", ev.IssueID).Msg("bounce applied")
		return actionAck
	case errors.Is(err, services.ErrValidation):
		log.Warn().Err(err).Msg("bounce event rejected; dropping")
		return actionDrop
	case redelivered:
		log.Error().Err(err).Msg("bounce failed twice; rejecting")
		return actionReject
	default:
		log.Warn().Err(err).Msg("bounce failed; requeueing")
		return actionRequeue
	}
}
