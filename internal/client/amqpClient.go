package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"order-status-tracker/internal/config"
	"order-status-tracker/internal/model"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AmqpPublisher publishes status events to a durable fanout exchange so other
// services (kitchen displays, analytics) can follow order progress.
type AmqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewAmqpPublisher(cfg config.AMQP) (*AmqpPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	return &AmqpPublisher{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

func (p *AmqpPublisher) PublishStatus(ctx context.Context, event model.StatusEvent) error {
	msg, err := newStatusPublishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, "", false, false, msg); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}

func (p *AmqpPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func newStatusPublishing(event model.StatusEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal status event: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     uuid.NewString(),
		CorrelationId: strconv.FormatUint(uint64(event.OrderID), 10),
		Timestamp:     event.OccurredAt,
		Type:          "order.status_changed",
		Headers: amqp.Table{
			"x-status":  string(event.NewStatus),
			"x-version": int64(event.Version),
		},
		Body: body,
	}, nil
}
