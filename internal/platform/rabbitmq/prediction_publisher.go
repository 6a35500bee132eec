package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"imgclass/internal/model"
)

const predictionEventType = "prediction.served"

var errPublisherClosed = errors.New("prediction publisher closed")

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// PredictionPublisher sends prediction events to a durable queue over one
// long-lived channel. The channel is opened and the queue declared on first
// use, and both are redone only after the channel breaks.
type PredictionPublisher struct {
	queueName string
	open      func() (channel, error)

	mu     sync.Mutex
	ch     channel
	closed bool
}

func NewPredictionPublisher(conn *amqp.Connection, queueName string) *PredictionPublisher {
	return newPredictionPublisher(queueName, func() (channel, error) {
		return conn.Channel()
	})
}

func newPredictionPublisher(queueName string, open func() (channel, error)) *PredictionPublisher {
	return &PredictionPublisher{
		queueName: queueName,
		open:      open,
	}
}

func (p *PredictionPublisher) Publish(ctx context.Context, event model.PredictionEvent) error {
	msg, err := eventPublishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		p.dropChannelLocked()
		return fmt.Errorf("publish prediction event failed: %w", err)
	}
	return nil
}

// Close releases the channel. The connection is owned by the caller.
func (p *PredictionPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close rabbitmq channel failed: %w", err)
	}
	return nil
}

func (p *PredictionPublisher) channelLocked() (channel, error) {
	if p.closed {
		return nil, errPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.ch = nil

	ch, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue failed: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *PredictionPublisher) dropChannelLocked() {
	if p.ch == nil {
		return
	}
	_ = p.ch.Close()
	p.ch = nil
}

func eventPublishing(event model.PredictionEvent) (amqp.Publishing, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal prediction event failed: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.CreatedAt,
		Type:         predictionEventType,
	}, nil
}
