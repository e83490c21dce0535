package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"fieldservice/backend/libs/logging"
)

// RoutingVisitCompleted is the routing key of completed visit events.
const RoutingVisitCompleted = "visit.completed"

const confirmTimeout = 5 * time.Second

// VisitCompleted is published once per newly stored visit.
type VisitCompleted struct {
	VisitID       string        `json:"visitId"`
	CustomerID    string        `json:"customerId"`
	TechnicianID  string        `json:"technicianId"`
	AppointmentID string        `json:"appointmentId,omitempty"`
	WorkType      string        `json:"workType"`
	Duration      time.Duration `json:"duration"`
	StationCount  int           `json:"stationCount"`
	CompletedAt   time.Time     `json:"completedAt"`
}

// Publisher sends events to a durable topic exchange with publisher
// confirms. A broken channel is reopened on the next publish.
type Publisher struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

// NewPublisher dials the broker and declares the exchange.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{url: url, exchange: exchange, logger: logging.OrNop(logger)}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connectLocked() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: declare exchange %s: %w", p.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	returns := ch.NotifyReturn(make(chan amqp.Return, 1))
	go func() {
		for r := range returns {
			p.logger.Warn("event returned unroutable",
				zap.String("routing_key", r.RoutingKey),
				zap.Uint16("code", r.ReplyCode),
				zap.String("reason", r.ReplyText),
			)
		}
	}()

	p.conn = conn
	p.ch = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.logger.Info("rabbitmq publisher connected", zap.String("exchange", p.exchange))
	return nil
}

// PublishVisitCompleted publishes evt under RoutingVisitCompleted.
func (p *Publisher) PublishVisitCompleted(ctx context.Context, evt VisitCompleted) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.Publish(ctx, RoutingVisitCompleted, body)
}

// Publish sends a persistent JSON message and waits for the broker ack.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.ch == nil || p.ch.IsClosed() {
		p.closeLocked()
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, true, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", routingKey, err)
	}

	select {
	case c, ok := <-p.confirms:
		if !ok {
			return errors.New("rabbitmq: channel closed before confirm")
		}
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish %s not acknowledged", routingKey)
		}
		return nil
	case <-ctx.Done():
		// The confirm stream is per channel; drop it so the next publish
		// starts aligned on a fresh one.
		p.closeLocked()
		return ctx.Err()
	}
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.confirms = nil
}
