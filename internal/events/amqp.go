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

	"github.com/charlesng35/sessiond/pkg/logger"
)

const (
	defaultExchange  = "sessiond.sessions"
	defaultTimeout   = 5 * time.Second
	defaultQueueSize = 256
)

var (
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("events: publisher closed")
	// ErrQueueFull is returned when the delivery buffer has no room left.
	ErrQueueFull = errors.New("events: delivery queue full")
)

// AMQPConfig configures the RabbitMQ publisher.
type AMQPConfig struct {
	URL string
	// Exchange is a topic exchange; events are routed by their Type.
	Exchange string
	// Timeout bounds dialling the broker and each publish.
	Timeout time.Duration
	// QueueSize is the number of events buffered while the broker is slow.
	QueueSize int
}

// AMQPOption customises an AMQPPublisher.
type AMQPOption func(*AMQPPublisher)

// WithAMQPLogger overrides the publisher logger.
func WithAMQPLogger(log *zap.Logger) AMQPOption {
	return func(p *AMQPPublisher) {
		if log != nil {
			p.log = log
		}
	}
}

func withDialer(dial func(url string) (*amqp.Connection, error)) AMQPOption {
	return func(p *AMQPPublisher) {
		p.dial = dial
	}
}

// AMQPPublisher publishes events as persistent JSON messages. Publish only
// enqueues; a single goroutine owns the broker connection, dials lazily and
// re-dials after it drops. Callers never wait on the broker.
type AMQPPublisher struct {
	cfg   AMQPConfig
	log   *zap.Logger
	dial  func(url string) (*amqp.Connection, error)
	queue chan Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	// owned by the delivery goroutine
	conn      *amqp.Connection
	ch        *amqp.Channel
	retryFrom time.Time
}

// NewAMQPPublisher validates cfg and starts the delivery goroutine. No
// connection is made until the first event is delivered.
func NewAMQPPublisher(cfg AMQPConfig, opts ...AMQPOption) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("events: amqp url is required")
	}
	if _, err := amqp.ParseURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("events: parse amqp url: %w", err)
	}
	if cfg.Exchange == "" {
		cfg.Exchange = defaultExchange
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	p := &AMQPPublisher{
		cfg:   cfg,
		log:   logger.WithModule("events"),
		queue: make(chan Event, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	p.dial = func(url string) (*amqp.Connection, error) {
		return amqp.DialConfig(url, amqp.Config{
			Locale:    "en_US",
			Heartbeat: 10 * time.Second,
			Dial:      amqp.DefaultDial(p.cfg.Timeout),
		})
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.run()
	return p, nil
}

// Publish enqueues event for delivery without blocking. The context is not
// used for delivery since the request may finish before the broker answers.
func (p *AMQPPublisher) Publish(_ context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, flushes the queue and shuts the connection down.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return nil
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	defer func() {
		if err := p.reset(); err != nil {
			p.log.Warn("close broker connection", zap.Error(err))
		}
	}()

	for event := range p.queue {
		if err := p.deliver(event); err != nil {
			p.log.Warn("event dropped",
				zap.String("type", string(event.Type)),
				zap.Error(err),
			)
		}
	}
}

func (p *AMQPPublisher) deliver(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type, err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, p.cfg.Exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt.UTC(),
		Type:         string(event.Type),
		Body:         body,
	})
	if err != nil {
		_ = p.reset()
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// channel returns the open channel, dialling when needed. After a failed dial
// events are dropped without dialling again until one timeout has elapsed.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	_ = p.reset()

	if time.Now().Before(p.retryFrom) {
		return nil, errors.New("broker unavailable")
	}

	conn, err := p.dial(p.cfg.URL)
	if err != nil {
		p.retryFrom = time.Now().Add(p.cfg.Timeout)
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker", zap.String("exchange", p.cfg.Exchange))
	return ch, nil
}

func (p *AMQPPublisher) reset() error {
	var err error
	if p.ch != nil {
		err = errors.Join(err, ignoreClosed(p.ch.Close()))
		p.ch = nil
	}
	if p.conn != nil {
		err = errors.Join(err, ignoreClosed(p.conn.Close()))
		p.conn = nil
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
