package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

var (
	errPublisherClosed = errors.New("events: amqp publisher closed")
	errConnDown        = errors.New("events: amqp connection down")
)

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	IsClosed() bool
	Close() error
}

type amqpConn interface {
	Channel() (amqpChannel, error)
	NotifyClose(receiver chan *amqp091.Error) chan *amqp091.Error
	IsClosed() bool
	Close() error
}

// brokerConn adapts *amqp091.Connection to amqpConn.
type brokerConn struct{ *amqp091.Connection }

func (c brokerConn) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialBroker(url string) (amqpConn, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	return brokerConn{conn}, nil
}

// AMQPOption tunes an AMQPPublisher.
type AMQPOption func(*AMQPPublisher)

// AMQPPoolSize caps how many idle channels are kept per connection.
func AMQPPoolSize(n int) AMQPOption {
	return func(p *AMQPPublisher) {
		if n > 0 {
			p.poolSize = n
		}
	}
}

// AMQPReconnectBackoff sets the first and the longest wait between redials.
func AMQPReconnectBackoff(base, limit time.Duration) AMQPOption {
	return func(p *AMQPPublisher) {
		if base > 0 {
			p.backoffBase = base
		}
		if limit >= p.backoffBase {
			p.backoffCap = limit
		}
	}
}

// AMQPPublisher publishes to a durable topic exchange. It keeps one
// connection, reuses channels from a small pool, and redials with backoff
// when the broker drops the connection.
type AMQPPublisher struct {
	url         string
	exchange    string
	logger      *logging.Logger
	dial        func(url string) (amqpConn, error)
	poolSize    int
	backoffBase time.Duration
	backoffCap  time.Duration

	mu     sync.Mutex
	conn   amqpConn
	idle   chan amqpChannel
	closed bool
	done   chan struct{}
}

// NewAMQPPublisher dials url, declares the exchange and starts watching the
// connection.
func NewAMQPPublisher(url, exchange string, logger *logging.Logger, opts ...AMQPOption) (*AMQPPublisher, error) {
	return newAMQPPublisher(url, exchange, logger, dialBroker, opts...)
}

func newAMQPPublisher(url, exchange string, logger *logging.Logger, dial func(string) (amqpConn, error), opts ...AMQPOption) (*AMQPPublisher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	p := &AMQPPublisher{
		url:         url,
		exchange:    exchange,
		logger:      logger.Component("amqp"),
		dial:        dial,
		poolSize:    8,
		backoffBase: time.Second,
		backoffCap:  30 * time.Second,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	notify, err := p.connect()
	if err != nil {
		return nil, err
	}
	go p.watch(notify)
	return p, nil
}

// connect dials, declares the exchange and swaps in a fresh channel pool.
func (p *AMQPPublisher) connect() (chan *amqp091.Error, error) {
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("events: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare exchange %s: %w", p.exchange, err)
	}

	idle := make(chan amqpChannel, p.poolSize)
	idle <- ch
	notify := conn.NotifyClose(make(chan *amqp091.Error, 1))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = conn.Close()
		return nil, errPublisherClosed
	}
	p.conn = conn
	p.idle = idle
	return notify, nil
}

// watch redials whenever the connection closes until Close is called.
func (p *AMQPPublisher) watch(notify chan *amqp091.Error) {
	for {
		select {
		case <-p.done:
			return
		case cause := <-notify:
			if p.isClosed() {
				return
			}
			p.logger.Warn("amqp connection closed, reconnecting", "error", cause)
			next, ok := p.redial()
			if !ok {
				return
			}
			notify = next
		}
	}
}

func (p *AMQPPublisher) redial() (chan *amqp091.Error, bool) {
	backoff := p.backoffBase
	for {
		notify, err := p.connect()
		if err == nil {
			p.logger.Info("amqp reconnected", "exchange", p.exchange)
			return notify, true
		}
		if errors.Is(err, errPublisherClosed) {
			return nil, false
		}
		wait := jittered(backoff, p.backoffCap)
		p.logger.Error("amqp reconnect failed", "error", err, "retry_in", wait)
		select {
		case <-p.done:
			return nil, false
		case <-time.After(wait):
		}
		if backoff*2 < p.backoffCap {
			backoff *= 2
		} else {
			backoff = p.backoffCap
		}
	}
}

// jittered spreads d by up to a quarter either way, capped at limit.
func jittered(d, limit time.Duration) time.Duration {
	delta := (rand.Float64()*2 - 1) * 0.25
	wait := time.Duration(float64(d) * (1 + delta))
	if wait <= 0 {
		wait = d
	}
	if wait > limit {
		wait = limit
	}
	return wait
}

func (p *AMQPPublisher) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// borrow hands out an idle channel, opening one when the pool is empty.
func (p *AMQPPublisher) borrow() (amqpChannel, chan amqpChannel, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, errPublisherClosed
	}
	conn, idle := p.conn, p.idle
	p.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil, nil, errConnDown
	}
	for {
		select {
		case ch := <-idle:
			if ch.IsClosed() {
				continue
			}
			return ch, idle, nil
		default:
			ch, err := conn.Channel()
			if err != nil {
				return nil, nil, fmt.Errorf("events: open channel: %w", err)
			}
			return ch, idle, nil
		}
	}
}

// giveBack parks ch in its pool unless the pool is stale, full or the
// channel died.
func (p *AMQPPublisher) giveBack(ch amqpChannel, idle chan amqpChannel) {
	p.mu.Lock()
	current := !p.closed && idle == p.idle
	p.mu.Unlock()

	if !current || ch.IsClosed() {
		_ = ch.Close()
		return
	}
	select {
	case idle <- ch:
	default:
		_ = ch.Close()
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	ch, idle, err := p.borrow()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.exchange, env.EventType, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.EventID.String(),
		AppId:         env.Producer,
		CorrelationId: env.CorrelationID,
		Timestamp:     env.Time(),
		Body:          body,
	})
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("events: publish %s: %w", env.EventType, err)
	}
	p.giveBack(ch, idle)
	p.logger.Debug("event published", "type", env.EventType, "exchange", p.exchange)
	return nil
}

// Close stops the reconnect loop and closes the pooled channels and the
// connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	conn, idle := p.conn, p.idle
	p.mu.Unlock()

drain:
	for {
		select {
		case ch := <-idle:
			_ = ch.Close()
		default:
			break drain
		}
	}
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
