// Package broker implements the AMQP Bridge (§4.8): a single shared
// connection, declarative consumer/producer registration, and a health
// monitor that reconnects and re-declares topology after an outage.
//
// Grounded on the reconnect-monitor shape used by RabbitMQ clients
// elsewhere in this stack: a shared *amqp.Connection, per-consumer and
// per-producer channels, and a background goroutine that checks the
// connection on a fixed interval and rebuilds topology on reconnect.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

const (
	healthCheckInterval = 30 * time.Second
	reconnectBackoff    = 20 * time.Second
	publishRetries      = 3
	publishBackoff      = 1 * time.Second
)

// ConsumerHandler processes one decoded delivery body. It must be
// idempotent: auto-ack means redelivery does not occur in normal
// operation, but the Bridge provides only at-most-once semantics (§4.8, §9).
type ConsumerHandler func(body []byte)

// Consumer is a declarative registration: queue, exchange, routing key, and
// an optional JSON schema validated before the handler runs.
type Consumer struct {
	Queue           string
	Exchange        string
	RoutingKey      string
	ExchangeType    string
	DeclareExchange bool
	Schema          func() interface{} // returns a pointer to decode the body into; nil skips validation
	Handler         ConsumerHandler

	channel *amqp.Channel
	tag     string
}

// Producer is a declarative publish target.
type Producer struct {
	Exchange          string
	ExchangeType      string
	DefaultRoutingKey string

	channel    *amqp.Channel
	declared   chan struct{}
	declareOne sync.Once
}

// Bridge owns the shared connection and every registered Consumer/Producer.
type Bridge struct {
	url string

	mu         sync.Mutex
	conn       *amqp.Connection
	consumers  []*Consumer
	producers  map[string]*Producer
	shutdownCh chan struct{}
}

// New builds a Bridge for the given amqp:// URL. Call Register* before
// Start.
func New(url string) *Bridge {
	return &Bridge{
		url:        url,
		producers:  make(map[string]*Producer),
		shutdownCh: make(chan struct{}),
	}
}

// RegisterConsumer adds a consumer to the Bridge's declarative registry.
// Must be called before Start.
func (b *Bridge) RegisterConsumer(c *Consumer) {
	if c.ExchangeType == "" {
		c.ExchangeType = "topic"
	}
	b.consumers = append(b.consumers, c)
}

// RegisterProducer adds a producer to the Bridge's declarative registry and
// returns it so callers can Publish later. Must be called before Start.
func (b *Bridge) RegisterProducer(p *Producer) *Producer {
	if p.ExchangeType == "" {
		p.ExchangeType = "topic"
	}
	p.declared = make(chan struct{})
	b.producers[p.Exchange] = p
	return p
}

// Start opens the shared connection, declares every registered consumer and
// producer's topology, and begins consuming. It also launches the health
// monitor.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.connect(); err != nil {
		return err
	}

	for _, c := range b.consumers {
		if err := b.setupConsumer(c); err != nil {
			logger.Broker().Error().Err(err).Str("queue", c.Queue).Msg("failed to set up consumer at startup")
		}
	}
	for _, p := range b.producers {
		if err := b.setupProducer(p); err != nil {
			logger.Broker().Error().Err(err).Str("exchange", p.Exchange).Msg("failed to set up producer at startup")
		}
	}

	go b.healthMonitor(ctx)
	return nil
}

func (b *Bridge) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("broker: dial: %w", err)
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	logger.Broker().Info().Msg("AMQP connection established")
	return nil
}

func (b *Bridge) connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && !b.conn.IsClosed()
}

func (b *Bridge) setupConsumer(c *Consumer) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}

	if c.DeclareExchange {
		if err := ch.ExchangeDeclare(c.Exchange, c.ExchangeType, true, false, false, false, nil); err != nil {
			return fmt.Errorf("exchange declare: %w", err)
		}
	}

	q, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	if err := ch.QueueBind(q.Name, c.RoutingKey, c.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.channel = ch
	go b.runConsumer(c, deliveries)
	logger.Broker().Info().Str("queue", c.Queue).Str("exchange", c.Exchange).Msg("consumer registered")
	return nil
}

func (b *Bridge) runConsumer(c *Consumer, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		body := d.Body
		if c.Schema != nil {
			target := c.Schema()
			if err := json.Unmarshal(body, target); err != nil {
				logger.Broker().Warn().Err(err).Str("queue", c.Queue).Msg("delivery failed schema validation, dropping")
				continue
			}
			reencoded, err := json.Marshal(target)
			if err != nil {
				logger.Broker().Warn().Err(err).Str("queue", c.Queue).Msg("failed to re-encode validated delivery, dropping")
				continue
			}
			body = reencoded
		}
		go c.Handler(body)
	}
	logger.Broker().Warn().Str("queue", c.Queue).Msg("consumer channel closed")
}

func (b *Bridge) setupProducer(p *Producer) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.Exchange, p.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}

	p.channel = ch
	select {
	case <-p.declared:
	default:
		close(p.declared)
	}
	logger.Broker().Info().Str("exchange", p.Exchange).Msg("producer registered")
	return nil
}

// Publish sends body (bytes or a UTF-8 string encoded to bytes) to p's
// exchange, using routingKey if non-empty or the producer's default
// otherwise. It awaits the exchange-declared signal, then retries up to
// publishRetries times with publishBackoff between attempts before
// returning false (§4.8).
func (p *Producer) Publish(ctx context.Context, routingKey string, body []byte, mandatory bool) bool {
	select {
	case <-p.declared:
	case <-ctx.Done():
		return false
	}

	key := routingKey
	if key == "" {
		key = p.DefaultRoutingKey
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if p.channel == nil {
			lastErr = fmt.Errorf("producer channel not ready")
		} else {
			err := p.channel.PublishWithContext(ctx, p.Exchange, key, mandatory, false, amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			})
			if err == nil {
				return true
			}
			lastErr = err
		}
		time.Sleep(publishBackoff)
	}

	logger.Broker().Error().Err(lastErr).Str("exchange", p.Exchange).Str("routing_key", key).Msg("publish failed after retries")
	return false
}

// healthMonitor wakes every healthCheckInterval, reconnects the shared
// connection if down (with reconnectBackoff on failure), and re-declares
// topology for any consumer or producer left without a live channel (§4.8).
func (b *Bridge) healthMonitor(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.shutdownCh:
			return
		case <-ticker.C:
			if !b.connected() {
				logger.Broker().Warn().Msg("AMQP connection down, attempting reconnect")
				if err := b.connect(); err != nil {
					logger.Broker().Error().Err(err).Msg("reconnect failed, backing off")
					time.Sleep(reconnectBackoff)
					continue
				}
			}

			for _, c := range b.consumers {
				if c.channel == nil || c.channel.IsClosed() {
					if err := b.setupConsumer(c); err != nil {
						logger.Broker().Error().Err(err).Str("queue", c.Queue).Msg("failed to re-establish consumer")
					}
				}
			}
			for _, p := range b.producers {
				if p.channel == nil || p.channel.IsClosed() {
					if err := b.setupProducer(p); err != nil {
						logger.Broker().Error().Err(err).Str("exchange", p.Exchange).Msg("failed to re-establish producer")
					}
				}
			}
		}
	}
}

// Shutdown cancels every consumer, closes every channel, and closes the
// shared connection (§4.8).
func (b *Bridge) Shutdown() {
	close(b.shutdownCh)

	for _, c := range b.consumers {
		if c.channel != nil {
			c.channel.Cancel(c.tag, false)
			c.channel.Close()
		}
	}
	for _, p := range b.producers {
		if p.channel != nil {
			p.channel.Close()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
	}
}
