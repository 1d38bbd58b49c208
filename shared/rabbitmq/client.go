package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned by operations attempted on a closed client
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection and topology settings
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	VHost     string
	Heartbeat time.Duration

	Dial     RetryPolicy
	Publish  RetryPolicy
	Topology Topology
}

// RetryPolicy bounds a retried operation. Multiplier applies to publishing only.
type RetryPolicy struct {
	Attempts   int
	Interval   time.Duration
	Multiplier float64
}

// Topology describes the exchange and queue carrying escalation commands.
// When DeadLetterExchange is set, a fanout exchange of that name and a
// "<queue>.dead" queue are declared to keep rejected commands.
type Topology struct {
	Exchange           string
	ExchangeType       string
	Queue              string
	RoutingKey         string
	DeadLetterExchange string
	Durable            bool
	AutoDelete         bool
	Exclusive          bool
}

// Client owns one connection and one channel in publisher-confirm mode
type Client struct {
	config  *Config
	logger  *slog.Logger
	conn    *amqp.Connection
	channel *amqp.Channel

	mu        sync.RWMutex
	connected bool
}

// NewClient dials RabbitMQ, retrying per config.Dial, and declares the topology
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	c := &Client{config: config, logger: logger}

	if err := c.dial(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}
	if err := c.declare(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to declare topology: %w", err)
	}

	c.setConnected(true)
	go c.watch(c.channel.NotifyClose(make(chan *amqp.Error, 1)))

	logger.Info("RabbitMQ client initialized",
		slog.String("exchange", config.Topology.Exchange),
		slog.String("queue", config.Topology.Queue),
	)
	return c, nil
}

func (c *Config) url() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

func (c *Client) dial() error {
	attempts := max(c.config.Dial.Attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.conn, err = amqp.DialConfig(c.config.url(), amqp.Config{Heartbeat: c.config.Heartbeat})
		if err == nil {
			break
		}

		c.logger.Warn("RabbitMQ dial failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
		if attempt < attempts {
			time.Sleep(c.config.Dial.Interval)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.channel.Confirm(false); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	return nil
}

func (c *Client) declare() error {
	t := c.config.Topology

	if err := c.channel.ExchangeDeclare(t.Exchange, t.ExchangeType, t.Durable, t.AutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("exchange %s: %w", t.Exchange, err)
	}

	var args amqp.Table
	if t.DeadLetterExchange != "" {
		if err := c.declareDeadLetter(t); err != nil {
			return err
		}
		args = amqp.Table{"x-dead-letter-exchange": t.DeadLetterExchange}
	}

	if _, err := c.channel.QueueDeclare(t.Queue, t.Durable, t.AutoDelete, t.Exclusive, false, args); err != nil {
		return fmt.Errorf("queue %s: %w", t.Queue, err)
	}
	if err := c.channel.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", t.Queue, err)
	}
	return nil
}

func (c *Client) declareDeadLetter(t Topology) error {
	dead := t.Queue + ".dead"

	if err := c.channel.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("dead-letter exchange %s: %w", t.DeadLetterExchange, err)
	}
	if _, err := c.channel.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("dead-letter queue %s: %w", dead, err)
	}
	if err := c.channel.QueueBind(dead, "", t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", dead, err)
	}
	return nil
}

// watch flips the client to disconnected when the broker closes the channel
func (c *Client) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	c.setConnected(false)
	if ok && amqpErr != nil {
		c.logger.Error("RabbitMQ channel closed",
			slog.Int("code", amqpErr.Code),
			slog.String("reason", amqpErr.Reason),
		)
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck reports whether the channel is still open
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// SetQos limits the number of unacknowledged deliveries per consumer
func (c *Client) SetQos(prefetchCount int) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.channel.Qos(prefetchCount, 0, false)
}

// Consume starts a manual-ack consumer on the command queue
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	deliveries, err := c.channel.Consume(c.config.Topology.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %s: %w", c.config.Topology.Queue, err)
	}

	c.logger.Info("Consuming escalation commands",
		slog.String("queue", c.config.Topology.Queue),
		slog.String("consumer_tag", consumerTag),
	)
	return deliveries, nil
}

// PublishWithRetry publishes a persistent message and waits for the broker
// confirm. Failed or nacked attempts are retried with exponential backoff
// until config.Publish.Attempts is exhausted or ctx is done.
func (c *Client) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	policy := c.config.Publish
	attempts := max(policy.Attempts, 1)
	interval := policy.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	mult := policy.Multiplier
	if mult <= 1 {
		mult = 2
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoff(interval, mult, attempt-1)
			c.logger.Warn("Retrying publish",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("publish canceled: %w", ctx.Err())
			}
		}

		if lastErr = c.publish(ctx, body, contentType); lastErr == nil {
			c.logger.Debug("Message published",
				slog.Int("attempt", attempt+1),
				slog.Int("body_size", len(body)),
			)
			return nil
		}
	}

	return fmt.Errorf("failed to publish after %d attempts: %w", attempts, lastErr)
}

func (c *Client) publish(ctx context.Context, body []byte, contentType string) error {
	t := c.config.Topology
	confirm, err := c.channel.PublishWithDeferredConfirmWithContext(ctx, t.Exchange, t.RoutingKey, false, false, amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("broker nacked message")
	}
	return nil
}

// Close closes the channel and the connection
func (c *Client) Close() error {
	c.setConnected(false)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Warn("Failed to close RabbitMQ channel", slog.Any("error", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
		}
	}

	c.logger.Info("RabbitMQ connection closed")
	return nil
}

// backoff returns base * mult^attempt
func backoff(base time.Duration, mult float64, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(mult, float64(attempt)))
}
