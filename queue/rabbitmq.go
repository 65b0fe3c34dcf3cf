/*
rabbitmq.go - Asynchronous recalculation commands

PURPOSE:
  Lets the API accept an explicit recalculate request and hand it to a
  worker process instead of computing inline. A command names one
  employee-day; the worker runs the same Driver.Recalculate the
  synchronous endpoint uses.

DELIVERY:
  - Messages are persistent JSON on a durable queue
  - Publishing waits for the broker's confirm; a message the broker returns
    as unroutable is reported to the caller as a failure
  - A command that cannot be decoded is dropped (Nack without requeue)
  - A transient failure is requeued; any other failure is dropped and logged
  - Recalculation is idempotent, so redelivery is harmless

SEE ALSO:
  - recalc/driver.go: Recalculate
  - cmd/worker: Consumer process
*/
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/config"
)

// RecalculateCommand asks for one employee-day to be recalculated.
type RecalculateCommand struct {
	EmployeeID  attendance.EmployeeID `json:"employee_id"`
	WorkDate    attendance.Date       `json:"work_date"`
	RequestedBy string                `json:"requested_by,omitempty"`
	RequestedAt time.Time             `json:"requested_at"`
}

// Recalculator is the part of the driver the consumer needs.
type Recalculator interface {
	Recalculate(ctx context.Context, employeeID attendance.EmployeeID, date attendance.Date) (attendance.DailyRecord, error)
}

// Conn owns the AMQP connection and one channel with the queue declared.
type Conn struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func Dial(cfg config.RabbitMQConfig) (*Conn, error) {
	conn, err := amqp.Dial(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set prefetch: %w", err)
		}
	}
	return &Conn{conn: conn, ch: ch, queue: cfg.Queue}, nil
}

func (c *Conn) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// =============================================================================
// PUBLISHER
// =============================================================================

type Publisher struct {
	conn    *Conn
	timeout time.Duration
	logger  *zap.Logger
	returns chan amqp.Return
	mu      sync.Mutex // amqp channels are not safe for concurrent publishing
}

// NewPublisher puts the channel in confirm mode and listens for returned
// messages.
func NewPublisher(conn *Conn, timeout time.Duration, logger *zap.Logger) (*Publisher, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := conn.ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	returns := conn.ch.NotifyReturn(make(chan amqp.Return, 16))
	return &Publisher{conn: conn, timeout: timeout, logger: logger, returns: returns}, nil
}

func (p *Publisher) PublishRecalculate(ctx context.Context, cmd RecalculateCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	msgID := uuid.NewString()
	confirm, err := p.conn.ch.PublishWithDeferredConfirmWithContext(ctx,
		"",
		p.conn.queue,
		true, // mandatory: unroutable messages come back on p.returns
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Timestamp:    cmd.RequestedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: publish recalculate: %v", attendance.ErrStoreUnavailable, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: await publish confirm: %v", attendance.ErrStoreUnavailable, err)
	}
	// The broker sends a return before the confirm of the same message.
	if ret, ok := returned(p.returns, msgID); ok {
		return fmt.Errorf("%w: recalculate command returned: %s", attendance.ErrStoreUnavailable, ret.ReplyText)
	}
	if !acked {
		return fmt.Errorf("%w: recalculate command nacked by broker", attendance.ErrStoreUnavailable)
	}

	p.logger.Debug("recalculation queued",
		zap.String("employee_id", string(cmd.EmployeeID)),
		zap.Stringer("work_date", cmd.WorkDate),
	)
	return nil
}

// returned drains the pending returns and reports the one for msgID, if
// any. Returns of earlier messages are discarded.
func returned(returns <-chan amqp.Return, msgID string) (amqp.Return, bool) {
	var (
		match amqp.Return
		found bool
	)
	for {
		select {
		case ret, ok := <-returns:
			if !ok {
				return match, found
			}
			if ret.MessageId == msgID {
				match, found = ret, true
			}
		default:
			return match, found
		}
	}
}

// =============================================================================
// CONSUMER
// =============================================================================

type Consumer struct {
	conn   *Conn
	driver Recalculator
	logger *zap.Logger
}

func NewConsumer(conn *Conn, driver Recalculator, logger *zap.Logger) *Consumer {
	return &Consumer{conn: conn, driver: driver, logger: logger}
}

// Run consumes commands until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.conn.ch.Consume(
		c.conn.queue,
		"",    // consumer tag assigned by the broker
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.conn.queue, err)
	}

	c.logger.Info("consuming", zap.String("queue", c.conn.queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	ack := Decide(ctx, c.driver, c.logger, msg.Body)
	switch ack {
	case Ack:
		_ = msg.Ack(false)
	case Requeue:
		_ = msg.Nack(false, true)
	default:
		_ = msg.Nack(false, false)
	}
}

// Outcome tells the broker what to do with a delivery.
type Outcome int

const (
	Ack Outcome = iota
	Requeue
	Drop
)

// Decide processes one message body and reports how it should be
// acknowledged. It is separate from the AMQP plumbing so it can be tested
// without a broker.
func Decide(ctx context.Context, driver Recalculator, logger *zap.Logger, body []byte) Outcome {
	var cmd RecalculateCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		logger.Error("undecodable command", zap.Error(err), zap.ByteString("body", body))
		return Drop
	}
	if cmd.EmployeeID == "" || cmd.WorkDate.IsZero() {
		logger.Error("incomplete command", zap.ByteString("body", body))
		return Drop
	}

	rec, err := driver.Recalculate(ctx, cmd.EmployeeID, cmd.WorkDate)
	switch {
	case err == nil:
		logger.Info("recalculated",
			zap.String("employee_id", string(cmd.EmployeeID)),
			zap.Stringer("work_date", cmd.WorkDate),
			zap.String("status", string(rec.Status)),
		)
		return Ack
	case attendance.IsRetryable(err) || ctx.Err() != nil:
		return Requeue
	default:
		logger.Error("recalculation failed, dropping command",
			zap.String("employee_id", string(cmd.EmployeeID)),
			zap.Stringer("work_date", cmd.WorkDate),
			zap.Error(err),
		)
		return Drop
	}
}
