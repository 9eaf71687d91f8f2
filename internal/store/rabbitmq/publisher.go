package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/recommend"
)

const (
	AttemptHeader  = "x-attempt"
	publishTimeout = 5 * time.Second
)

var ErrBadMessage = errors.New("rabbitmq: bad batch message")

// Publisher sends recommendation batches to a durable queue consumed by
// cmd/worker. It satisfies recommend.Persister.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	log   logrus.FieldLogger

	// amqp channels must not be published to concurrently
	mu sync.Mutex
}

func RetryQueue(queue string) string { return queue + ".retry" }
func DeadQueue(queue string) string  { return queue + ".dlq" }

// DeclareTopology declares the main, retry and dead-letter queues. Retry
// messages expire back into the main queue; rejected ones go to the DLQ.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(DeadQueue(queue), true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(RetryQueue(queue), true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return err
	}
	_, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadQueue(queue),
	})
	return err
}

func NewPublisher(url, queue string, log logrus.FieldLogger) (*Publisher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, log: log}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func EncodeBatch(b recommend.Batch) ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBatch rejects bodies without a user or candidates.
func DecodeBatch(body []byte) (recommend.Batch, error) {
	var b recommend.Batch
	if err := json.Unmarshal(body, &b); err != nil {
		return recommend.Batch{}, errors.Join(ErrBadMessage, err)
	}
	if b.UserID == "" || len(b.Candidates) == 0 {
		return recommend.Batch{}, ErrBadMessage
	}
	return b, nil
}

func (p *Publisher) PublishBatch(ctx context.Context, b recommend.Batch) error {
	body, err := EncodeBatch(b)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.queue, body, 0, "")
}

// Retry schedules body for another attempt after delay via the retry queue.
func (p *Publisher) Retry(ctx context.Context, body []byte, attempt int, delay time.Duration) error {
	return p.publish(ctx, RetryQueue(p.queue), body, attempt, strconv.FormatInt(delay.Milliseconds(), 10))
}

// Persist implements recommend.Persister. Publish failures are logged only.
func (p *Publisher) Persist(ctx context.Context, b recommend.Batch) {
	if len(b.Candidates) == 0 {
		return
	}
	if ctx.Err() != nil {
		p.log.WithField("turn_id", b.TurnID).Debug("turn cancelled, batch not published")
		return
	}
	// the batch belongs to the queue once the turn is done
	if err := p.PublishBatch(context.WithoutCancel(ctx), b); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"turn_id":    b.TurnID,
			"candidates": len(b.Candidates),
		}).Warn("batch publish failed")
	}
}

func (p *Publisher) publish(ctx context.Context, queue string, body []byte, attempt int, expiration string) error {
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{AttemptHeader: int32(attempt)},
			Expiration:   expiration,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Attempt reads the retry counter of a delivery.
func Attempt(d amqp.Delivery) int {
	switch v := d.Headers[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
