package main

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/recommend"
	"github.com/suPer8Hu/moodtune/internal/store/rabbitmq"
)

const maxAttempts = 3

type batchWriter interface {
	Write(ctx context.Context, b recommend.Batch) (saved, failed int)
}

type retrier interface {
	Retry(ctx context.Context, body []byte, attempt int, delay time.Duration) error
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// handleDelivery writes one batch and settles the delivery. Only batches
// where nothing was saved are retried, so a retry never duplicates rows.
func handleDelivery(ctx context.Context, d amqp.Delivery, w batchWriter, r retrier, log logrus.FieldLogger) {
	b, err := rabbitmq.DecodeBatch(d.Body)
	if err != nil {
		log.WithError(err).Warn("bad message, dead-lettering")
		_ = d.Nack(false, false)
		return
	}

	attempt := rabbitmq.Attempt(d)
	log = log.WithFields(logrus.Fields{"turn_id": b.TurnID, "attempt": attempt})

	saved, failed := w.Write(ctx, b)
	if saved > 0 || failed == 0 {
		if err := d.Ack(false); err != nil {
			log.WithError(err).Warn("ack failed")
		}
		return
	}

	if attempt+1 >= maxAttempts {
		log.Warn("batch failed, attempts exhausted")
		_ = d.Nack(false, false)
		return
	}
	if err := r.Retry(ctx, d.Body, attempt+1, backoff(attempt)); err != nil {
		log.WithError(err).Warn("retry publish failed, dead-lettering")
		_ = d.Nack(false, false)
		return
	}
	log.Info("batch failed, retry scheduled")
	_ = d.Ack(false)
}
