package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/app"
	"github.com/suPer8Hu/moodtune/internal/config"
	"github.com/suPer8Hu/moodtune/internal/db"
	"github.com/suPer8Hu/moodtune/internal/logger"
	"github.com/suPer8Hu/moodtune/internal/recommend"
	"github.com/suPer8Hu/moodtune/internal/store/rabbitmq"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat).WithField("component", "worker")

	if cfg.DBDSN == "" {
		log.Fatal("DB_DSN is required")
	}
	gdb := db.Connect(log, cfg.DBDriver, cfg.DBDSN)
	repo := recommend.NewRepo(gdb)
	if err := repo.Migrate(); err != nil {
		log.WithError(err).Fatal("migrate failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, releaseResolver := app.TrackResolver(ctx, cfg, log)
	defer releaseResolver()
	writer := recommend.NewBatchWriter(repo, resolver, cfg.PersistConcurrency, log)

	// retries go through the retry queue
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, log)
	if err != nil {
		log.WithError(err).Fatal("rabbit publisher")
	}
	defer pub.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.WithError(err).Fatal("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Fatal("rabbit channel")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.WithError(err).Fatal("queue declare")
	}

	// strict concurrency control
	concurrency := cfg.PersistConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.WithError(err).Fatal("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.WithError(err).Fatal("consume")
	}

	log.WithFields(logrus.Fields{"queue": cfg.RabbitQueue, "concurrency": concurrency}).Info("worker started")

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.WithField("worker", workerID)
			for d := range jobs {
				// deliveries are finished even during shutdown
				handleDelivery(context.WithoutCancel(ctx), d, writer, pub, wlog)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}
