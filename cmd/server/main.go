package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/suPer8Hu/moodtune/internal/app"
	"github.com/suPer8Hu/moodtune/internal/chat"
	"github.com/suPer8Hu/moodtune/internal/config"
	"github.com/suPer8Hu/moodtune/internal/db"
	"github.com/suPer8Hu/moodtune/internal/httpapi"
	"github.com/suPer8Hu/moodtune/internal/httpapi/handlers"
	"github.com/suPer8Hu/moodtune/internal/logger"
	"github.com/suPer8Hu/moodtune/internal/recommend"
	"github.com/suPer8Hu/moodtune/internal/store/rabbitmq"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(log, cfg.DBDriver, cfg.DBDSN)
	repo := recommend.NewRepo(gdb)
	if err := repo.Migrate(); err != nil {
		log.WithError(err).Fatal("migrate failed")
	}

	provider, err := app.Provider(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("llm provider")
	}

	var (
		persister recommend.Persister
		shutdown  func()
	)
	switch cfg.PersistMode {
	case config.PersistQueue:
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, log)
		if err != nil {
			log.WithError(err).Fatal("rabbit publisher")
		}
		persister, shutdown = pub, func() { _ = pub.Close() }
	default:
		resolver, release := app.TrackResolver(ctx, cfg, log)
		writer := recommend.NewBatchWriter(repo, resolver, cfg.PersistConcurrency, log)
		async := recommend.NewAsyncPersister(writer, cfg.PersistConcurrency, cfg.PersistBuffer, log)
		persister, shutdown = async, func() {
			async.Close()
			release()
		}
	}

	svc := chat.NewService(provider, recommend.NewParser(log), persister, log, chat.Options{
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	})
	h := handlers.NewHandler(svc, chat.NewSessions(), repo, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.JWTSecret, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":     cfg.HTTPAddr,
			"provider": cfg.LLMProvider,
			"model":    cfg.LLMModel,
			"persist":  cfg.PersistMode,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	// drain queued batches after the last turn finished
	shutdown()
}
