package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/unclebandit/outreach-engine/internal/abtest"
	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/engine"
	"github.com/unclebandit/outreach-engine/internal/handler"
	"github.com/unclebandit/outreach-engine/internal/logging"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/service"
)

func main() {
	bootLogger := logging.Component("server")
	if err := godotenv.Load(); err != nil {
		bootLogger.Info().Msg("no .env file found, relying on OS environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logging.SetLevel(level)
	}
	logger := logging.Component("server")

	database, err := db.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	graphRepo := &repository.GraphRepository{DB: database}
	progressRepo := &repository.ProgressRepository{DB: database}
	messageRepo := &repository.MessageRepository{DB: database}
	contactRepo := &repository.ContactRepository{DB: database}

	// Send decisions go to RabbitMQ for the worker. Fall back to the
	// in-process queue when the broker is unreachable, so local runs work
	// without infrastructure.
	var q queue.Queue
	var localQueue *queue.InMemoryQueue
	amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, using in-memory queue")
		localQueue = queue.NewInMemoryQueue()
		q = localQueue
	} else {
		defer amqpQueue.Close()
		q = amqpQueue
	}
	dispatcher := &queue.Dispatcher{Queue: q, Topic: cfg.DispatchQueue}

	eng := engine.New(engine.Config{TickInterval: cfg.TickInterval},
		campaignRepo, graphRepo, progressRepo, dispatcher)
	svc := service.NewCampaignService(campaignRepo, graphRepo, progressRepo,
		messageRepo, contactRepo, eng, abtest.NewManager())

	// Without a broker, deliver in-process so local runs still complete the
	// send cycle.
	if localQueue != nil {
		deliverer := queue.NewDeliverer(eng, messageRepo, func(d engine.SendDecision) error {
			logger.Info().Str("idempotency_key", d.IdempotencyKey).Msg("local delivery")
			return nil
		})
		if err := queue.StartDispatchSubscriber(localQueue, cfg.DispatchQueue, deliverer); err != nil {
			logger.Fatal().Err(err).Msg("failed to start local subscriber")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start evaluation loop")
	}
	defer eng.Stop()

	// A/B tests past their duration get their winner picked hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.AutoSelectWinners(); err != nil {
					logger.Warn().Err(err).Msg("A/B winner sweep failed")
				}
			}
		}
	}()

	r := chi.NewRouter()
	handler.NewCampaignHandler(svc).Routes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
