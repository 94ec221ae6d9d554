package main

import (
	"fmt"
	"math/rand"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/engine"
	"github.com/unclebandit/outreach-engine/internal/logging"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

const maxRetries = 3

func main() {
	bootLogger := logging.Component("worker")
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
	logger := logging.Component("worker")

	database, err := db.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	graphRepo := &repository.GraphRepository{DB: database}
	progressRepo := &repository.ProgressRepository{DB: database}
	messageRepo := &repository.MessageRepository{DB: database}

	// The worker shares progress state with the server through the database,
	// so confirming a dispatch goes through the same engine methods.
	eng := engine.New(engine.Config{}, campaignRepo, graphRepo, progressRepo, nil)
	deliverer := queue.NewDeliverer(eng, messageRepo, mockSend)

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to amqp")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open channel")
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		cfg.DispatchQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to declare queue")
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // manual ack for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register consumer")
	}

	logger.Info().Str("queue", q.Name).Msg("worker running, waiting for dispatches")

	for d := range msgs {
		if err := deliverer.Deliver(d.Body); err != nil {
			logger.Warn().Err(err).Msg("delivery failed")

			var retryCount int32
			if v, ok := d.Headers["x-retry-count"].(int32); ok {
				retryCount = v
			}
			if retryCount < maxRetries {
				d.Nack(false, true) // requeue
				continue
			}
			logger.Error().Msg("dispatch permanently failed")
		}
		d.Ack(false)
	}
}

// mockSend stands in for the real SMS/email gateway. 90% success rate.
func mockSend(decision engine.SendDecision) error {
	if rand.Intn(100) < 90 {
		return nil
	}
	return fmt.Errorf("mock transport rejected %s", decision.IdempotencyKey)
}
