package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajayykmr/sms-gateway/internal/config"
	"github.com/ajayykmr/sms-gateway/internal/dispatch"
	"github.com/ajayykmr/sms-gateway/internal/kafka/consumer"
	"github.com/ajayykmr/sms-gateway/internal/kafka/producer"
	kafkapublisher "github.com/ajayykmr/sms-gateway/internal/kafka/publisher"
	"github.com/ajayykmr/sms-gateway/internal/logger"
	"github.com/ajayykmr/sms-gateway/internal/observability/tracing"
	"github.com/ajayykmr/sms-gateway/internal/providers/factory"
	"github.com/ajayykmr/sms-gateway/internal/providers/fake"
	"github.com/ajayykmr/sms-gateway/internal/scheduler"
	"github.com/ajayykmr/sms-gateway/internal/worker"
)

const drainTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}
	if !cfg.Kafka.Enabled() {
		fail("config load", errors.New("KAFKA_BROKERS is required"))
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "sms-worker").Logger()

	shutdownTracing := tracing.Init()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shut down tracer provider")
		}
	}()

	prod, err := producer.New(cfg.Kafka.Brokers, logger.Component(log, "kafka"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger.Component(log, "consumer"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	statusPublisher := kafkapublisher.NewStatusPublisher(prod, cfg.Kafka.EventTopic, logger.Component(log, "status-publisher"))
	dlqPublisher := kafkapublisher.NewDLQPublisher(prod, cfg.Kafka.DLQTopic, logger.Component(log, "dlq-publisher"))

	reg, err := factory.Registry(cfg.SMS, fake.NewBoundedStore(fake.DefaultRetained), logger.Component(log, "registry"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise sms providers")
	}
	breakers := factory.Breakers(cfg.Breaker, logger.Component(log, "circuit-breaker"))
	// The worker publishes job status itself, so engines only log and count.
	senders := factory.Engines(reg, cfg, nil, breakers, log, dispatch.NewLogListener(log), dispatch.MetricsListener{})

	engine, err := worker.NewEngine(worker.Config{
		Retry:           cfg.Retry.Policy(),
		Concurrency:     cfg.Retry.WorkerConcurrency,
		MaxPayloadBytes: cfg.Retry.MaxPayloadBytes,
	}, worker.Dependencies{
		Senders:         func() worker.Sender { return senders() },
		StatusPublisher: statusPublisher,
		DLQPublisher:    dlqPublisher,
		Logger:          logger.Component(log, "worker-engine"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := cons.Consume(gctx, []string{cfg.Kafka.JobTopic}, worker.KafkaHandler(engine, cons))
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.Redis.Enabled() {
		queue, client, err := scheduler.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			scheduler.WithKey(cfg.Redis.DelayKey),
			scheduler.WithPollInterval(cfg.Redis.PollInterval),
			scheduler.WithLogger(log),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create redis delay queue")
		}
		defer client.Close()
		jobs := kafkapublisher.NewJobSubmitter(prod, cfg.Kafka.JobTopic, logger.Component(log, "job-submitter"))
		g.Go(func() error { return queue.Run(gctx, jobs) })
	}

	log.Info().
		Str("job_topic", cfg.Kafka.JobTopic).
		Str("group", cfg.Kafka.ConsumerGroup).
		Bool("delay_queue", cfg.Redis.Enabled()).
		Msg("sms worker started")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("sms worker terminated with error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := engine.Wait(drainCtx); err != nil {
		log.Warn().Err(err).Msg("jobs still running at shutdown; they will be redelivered")
	}
	log.Info().Msg("sms worker stopped")
}

func fail(stage string, err error) {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	l.Fatal().Err(err).Str("stage", stage).Msg("sms worker init failed")
}
