package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/config"
	"github.com/ajayykmr/sms-gateway/internal/dispatch"
	"github.com/ajayykmr/sms-gateway/internal/httpapi"
	"github.com/ajayykmr/sms-gateway/internal/jobs"
	"github.com/ajayykmr/sms-gateway/internal/kafka/producer"
	kafkapublisher "github.com/ajayykmr/sms-gateway/internal/kafka/publisher"
	"github.com/ajayykmr/sms-gateway/internal/logger"
	"github.com/ajayykmr/sms-gateway/internal/observability/tracing"
	"github.com/ajayykmr/sms-gateway/internal/providers/factory"
	"github.com/ajayykmr/sms-gateway/internal/providers/fake"
	"github.com/ajayykmr/sms-gateway/internal/scheduler"
	"github.com/ajayykmr/sms-gateway/internal/webhook"
	"github.com/ajayykmr/sms-gateway/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "sms-gateway").Logger()

	shutdownTracing := tracing.Init()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shut down tracer provider")
		}
	}()

	reg, err := factory.Registry(cfg.SMS, fake.NewBoundedStore(fake.DefaultRetained), logger.Component(log, "registry"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise sms providers")
	}
	breakers := factory.Breakers(cfg.Breaker, logger.Component(log, "circuit-breaker"))

	listeners := []dispatch.Listener{dispatch.NewLogListener(log), dispatch.MetricsListener{}}
	webhookListeners := []webhook.Listener{webhook.NewLogListener(log)}
	ready := func() bool { return true }

	var immediate jobs.Submitter
	if cfg.Kafka.Enabled() {
		prod, err := producer.New(cfg.Kafka.Brokers, logger.Component(log, "kafka"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		ready = prod.IsReady

		status := kafkapublisher.NewStatusPublisher(prod, cfg.Kafka.EventTopic, logger.Component(log, "status-publisher"))
		listeners = append(listeners, dispatch.NewEventListener(status, log))
		webhooks := kafkapublisher.NewWebhookPublisher(prod, cfg.Kafka.WebhookTopic, logger.Component(log, "webhook-publisher"))
		webhookListeners = append(webhookListeners, webhook.NewPublishListener(webhooks, log))
		immediate = kafkapublisher.NewJobSubmitter(prod, cfg.Kafka.JobTopic, logger.Component(log, "job-submitter"))
	}

	var inProcess *worker.Engine
	if immediate == nil {
		senders := factory.Engines(reg, cfg, nil, breakers, log, listeners...)
		inProcess, err = worker.NewEngine(worker.Config{
			Retry:       cfg.Retry.Policy(),
			Concurrency: cfg.Retry.WorkerConcurrency,
		}, worker.Dependencies{
			Senders: func() worker.Sender { return senders() },
			Logger:  logger.Component(log, "worker-engine"),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialise in-process worker")
		}
		immediate = inProcess
		log.Warn().Msg("no kafka brokers configured; queued messages run in-process")
	}

	router := &jobs.DelayRouter{Immediate: immediate}
	var delayed *scheduler.Queue
	if cfg.Redis.Enabled() {
		q, client, err := scheduler.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			scheduler.WithKey(cfg.Redis.DelayKey),
			scheduler.WithPollInterval(cfg.Redis.PollInterval),
			scheduler.WithLogger(log),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create redis delay queue")
		}
		defer client.Close()
		router.Delayed = q
		// With Kafka the sms-worker polls; otherwise due jobs run here.
		if inProcess != nil {
			delayed = q
		}
	}

	engines := factory.Engines(reg, cfg, router, breakers, log, listeners...)
	handler := webhook.NewHandler(reg,
		webhook.WithHandlerListeners(webhookListeners...),
		webhook.WithHandlerLogger(log),
		webhook.WithDeps(common.Deps{Logger: log, Timeout: cfg.Timeouts.Provider()}),
	)

	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.App.Port),
		Handler: httpapi.NewRouter(httpapi.Options{
			Engines:  engines,
			Webhooks: handler,
			Ready:    ready,
			Logger:   log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("sms gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if inProcess != nil {
			return inProcess.Wait(shutdownCtx)
		}
		return nil
	})
	if delayed != nil {
		g.Go(func() error { return delayed.Run(gctx, inProcess) })
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("sms gateway stopped with error")
		return
	}
	log.Info().Msg("sms gateway stopped")
}

func fail(stage string, err error) {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	l.Fatal().Err(err).Str("stage", stage).Msg("sms gateway init failed")
}
