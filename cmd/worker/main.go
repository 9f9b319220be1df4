package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudresty/go-rabbitmq"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpapi "github.com/settleflow/settleflow/internal/api/http"
	"github.com/settleflow/settleflow/internal/application/botrun"
	"github.com/settleflow/settleflow/internal/application/operations"
	"github.com/settleflow/settleflow/internal/application/saga"
	"github.com/settleflow/settleflow/internal/config"
	"github.com/settleflow/settleflow/internal/domain/event"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/infrastructure/gateway"
	"github.com/settleflow/settleflow/internal/infrastructure/lease"
	"github.com/settleflow/settleflow/internal/infrastructure/postgres"
	brokermq "github.com/settleflow/settleflow/internal/infrastructure/rabbitmq"
	rediscache "github.com/settleflow/settleflow/internal/infrastructure/redis"
	"github.com/settleflow/settleflow/internal/infrastructure/venue"
	"github.com/settleflow/settleflow/internal/scheduler"
)

const domainName = "settlement"

// sagaKinds binds each operation kind to its saga step configuration.
var sagaKinds = []saga.Config{
	{Kind: operation.KindPayment, SuccessState: operation.StateWaiting, SuccessEvent: "waiting", RevertedState: operation.StateReverted},
	{Kind: operation.KindRefund, SuccessState: operation.StateWaiting, SuccessEvent: "waiting", RevertedState: operation.StateReverted},
	{Kind: operation.KindDevolution, SuccessState: operation.StateCompleted, SuccessEvent: "completed", RevertedState: operation.StateReverted},
	{Kind: operation.KindWarningDeposit, SuccessState: operation.StateCompleted, SuccessEvent: "completed", RevertedState: operation.StateReverted},
	{Kind: operation.KindWarningDevolution, SuccessState: operation.StateCompleted, SuccessEvent: "completed", RevertedState: operation.StateFailed},
	{Kind: operation.KindInfraction, SuccessState: operation.StateAcknowledged, SuccessEvent: "acknowledged", RevertedState: operation.StateFailed},
	{Kind: operation.KindQRCode, SuccessState: operation.StateRegistered, SuccessEvent: "registered", RevertedState: operation.StateFailed},
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	brokerClient, err := rabbitmq.NewClient(
		rabbitmq.WithHosts(strings.Split(cfg.AMQPHosts, ",")...),
		rabbitmq.WithCredentials(cfg.AMQPUser, cfg.AMQPPassword),
		rabbitmq.WithVHost(cfg.AMQPVHost),
	)
	if err != nil {
		log.Fatalf("broker error: %v", err)
	}
	defer brokerClient.Close()

	publisher, err := brokermq.NewPublisher(brokerClient, cfg.Exchange, logger)
	if err != nil {
		log.Fatalf("publisher error: %v", err)
	}
	defer publisher.Close()

	store := rediscache.NewStore(postgres.NewStore(pool), redisClient, cfg.CachePrefix, cfg.CacheTTL, logger)
	locker := lease.NewLocker(redisClient, cfg.LeasePrefix, logger)
	rail := gateway.NewClient(cfg.RailURL, logger)
	venueClient := venue.NewClient(cfg.VenueURL, logger)

	// operations use cases
	createOp := operations.NewCreateOperation(store, publisher, domainName, logger)
	completeOp := operations.NewCompleteOperation(store, publisher, domainName, logger)

	// saga step consumers, one trio of queues per operation kind
	for _, kindCfg := range sagaKinds {
		kindCfg.Domain = domainName
		kindCfg.Entity = strings.ToLower(string(kindCfg.Kind))
		handler := saga.NewHandler(kindCfg, store, rail, publisher, rail, logger)

		consume(ctx, brokerClient, logger, event.Topic(domainName, kindCfg.Entity, "pending"), handler.HandleReceived)
		consume(ctx, brokerClient, logger, event.HubTopic(domainName, kindCfg.Entity, saga.StepDispatch), handler.HandleDispatch)
		consume(ctx, brokerClient, logger, event.HubTopic(domainName, kindCfg.Entity, saga.StepCompensate), handler.HandleCompensation)

		if cfg.ReplayDeadLetters {
			replayer := saga.NewReplayer(domainName, kindCfg.Entity, publisher, logger)
			consume(ctx, brokerClient, logger, event.HubTopic(domainName, kindCfg.Entity, saga.StepDeadLetter), replayer.Replay)
		}
	}

	// ingestion consumers
	consume(ctx, brokerClient, logger, domainName+".operations.requests", func(ctx context.Context, env event.Envelope) error {
		var req struct {
			Kind        operation.Kind `json:"kind"`
			AmountCents int64          `json:"amountCents"`
			EndToEndID  string         `json:"endToEndId"`
		}
		if err := json.Unmarshal(env.Value, &req); err != nil {
			logger.Error().Err(err).Msg("malformed operation request dropped")
			return nil
		}
		_, err := createOp.Execute(ctx, operations.CreateRequest{
			Kind:        req.Kind,
			AmountCents: req.AmountCents,
			EndToEndID:  req.EndToEndID,
			RequestID:   env.Headers.RequestID,
		})
		return err
	})
	consume(ctx, brokerClient, logger, domainName+".operations.confirmations", func(ctx context.Context, env event.Envelope) error {
		var confirm struct {
			OperationID uuid.UUID `json:"operationId"`
		}
		if err := json.Unmarshal(env.Value, &confirm); err != nil {
			logger.Error().Err(err).Msg("malformed confirmation dropped")
			return nil
		}
		_, err := completeOp.Execute(ctx, operations.CompleteRequest{
			OperationID: confirm.OperationID,
			RequestID:   env.Headers.RequestID,
		})
		return err
	})

	// bot control loop
	registry := botrun.NewRegistry()
	strategy := botrun.NewHedgeStrategy(venueClient, venueClient)
	runner := botrun.NewRunner(store, strategy, logger)
	sched := scheduler.New(logger)
	reconciler := botrun.NewReconciler(store, registry, runner, sched, locker, botrun.LeaseConfig{
		Key:           cfg.BotLeaseKey,
		TTL:           cfg.BotLeaseTTL,
		RenewInterval: cfg.BotLeaseRenew,
	}, cfg.BotStepInterval, logger)
	sweeper := botrun.NewSweeper(store, cfg.PendingOrderExpiry, logger)

	if err := reconciler.KillRunning(ctx); err != nil {
		log.Fatalf("boot recovery error: %v", err)
	}

	sched.Schedule(ctx, "reconcile", cfg.ReconcileInterval, func(ctx context.Context) {
		if err := reconciler.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("reconciliation pass failed")
		}
	})
	sched.Schedule(ctx, "sweep", cfg.SweepInterval, func(ctx context.Context) {
		if err := sweeper.Sweep(ctx); err != nil {
			logger.Error().Err(err).Msg("pending order sweep failed")
		}
	})

	// ops HTTP server
	apiServer := httpapi.NewServer(pool)
	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("ops server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	sched.Shutdown()
}

// consume runs one queue consumer in the background until ctx is done.
func consume(ctx context.Context, client *rabbitmq.Client, logger zerolog.Logger, queue string, handle brokermq.Handler) {
	consumer, err := brokermq.NewConsumer(client, logger)
	if err != nil {
		log.Fatalf("consumer error: %v", err)
	}
	go func() {
		if err := consumer.Consume(ctx, queue, handle); err != nil && err != context.Canceled {
			logger.Error().Err(err).Str("queue", queue).Msg("consumer stopped")
		}
	}()
}
