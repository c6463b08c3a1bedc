package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"medtrace/internal/batch"
	"medtrace/internal/custody"
	"medtrace/internal/directory"
	"medtrace/internal/jwtauth"
	ledgerrpc "medtrace/internal/ledger/rpc"
	"medtrace/internal/order"
	"medtrace/internal/platform/config"
	"medtrace/internal/platform/httpserver"
	"medtrace/internal/platform/kafka"
	"medtrace/internal/platform/logger"
	"medtrace/internal/platform/metrics"
	"medtrace/internal/platform/postgres"
	"medtrace/internal/platform/redis"
	"medtrace/internal/tracking"
	httpapi "medtrace/internal/transport/http"
	"medtrace/internal/trustcontract"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		batchStore    batch.Store
		contractStore trustcontract.Store
		orderStore    order.Store
		trackStore    tracking.Store
		dir           directory.Directory
		health        []httpapi.HealthChecker
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		batchStore = batch.NewPostgresStore(db)
		contractStore = trustcontract.NewPostgresStore(db)
		orderStore = order.NewPostgresStore(db)
		trackStore = tracking.NewPostgresStore(db)
		dir = directory.NewPostgres(db)
		health = append(health, httpapi.HealthFunc(db.PingContext))
		log.Info("using postgres stores")
	} else {
		batchStore = batch.NewMemoryStore()
		contractStore = trustcontract.NewMemoryStore()
		orderStore = order.NewMemoryStore()
		trackStore = tracking.NewMemoryStore()
		dir = directory.NewMemory()
		log.Warn("no POSTGRES_DSN set, using in-memory stores")
	}

	cache, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
		health = append(health, cache)
		log.Info("history cache enabled", "url", cfg.Redis.URL)
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		log.Info("custody event stream enabled", "topic", cfg.Kafka.Topic)
	}

	ledgerClient := ledgerrpc.New(cfg.Ledger, log)

	trackingSvc := tracking.NewService(trackStore, cache, producer, ledgerClient, m, log, cfg.Redis.HistoryTTL)
	batchSvc := batch.NewService(batchStore, m, log)
	contractSvc := trustcontract.NewService(contractStore, dir, log)
	orderSvc := order.NewService(orderStore, contractSvc, batchStore, log)
	engine := custody.NewEngine(batchStore, orderStore, ledgerClient, trackingSvc, m, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:    log,
		Validator: jwtauth.NewValidator(cfg.JWTSigningKey),
		Batch:     httpapi.NewBatchHandler(batchSvc, engine, log),
		Custody:   httpapi.NewCustodyHandler(engine, log),
		Contract:  httpapi.NewContractHandler(contractSvc, log),
		Order:     httpapi.NewOrderHandler(orderSvc, log),
		Tracking:  httpapi.NewTrackingHandler(batchSvc, trackingSvc, log),
		Health:    health,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
