package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Heartline/internal/config/sweeper"
	"github.com/NordCoder/Heartline/internal/obs"
	"github.com/NordCoder/Heartline/internal/obs/retry"
	"github.com/NordCoder/Heartline/internal/outbox"
	"github.com/NordCoder/Heartline/internal/repository/kafka"
	pg "github.com/NordCoder/Heartline/internal/repository/postgres"
	"github.com/NordCoder/Heartline/internal/services/sweeper"

	"go.uber.org/zap"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func main() {
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "../config/sweeper.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, App: "sweeper"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	otelCloser, err := obs.SetupOTel(root, &obs.OTELConfig{
		Enable:      cfg.OTEL.Enable,
		Endpoint:    cfg.OTEL.OTLPEndpoint,
		ServiceName: cfg.OTEL.ServiceName,
		SampleRatio: cfg.OTEL.SampleRatio,
	})
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.New(root, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		return db.Pool.Ping(ctx)
	}, l)

	prod := kafka.NewProducer(cfg.Out.Brokers, cfg.Out.Topic).WithLogger(l)
	defer func() { _ = prod.Close() }()
	events := kafka.NewStatusEventsKafka(prod)

	outboxRepo := pg.NewOutboxRepo(db)
	dispatch := outbox.MakeGlobalOutboxHandler(events, retry.DefaultKafkaPolicy(l))
	outboxRunner := outbox.NewRunner(
		l,
		outboxRepo,
		dispatch,
		cfg.Outbox.Workers,
		cfg.Outbox.BatchSize,
		cfg.Outbox.WaitTime,
		cfg.Outbox.InProgressTTL,
	)
	outboxRunner.Start(root)

	uc := &sweeper.Usecase{
		Checks: pg.NewCheckRepo(db),
		Outbox: outboxRepo,
		Tx:     pg.NewTransactor(db, l),
		Clock:  systemClock{},
	}
	runner := sweeper.New(l, uc, &cfg.Sweep)

	if err := runner.Run(root); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("sweeper run", zap.Error(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	outboxRunner.Wait()
	l.Info("bye")
}
