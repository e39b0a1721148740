package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Heartline/internal/config/ingest"
	"github.com/NordCoder/Heartline/internal/obs"
	"github.com/NordCoder/Heartline/internal/obs/retry"
	"github.com/NordCoder/Heartline/internal/outbox"
	"github.com/NordCoder/Heartline/internal/repository/kafka"
	pg "github.com/NordCoder/Heartline/internal/repository/postgres"
	"github.com/NordCoder/Heartline/internal/services/ingest"

	"go.uber.org/zap"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func wire(cfg *config.Config, db *pg.DB, events *kafka.StatusEventsKafka, l *zap.Logger) (*outbox.Runner, *ingest.Handler, error) {
	policy, err := ingest.ParseNotifyPolicy(cfg.NotifyPolicy)
	if err != nil {
		return nil, nil, err
	}

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

	h := &ingest.Handler{
		Checks: pg.NewCheckRepo(db),
		Runs:   pg.NewRunRepo(db),
		Outbox: outboxRepo,
		Tx:     pg.NewTransactor(db, l),
		Clock:  systemClock{},
		Log:    l,
		Policy: policy,
	}
	return outboxRunner, h, nil
}

func main() {
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "../config/ingest.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, App: "ingest"})
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

	outboxRunner, h, err := wire(cfg, db, events, l)
	if err != nil {
		l.Fatal("wire", zap.Error(err))
	}
	outboxRunner.Start(root)

	srv := ingest.NewHTTPServer(cfg.Server, h, l)
	errCh := make(chan error, 1)
	go func() {
		l.Info("ingest listening", zap.String("addr", cfg.Server.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-root.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	outboxRunner.Wait()
	l.Info("bye")
}
