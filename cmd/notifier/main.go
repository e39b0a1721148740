package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Heartline/internal/config/notifier"
	"github.com/NordCoder/Heartline/internal/obs"
	"github.com/NordCoder/Heartline/internal/repository/kafka"
	pg "github.com/NordCoder/Heartline/internal/repository/postgres"
	"github.com/NordCoder/Heartline/internal/services/notifier"

	"go.uber.org/zap"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func main() {
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "../config/notifier.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, App: "notifier"})
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

	cons := kafka.BootstrapConsumer(root, &kafka.ConsumerConfig{
		Brokers: cfg.In.Brokers,
		Topic:   cfg.In.Topic,
		GroupID: cfg.In.GroupID,
		Logger:  l,
	}, l).WithLogger(l)
	defer func() { _ = cons.Close() }()

	uc := &notifier.Handler{
		Checks: pg.NewCheckRepo(db),
		Users:  pg.NewUserRepo(db),
		Store:  pg.NewNotificationRepo(db),
		Email:  notifier.NewMailer(cfg.SMTP).WithLogger(l),
		Slack:  notifier.NewSlackNotifier(cfg.Slack.Timeout, l),
		Clock:  systemClock{},
		Log:    l,
	}
	ctrl := &notifier.Controller{Log: l, Sub: cons, UC: uc}

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(root) }()

	select {
	case <-root.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("controller error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
