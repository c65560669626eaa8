package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/notifykit/notifykit/pkg/audit"
	"github.com/notifykit/notifykit/pkg/channel"
	"github.com/notifykit/notifykit/pkg/config"
	"github.com/notifykit/notifykit/pkg/logger"
	"github.com/notifykit/notifykit/pkg/pg"
	"github.com/notifykit/notifykit/pkg/pipeline"
	"github.com/notifykit/notifykit/pkg/queue"
	"github.com/notifykit/notifykit/pkg/redis"
)

type appConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifyd"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// QueueStorage selects the queue backend: "redis" or "memory". The memory
	// backend loses state on restart and exists for local development only.
	QueueStorage string `env:"QUEUE_STORAGE" envDefault:"redis"`

	// AuditStorage selects the audit trail backend: "postgres" or "none".
	AuditStorage string `env:"AUDIT_STORAGE" envDefault:"postgres"`

	TelegramEnabled bool `env:"TELEGRAM_ENABLED" envDefault:"true"`
	EmailEnabled    bool `env:"EMAIL_ENABLED" envDefault:"false"`
}

func main() {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	logOpts := []logger.Option{logger.WithService(appCfg.ServiceName)}
	if appCfg.Environment == "development" {
		logOpts = append(logOpts, logger.WithDevelopment())
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	if err := run(log, appCfg); err != nil {
		log.Error("notifyd exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, appCfg appConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, storageCleanup, err := buildStorage(ctx, appCfg)
	if err != nil {
		return err
	}
	defer storageCleanup()

	auditor, auditCleanup, err := buildAuditor(ctx, appCfg, log)
	if err != nil {
		return err
	}

	providers, err := buildProviders(appCfg)
	if err != nil {
		return err
	}

	var pipeCfg pipeline.Config
	config.MustLoad(&pipeCfg)

	opts := append(pipeCfg.Options(), pipeline.WithLogger(log))
	if auditor != nil {
		opts = append(opts, pipeline.WithAuditRecorder(auditor))
	}

	p, err := pipeline.New(storage, providers, opts...)
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}

	log.Info("notifyd is running",
		slog.String("queue_storage", appCfg.QueueStorage),
		slog.String("audit_storage", appCfg.AuditStorage),
		slog.Int("providers", len(providers)))

	<-ctx.Done()
	log.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), pipeCfg.ShutdownGrace)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		log.Error("pipeline did not stop cleanly", logger.Error(err))
	}

	// The audit writer is flushed after the workers stop so the final
	// transitions make it into the trail.
	auditCleanup(stopCtx)
	return nil
}

func buildStorage(ctx context.Context, appCfg appConfig) (queue.Storage, func(), error) {
	if appCfg.QueueStorage == "memory" {
		return queue.NewMemoryStorage(), func() {}, nil
	}

	var redisCfg redis.Config
	config.MustLoad(&redisCfg)

	client, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := redis.Healthcheck(client)(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	storage, err := queue.NewRedisStorage(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return storage, func() { _ = client.Close() }, nil
}

func buildAuditor(ctx context.Context, appCfg appConfig, log *slog.Logger) (*audit.AsyncWriter, func(context.Context), error) {
	if appCfg.AuditStorage != "postgres" {
		return nil, func(context.Context) {}, nil
	}

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Healthcheck(pool)(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		pool.Close()
		return nil, nil, err
	}

	store, err := audit.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	writer, err := audit.NewAsyncWriter(store, audit.AsyncOptions{Logger: log})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func(ctx context.Context) {
		_ = writer.Close(ctx)
		pool.Close()
	}
	return writer, cleanup, nil
}

func buildProviders(appCfg appConfig) ([]channel.Provider, error) {
	var providers []channel.Provider

	if appCfg.TelegramEnabled {
		var tgCfg channel.TelegramConfig
		config.MustLoad(&tgCfg)
		tg, err := channel.NewTelegram(tgCfg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, tg)
	}

	if appCfg.EmailEnabled {
		var emailCfg channel.EmailConfig
		config.MustLoad(&emailCfg)
		email, err := channel.NewEmail(emailCfg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, email)
	}

	return providers, nil
}
