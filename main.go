package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"docchat/internal/app"
	"docchat/internal/config"
	"docchat/internal/logger"
)

func main() {
	base := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(logger.NewContextHandler(base)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()

	application, err := app.New(cfg, deps.DB, deps.Index, deps.NSQProducer, deps.Gemini)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Ingestion consumer
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxAttempts = uint16(cfg.IngestMaxAttempts)
	nsqCfg.MaxInFlight = cfg.IngestionConcurrency
	consumer, err := nsq.NewConsumer(config.TopicIngestTask, config.ChannelBackend, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
		os.Exit(1)
	}
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		return application.IngestConsumer.HandleMessage(m)
	}), cfg.IngestionConcurrency)

	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
	} else {
		slog.Info("NSQ ingest consumer connected", "topic", config.TopicIngestTask)
	}
	defer consumer.Stop()

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
