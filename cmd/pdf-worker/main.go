package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdfme/pdf-pipeline/pkg/app"
	"github.com/pdfme/pdf-pipeline/pkg/config"
	"github.com/pdfme/pdf-pipeline/pkg/database"
	"github.com/pdfme/pdf-pipeline/pkg/logging"
	"github.com/pdfme/pdf-pipeline/pkg/processor"
	"github.com/pdfme/pdf-pipeline/pkg/rabbitmq"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logging.New("pdf-worker", "info", "json", nil)
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logging.New("pdf-worker", cfg.Log.Level, cfg.Log.Format, nil)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Worker stopped with error")
	}
	log.Info().Msg("[!] Shutdown complete")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Msg("=== PDF Worker Starting ===")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closer := &app.Closer{}
	defer closer.Close(log)

	store, err := app.OpenBlobStore(ctx, cfg, closer, log)
	if err != nil {
		return fmt.Errorf("initialize blob store: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	closer.AddCloser(db)
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("✓ Database connected")

	tracker, err := app.OpenStatusTracker(cfg, closer, log)
	if err != nil {
		return fmt.Errorf("initialize Redis: %w", err)
	}

	extractor, err := app.OpenExtractor(ctx, cfg, closer, log)
	if err != nil {
		return fmt.Errorf("initialize extraction provider: %w", err)
	}
	log.Info().Str("backend", cfg.Extraction.Backend).Str("model", cfg.Extraction.Model).Msg("✓ Extraction provider ready")

	conn, err := rabbitmq.Connect(cfg.Broker.URL, log)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	closer.AddCloser(conn)

	topo := app.Topology(cfg)

	// retry copies go through a confirm-mode channel of their own
	retries, err := rabbitmq.NewProducer(conn, topo, log)
	if err != nil {
		return fmt.Errorf("create retry publisher: %w", err)
	}
	closer.AddCloser(retries)

	consumer, err := rabbitmq.NewConsumer(conn, topo, retries, rabbitmq.ConsumerOptions{
		Prefetch:       cfg.Broker.Prefetch,
		Concurrency:    cfg.Worker.Concurrency,
		Policy:         app.RetryPolicy(cfg),
		PublishTimeout: cfg.Timeouts.Publish,
	}, log)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	closer.AddCloser(consumer)

	orch := processor.New(store, extractor, db, log,
		processor.WithStatusTracker(tracker),
		processor.WithTimeouts(processor.Timeouts{
			Download:   cfg.Timeouts.Download,
			Extraction: cfg.Timeouts.Extraction,
			Persist:    cfg.Timeouts.Persist,
		}),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msg("=== PDF Worker Ready ===")
		return consumer.Start(gctx, orch.Handler())
	})

	return g.Wait()
}
