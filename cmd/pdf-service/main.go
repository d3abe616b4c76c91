package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdfme/pdf-pipeline/pkg/api"
	"github.com/pdfme/pdf-pipeline/pkg/app"
	"github.com/pdfme/pdf-pipeline/pkg/config"
	"github.com/pdfme/pdf-pipeline/pkg/database"
	"github.com/pdfme/pdf-pipeline/pkg/ingest"
	"github.com/pdfme/pdf-pipeline/pkg/logging"
	"github.com/pdfme/pdf-pipeline/pkg/query"
	"github.com/pdfme/pdf-pipeline/pkg/rabbitmq"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logging.New("pdf-service", "info", "json", nil)
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logging.New("pdf-service", cfg.Log.Level, cfg.Log.Format, nil)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Service stopped with error")
	}
	log.Info().Msg("[!] Shutdown complete")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Msg("=== PDF Service Starting ===")

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
	log.Info().Str("driver", cfg.Database.Driver).Msg("✓ Database connected")

	tracker, err := app.OpenStatusTracker(cfg, closer, log)
	if err != nil {
		return fmt.Errorf("initialize Redis: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.Broker.URL, log)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	closer.AddCloser(conn)

	producer, err := rabbitmq.NewProducer(conn, app.Topology(cfg), log)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	closer.AddCloser(producer)

	opts := []ingest.Option{
		ingest.WithStatusTracker(tracker),
		ingest.WithTimeouts(cfg.Timeouts.Upload, cfg.Timeouts.Publish),
	}
	if !cfg.Ingest.ValidatePDF {
		opts = append(opts, ingest.WithValidator(nil))
	}
	ingester := ingest.NewProducer(store, producer, cfg.Blob.Bucket, cfg.Ingest.MaxUploadBytes, log, opts...)

	reader := query.NewService(db, tracker, store, cfg.Blob.Bucket, cfg.HTTP.CacheSize, cfg.HTTP.CacheTTL)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(ingester, reader, cfg.Ingest.MaxUploadBytes, cfg.Timeouts.Upload+cfg.Timeouts.Publish, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("=== PDF Service Ready ===")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("[!] Shutdown signal received, closing...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
