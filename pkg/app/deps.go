// Package app builds adapters from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/pdfme/pdf-pipeline/pkg/blob"
	"github.com/pdfme/pdf-pipeline/pkg/cache"
	"github.com/pdfme/pdf-pipeline/pkg/config"
	"github.com/pdfme/pdf-pipeline/pkg/extraction"
	"github.com/pdfme/pdf-pipeline/pkg/rabbitmq"
)

// Closer collects cleanup functions in reverse order of acquisition.
type Closer struct {
	fns []func() error
}

func (c *Closer) Add(fn func() error) {
	c.fns = append(c.fns, fn)
}

func (c *Closer) AddCloser(cl io.Closer) {
	c.Add(cl.Close)
}

func (c *Closer) Close(log zerolog.Logger) {
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			log.Warn().Err(err).Msg("Cleanup failed")
		}
	}
}

// Topology maps broker config onto the queue layout.
func Topology(cfg *config.Config) rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchange:    cfg.Broker.Exchange,
		Queue:       cfg.Broker.Queue,
		RoutingKey:  cfg.Broker.RoutingKey,
		RetryDelays: RetryPolicy(cfg).Delays(),
	}
}

func RetryPolicy(cfg *config.Config) rabbitmq.RetryPolicy {
	return rabbitmq.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
}

// OpenBlobStore connects to the configured store and makes sure the bucket exists.
func OpenBlobStore(ctx context.Context, cfg *config.Config, closer *Closer, log zerolog.Logger) (blob.Store, error) {
	var store blob.Store

	switch cfg.Blob.Driver {
	case "minio":
		s, err := blob.NewMinIOStore(cfg.Blob.Endpoint, cfg.Blob.AccessKey, cfg.Blob.SecretKey, cfg.Blob.UseSSL, log)
		if err != nil {
			return nil, err
		}
		store = s
	case "gcs":
		s, err := blob.NewGCSStore(ctx, cfg.Blob.ProjectID, log)
		if err != nil {
			return nil, err
		}
		closer.AddCloser(s)
		store = s
	default:
		return nil, fmt.Errorf("unsupported blob driver: %s", cfg.Blob.Driver)
	}

	if err := store.EnsureBucket(ctx, cfg.Blob.Bucket); err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Blob.Driver).Str("bucket", cfg.Blob.Bucket).Msg("✓ Blob store connected")
	return store, nil
}

// OpenStatusTracker returns a no-op tracker when Redis is disabled.
func OpenStatusTracker(cfg *config.Config, closer *Closer, log zerolog.Logger) (cache.StatusTracker, error) {
	if !cfg.Redis.Enabled {
		log.Info().Msg("[i] Redis disabled, status tracking off")
		return cache.Noop{}, nil
	}

	tracker, err := cache.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.StatusTTL)
	if err != nil {
		return nil, err
	}
	closer.AddCloser(tracker)
	log.Info().Str("addr", cfg.Redis.Addr()).Msg("✓ Redis connected")
	return tracker, nil
}

// OpenExtractor builds the configured extraction backend.
func OpenExtractor(ctx context.Context, cfg *config.Config, closer *Closer, log zerolog.Logger) (extraction.Provider, error) {
	ec := cfg.Extraction

	switch ec.Backend {
	case "gemini":
		p, err := extraction.NewGeminiProvider(ctx, ec.APIKey, ec.Model, ec.MaxBytes, log)
		if err != nil {
			return nil, err
		}
		closer.AddCloser(p)
		return p, nil
	case "vertex":
		p, err := extraction.NewVertexProvider(ctx, ec.ProjectID, ec.Region, ec.Model, ec.MaxBytes, log)
		if err != nil {
			return nil, err
		}
		closer.AddCloser(p)
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported extraction backend: %s", ec.Backend)
	}
}
