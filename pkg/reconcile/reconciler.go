// Package reconcile finds stored documents that were never queued, for
// example because the broker was down right after the upload, and queues them.
//
// "Queued" is the blob's own queued marker, written once the broker confirms a
// request. Documents that were queued and later dead-lettered keep the marker,
// so they come back only through a dead-letter replay and never get a fresh
// retry budget here.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdfme/pdf-pipeline/pkg/blob"
	"github.com/pdfme/pdf-pipeline/pkg/cache"
	"github.com/pdfme/pdf-pipeline/pkg/database"
	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// Publisher queues a processing request.
type Publisher interface {
	Publish(ctx context.Context, req types.ProcessingRequest) error
}

// RecordFinder reports whether a result exists.
type RecordFinder interface {
	FindByKey(ctx context.Context, documentKey string) (*types.ExtractionRecord, error)
}

type Options struct {
	Bucket      string
	GracePeriod time.Duration
	BatchSize   int
	RateLimit   int // objects per second
	BatchPause  time.Duration
	DryRun      bool
}

// Report summarizes one scan.
type Report struct {
	Scanned int
	Young   int
	Done    int
	Marked  int
	Tracked int
	Queued  int
	Failed  int
	Orphans []string
}

type Reconciler struct {
	store     blob.Store
	records   RecordFinder
	status    cache.StatusTracker
	publisher Publisher
	opts      Options
	now       func() time.Time
	log       zerolog.Logger
}

func New(store blob.Store, records RecordFinder, status cache.StatusTracker, publisher Publisher, opts Options, log zerolog.Logger) *Reconciler {
	if status == nil {
		status = cache.Noop{}
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.RateLimit < 1 {
		opts.RateLimit = 50
	}
	return &Reconciler{
		store:     store,
		records:   records,
		status:    status,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
		log:       log,
	}
}

// Run scans the bucket once.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var report Report

	objects, err := r.store.List(ctx, r.opts.Bucket)
	if err != nil {
		return report, fmt.Errorf("failed to list objects: %w", err)
	}

	if len(objects) == 0 {
		r.log.Info().Str("bucket", r.opts.Bucket).Msg("[i] No files found in bucket")
		return report, nil
	}

	r.log.Info().Int("objects", len(objects)).Bool("dry_run", r.opts.DryRun).Msg("[*] Scanning bucket")

	rateLimiter := time.NewTicker(time.Second / time.Duration(r.opts.RateLimit))
	defer rateLimiter.Stop()

	for i := 0; i < len(objects); i += r.opts.BatchSize {
		end := i + r.opts.BatchSize
		if end > len(objects) {
			end = len(objects)
		}

		r.log.Debug().Int("from", i+1).Int("to", end).Int("total", len(objects)).Msg("[*] Processing batch")

		for _, obj := range objects[i:end] {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-rateLimiter.C:
			}

			report.Scanned++
			if err := r.check(ctx, obj, &report); err != nil {
				report.Failed++
				r.log.Error().Err(err).Str("document_key", obj.Key).Msg("[✗] Reconcile failed")
			}
		}

		if end < len(objects) && r.opts.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(r.opts.BatchPause):
			}
		}
	}

	r.log.Info().
		Int("scanned", report.Scanned).
		Int("queued", report.Queued).
		Int("orphans", len(report.Orphans)).
		Int("failed", report.Failed).
		Msg("[✓] Reconcile complete")
	return report, nil
}

func (r *Reconciler) check(ctx context.Context, obj blob.ObjectInfo, report *Report) error {
	log := r.log.With().Str("document_key", obj.Key).Logger()

	// uploads still inside the normal ingest window
	if r.now().Sub(obj.LastModified) < r.opts.GracePeriod {
		report.Young++
		return nil
	}

	_, err := r.records.FindByKey(ctx, obj.Key)
	if err == nil {
		report.Done++
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to look up record: %w", err)
	}

	info, err := r.store.Stat(ctx, r.opts.Bucket, obj.Key)
	if errors.Is(err, blob.ErrNotFound) {
		log.Debug().Msg("[↷] Skip: deleted since listing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat object: %w", err)
	}
	if info.Metadata.Queued() {
		log.Debug().Msg("[↷] Skip: already queued")
		report.Marked++
		return nil
	}

	status, err := r.status.GetStatus(ctx, obj.Key)
	if err != nil {
		log.Warn().Err(err).Msg("[!] Status lookup failed (continuing)")
	} else if status != "" {
		log.Debug().Str("status", status).Msg("[↷] Skip: tracked")
		report.Tracked++
		return nil
	}

	report.Orphans = append(report.Orphans, obj.Key)
	if r.opts.DryRun {
		log.Info().Msg("[i] Orphan found (dry run)")
		return nil
	}

	name := info.Metadata.OriginalName()
	if name == "" {
		name = obj.Key
	}

	req := types.ProcessingRequest{DocumentKey: obj.Key, OriginalName: name, Bucket: r.opts.Bucket}
	if err := r.publisher.Publish(ctx, req); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	report.Queued++

	if err := r.store.SetMetadata(ctx, r.opts.Bucket, obj.Key, blob.Metadata{blob.MetaQueued: "true"}); err != nil {
		log.Error().Err(err).Msg("[!] Failed to mark as queued, next scan will queue it again")
	}

	if err := r.status.InitStatus(ctx, obj.Key, types.StatusQueued); err != nil {
		log.Warn().Err(err).Msg("[!] Warning: failed to set status")
	}

	log.Info().Str("original_name", name).Msg("[✓] Re-queued orphan")
	return nil
}

// Watch runs a scan immediately and then every interval until ctx is done.
// Scan errors are logged and do not stop the loop.
func (r *Reconciler) Watch(ctx context.Context, interval time.Duration) error {
	r.log.Info().Dur("interval", interval).Str("bucket", r.opts.Bucket).Msg("[*] Starting to poll bucket")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error().Err(err).Msg("[!] Error during scan")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
