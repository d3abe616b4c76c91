package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdfme/pdf-pipeline/pkg/app"
	"github.com/pdfme/pdf-pipeline/pkg/database"
	"github.com/pdfme/pdf-pipeline/pkg/rabbitmq"
	"github.com/pdfme/pdf-pipeline/pkg/reconcile"
)

var (
	dryRun      bool
	gracePeriod time.Duration
	interval    time.Duration
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-queue stored uploads that have no result and no tracked status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		opts := reconcile.Options{
			Bucket:      cfg.Blob.Bucket,
			GracePeriod: cfg.Reconcile.GracePeriod,
			BatchSize:   cfg.Reconcile.BatchSize,
			RateLimit:   cfg.Reconcile.RateLimit,
			BatchPause:  time.Second,
			DryRun:      dryRun,
		}
		if gracePeriod > 0 {
			opts.GracePeriod = gracePeriod
		}

		closer := &app.Closer{}
		defer closer.Close(log)

		store, err := app.OpenBlobStore(ctx, cfg, closer, log)
		if err != nil {
			return err
		}

		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		closer.AddCloser(db)

		tracker, err := app.OpenStatusTracker(cfg, closer, log)
		if err != nil {
			return err
		}

		// a dry run never publishes
		var publisher reconcile.Publisher
		if !dryRun {
			conn, err := rabbitmq.Connect(cfg.Broker.URL, log)
			if err != nil {
				return err
			}
			closer.AddCloser(conn)

			producer, err := rabbitmq.NewProducer(conn, app.Topology(cfg), log)
			if err != nil {
				return err
			}
			closer.AddCloser(producer)
			publisher = producer
		}

		reconciler := reconcile.New(store, db, tracker, publisher, opts, log)
		if interval > 0 {
			return reconciler.Watch(ctx, interval)
		}

		report, err := reconciler.Run(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printSuccess(out, "scanned=%d young=%d done=%d marked=%d tracked=%d queued=%d failed=%d",
			report.Scanned, report.Young, report.Done, report.Marked, report.Tracked, report.Queued, report.Failed)
		for _, key := range report.Orphans {
			printWarning(out, "orphan %s", key)
		}
		if report.Failed > 0 {
			printError(out, "%d documents could not be re-queued", report.Failed)
			return fmt.Errorf("%d documents could not be reconciled", report.Failed)
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphans without publishing")
	reconcileCmd.Flags().DurationVar(&interval, "interval", 0, "keep polling the bucket at this interval instead of scanning once")
	reconcileCmd.Flags().DurationVar(&gracePeriod, "grace", 0, "minimum object age before it counts as orphaned (e.g. 30m)")
}
