// Package processor runs one processing request through download, extraction
// and persistence, and turns the outcome into a broker decision.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdfme/pdf-pipeline/pkg/apperr"
	"github.com/pdfme/pdf-pipeline/pkg/blob"
	"github.com/pdfme/pdf-pipeline/pkg/cache"
	"github.com/pdfme/pdf-pipeline/pkg/database"
	"github.com/pdfme/pdf-pipeline/pkg/extraction"
	"github.com/pdfme/pdf-pipeline/pkg/rabbitmq"
	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// Stage is where a request was when it finished.
type Stage string

const (
	StageReceived    Stage = "received"
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StagePersisting  Stage = "persisting"
	StageAcked       Stage = "acked"
)

// Result is the outcome of Handle. Err is nil when Decision is Ack.
type Result struct {
	Decision types.Decision
	Stage    Stage
	Err      error
}

// Timeouts bound each external call.
type Timeouts struct {
	Download   time.Duration
	Extraction time.Duration
	Persist    time.Duration
}

type Orchestrator struct {
	store     blob.Store
	extractor extraction.Provider
	records   database.RecordWriter
	status    cache.StatusTracker
	schema    extraction.Schema
	timeouts  Timeouts
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Orchestrator)

func WithStatusTracker(s cache.StatusTracker) Option {
	return func(o *Orchestrator) { o.status = s }
}

func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) { o.timeouts = t }
}

func WithSchema(s extraction.Schema) Option {
	return func(o *Orchestrator) { o.schema = s }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(store blob.Store, extractor extraction.Provider, records database.RecordWriter, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		extractor: extractor,
		records:   records,
		status:    cache.Noop{},
		schema:    extraction.AnnualReportSchema,
		timeouts: Timeouts{
			Download:   2 * time.Minute,
			Extraction: 3 * time.Minute,
			Persist:    15 * time.Second,
		},
		now: time.Now,
		log: log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handler adapts the orchestrator to the broker consumer.
func (o *Orchestrator) Handler() rabbitmq.Handler {
	return func(ctx context.Context, req types.ProcessingRequest) types.Decision {
		return o.Handle(ctx, req).Decision
	}
}

// Handle processes one request. A record is written only after the document
// was downloaded and extracted, and Ack is returned only after that write.
func (o *Orchestrator) Handle(ctx context.Context, req types.ProcessingRequest) Result {
	log := o.log.With().
		Str("document_key", req.DocumentKey).
		Str("bucket", req.Bucket).
		Logger()

	if req.DocumentKey == "" || req.Bucket == "" {
		return o.fail(ctx, log, req, StageReceived,
			apperr.New(apperr.PermanentInput, "validate request", errors.New("document key and bucket are required")))
	}

	o.setStatus(ctx, log, req.DocumentKey, types.StatusProcessing)
	log.Info().Msg("[→] Processing document")

	document, err := o.download(ctx, req)
	if err != nil {
		return o.fail(ctx, log, req, StageDownloading, err)
	}
	log.Debug().Int("size", len(document)).Msg("[✓] Downloaded")

	data, err := o.extract(ctx, document)
	if err != nil {
		return o.fail(ctx, log, req, StageExtracting, err)
	}
	checkQuality(log, data)

	name := req.OriginalName
	if name == "" {
		name = req.DocumentKey
	}
	rec := &types.ExtractionRecord{
		DocumentKey:    req.DocumentKey,
		OriginalName:   name,
		StructuredData: data,
		Timestamp:      o.now().UTC(),
	}
	if err := o.persist(ctx, rec); err != nil {
		return o.fail(ctx, log, req, StagePersisting, err)
	}

	o.setStatus(ctx, log, req.DocumentKey, types.StatusCompleted)
	log.Info().Str("record_id", rec.ID).Msg("[✓] Extraction persisted")
	return Result{Decision: types.Ack, Stage: StageAcked}
}

func (o *Orchestrator) download(ctx context.Context, req types.ProcessingRequest) ([]byte, error) {
	const op = "download"

	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Download)
	defer cancel()

	document, err := blob.ReadAll(ctx, o.store, req.Bucket, req.DocumentKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, apperr.New(apperr.PermanentInput, op, err)
	}
	if err != nil {
		return nil, apperr.New(apperr.TransientInfra, op, err)
	}
	return document, nil
}

func (o *Orchestrator) extract(ctx context.Context, document []byte) (json.RawMessage, error) {
	const op = "extract"

	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Extraction)
	defer cancel()

	data, err := o.extractor.Extract(ctx, document, o.schema)
	if errors.Is(err, extraction.ErrDocumentTooLarge) {
		return nil, apperr.New(apperr.PermanentInput, op, err)
	}
	if err != nil {
		return nil, apperr.New(apperr.TransientExternal, op, err)
	}
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return data, nil
}

func (o *Orchestrator) persist(ctx context.Context, rec *types.ExtractionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Persist)
	defer cancel()

	if err := o.records.Upsert(ctx, rec); err != nil {
		return apperr.New(apperr.TransientInfra, "persist", err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log zerolog.Logger, req types.ProcessingRequest, stage Stage, err error) Result {
	class := apperr.ClassOf(err)
	decision := types.Requeue
	if class == apperr.PermanentInput {
		decision = types.Reject
	}

	log.Error().
		Err(err).
		Str("stage", string(stage)).
		Str("class", class.String()).
		Str("decision", decision.String()).
		Msg("[✗] Processing failed")

	if req.DocumentKey != "" {
		o.setStatus(ctx, log, req.DocumentKey, types.StatusFailed)
	}
	return Result{Decision: decision, Stage: stage, Err: err}
}

func (o *Orchestrator) setStatus(ctx context.Context, log zerolog.Logger, key, status string) {
	if err := o.status.SetStatus(ctx, key, status); err != nil {
		log.Warn().Err(err).Str("status", status).Msg("Failed to update status")
	}
}

// checkQuality logs documents that came back empty or not as an object.
// They are still persisted.
func checkQuality(log zerolog.Logger, data json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		log.Warn().Str("quality", "not_an_object").Msg("Extraction returned a non-object document")
		return
	}
	if len(fields) == 0 {
		log.Warn().Str("quality", "empty").Msg("Extraction returned an empty document")
	}
}
