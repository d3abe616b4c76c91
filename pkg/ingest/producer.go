// Package ingest accepts uploads, stores them in the blob store and queues
// them for extraction.
package ingest

import (
	"bytes"
	"context"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"github.com/pdfme/pdf-pipeline/pkg/apperr"
	"github.com/pdfme/pdf-pipeline/pkg/blob"
	"github.com/pdfme/pdf-pipeline/pkg/cache"
	"github.com/pdfme/pdf-pipeline/pkg/types"
)

const pdfContentType = "application/pdf"

// Publisher queues a processing request.
type Publisher interface {
	Publish(ctx context.Context, req types.ProcessingRequest) error
}

// Validator checks the payload before anything is stored.
type Validator func(data []byte) error

// ValidatePDF parses the document with pdfcpu in relaxed mode.
func ValidatePDF(data []byte) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.Validate(bytes.NewReader(data), conf)
}

type Producer struct {
	store          blob.Store
	publisher      Publisher
	status         cache.StatusTracker
	validate       Validator
	newKey         func() string
	bucket         string
	maxBytes       int64
	uploadTimeout  time.Duration
	publishTimeout time.Duration
	log            zerolog.Logger
}

type Option func(*Producer)

// WithValidator replaces the structural check. Pass nil to skip it.
func WithValidator(v Validator) Option {
	return func(p *Producer) { p.validate = v }
}

func WithStatusTracker(s cache.StatusTracker) Option {
	return func(p *Producer) { p.status = s }
}

func WithTimeouts(upload, publish time.Duration) Option {
	return func(p *Producer) {
		p.uploadTimeout = upload
		p.publishTimeout = publish
	}
}

// WithKeyGenerator overrides document key generation.
func WithKeyGenerator(fn func() string) Option {
	return func(p *Producer) { p.newKey = fn }
}

func NewProducer(store blob.Store, publisher Publisher, bucket string, maxBytes int64, log zerolog.Logger, opts ...Option) *Producer {
	p := &Producer{
		store:          store,
		publisher:      publisher,
		status:         cache.Noop{},
		validate:       ValidatePDF,
		newKey:         func() string { return uuid.NewString() + ".pdf" },
		bucket:         bucket,
		maxBytes:       maxBytes,
		uploadTimeout:  2 * time.Minute,
		publishTimeout: 10 * time.Second,
		log:            log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest stores the document and queues it. The returned key identifies the
// document everywhere downstream. The request is published only after the
// blob store confirms the write; if publishing fails the blob stays in place
// for the reconciler.
func (p *Producer) Ingest(ctx context.Context, data []byte, contentType, originalName string) (string, error) {
	const op = "ingest"

	if err := p.check(data, contentType); err != nil {
		return "", err
	}

	key := p.newKey()
	name := displayName(originalName, key)
	log := p.log.With().Str("document_key", key).Str("original_name", name).Logger()

	uploadCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout)
	defer cancel()

	meta := blob.Metadata{blob.MetaOriginalName: name}
	if err := p.store.Put(uploadCtx, p.bucket, key, bytes.NewReader(data), int64(len(data)), pdfContentType, meta); err != nil {
		log.Error().Err(err).Msg("Failed to store document")
		return "", apperr.New(apperr.TransientInfra, op+": store", err)
	}
	log.Info().Int("size", len(data)).Msg("✓ Stored document")

	req := types.ProcessingRequest{DocumentKey: key, OriginalName: name, Bucket: p.bucket}

	publishCtx, cancelPublish := context.WithTimeout(ctx, p.publishTimeout)
	defer cancelPublish()

	if err := p.publisher.Publish(publishCtx, req); err != nil {
		log.Error().Err(err).Msg("Failed to queue document, blob left for reconciliation")
		return "", apperr.New(apperr.TransientInfra, op+": publish", err)
	}

	// An unmarked document is queued again by the reconciler after the grace period.
	markCtx, cancelMark := context.WithTimeout(ctx, p.publishTimeout)
	defer cancelMark()
	if err := p.store.SetMetadata(markCtx, p.bucket, key, blob.Metadata{blob.MetaQueued: "true"}); err != nil {
		log.Warn().Err(err).Msg("Failed to mark document as queued")
	}

	if err := p.status.InitStatus(ctx, key, types.StatusQueued); err != nil {
		log.Warn().Err(err).Msg("Failed to record queued status")
	}

	log.Info().Msg("✓ Queued for processing")
	return key, nil
}

func (p *Producer) check(data []byte, contentType string) error {
	const op = "ingest"

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.EqualFold(mediaType, pdfContentType) {
		return apperr.Invalid(op, "unsupported content type %q, only %s is accepted", contentType, pdfContentType)
	}
	if len(data) == 0 {
		return apperr.Invalid(op, "file is empty")
	}
	if p.maxBytes > 0 && int64(len(data)) > p.maxBytes {
		return apperr.Invalid(op, "file is %d bytes, limit is %d", len(data), p.maxBytes)
	}
	if p.validate != nil {
		if err := p.validate(data); err != nil {
			return apperr.Invalid(op, "not a readable PDF: %v", err)
		}
	}
	return nil
}

func displayName(originalName, key string) string {
	name := strings.TrimSpace(originalName)
	if name == "" {
		return key
	}
	return filepath.Base(strings.ReplaceAll(name, "\\", "/"))
}
