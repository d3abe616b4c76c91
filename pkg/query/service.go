// Package query is the read side of the pipeline: stored extraction records,
// original files and processing status.
package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pdfme/pdf-pipeline/pkg/blob"
	"github.com/pdfme/pdf-pipeline/pkg/cache"
	"github.com/pdfme/pdf-pipeline/pkg/database"
	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// ErrNotFound means nothing is known about the document.
var ErrNotFound = errors.New("document not found")

// StatusView is the externally visible processing state of one document.
type StatusView struct {
	DocumentKey string `json:"documentKey"`
	Status      string `json:"status"`
}

type Service struct {
	records database.RecordReader
	status  cache.StatusTracker
	store   blob.Store
	bucket  string
	cache   *expirable.LRU[string, types.ExtractionRecord]
}

// NewService caches Get results for ttl. A size of zero disables the cache.
func NewService(records database.RecordReader, status cache.StatusTracker, store blob.Store, bucket string, size int, ttl time.Duration) *Service {
	s := &Service{
		records: records,
		status:  status,
		store:   store,
		bucket:  bucket,
	}
	if s.status == nil {
		s.status = cache.Noop{}
	}
	if size > 0 {
		s.cache = expirable.NewLRU[string, types.ExtractionRecord](size, nil, ttl)
	}
	return s
}

// List returns all records, newest first.
func (s *Service) List(ctx context.Context) ([]types.ExtractionRecord, error) {
	return s.records.FindAll(ctx)
}

// Get returns the record for a document key.
func (s *Service) Get(ctx context.Context, documentKey string) (*types.ExtractionRecord, error) {
	if s.cache != nil {
		if rec, ok := s.cache.Get(documentKey); ok {
			return &rec, nil
		}
	}

	rec, err := s.records.FindByKey(ctx, documentKey)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(documentKey, *rec)
	}
	return rec, nil
}

// OriginalName returns the upload's file name, falling back to the key when
// no record exists yet.
func (s *Service) OriginalName(ctx context.Context, documentKey string) (string, error) {
	name, err := s.records.OriginalName(ctx, documentKey)
	if errors.Is(err, database.ErrNotFound) || (err == nil && name == "") {
		return documentKey, nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// Status prefers the result store: a persisted record is always completed.
func (s *Service) Status(ctx context.Context, documentKey string) (StatusView, error) {
	_, err := s.Get(ctx, documentKey)
	if err == nil {
		return StatusView{DocumentKey: documentKey, Status: types.StatusCompleted}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return StatusView{}, err
	}

	status, err := s.status.GetStatus(ctx, documentKey)
	if err != nil {
		return StatusView{}, err
	}
	if status == "" {
		return StatusView{}, ErrNotFound
	}
	return StatusView{DocumentKey: documentKey, Status: status}, nil
}

// Download opens the stored original. The caller closes the reader.
func (s *Service) Download(ctx context.Context, documentKey string) (io.ReadCloser, string, error) {
	rc, err := s.store.Get(ctx, s.bucket, documentKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", documentKey, err)
	}

	name, err := s.OriginalName(ctx, documentKey)
	if err != nil {
		name = documentKey
	}
	return rc, name, nil
}
