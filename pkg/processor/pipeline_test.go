package processor_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfme/pdf-pipeline/pkg/blob"
	"github.com/pdfme/pdf-pipeline/pkg/database"
	"github.com/pdfme/pdf-pipeline/pkg/extraction"
	"github.com/pdfme/pdf-pipeline/pkg/ingest"
	"github.com/pdfme/pdf-pipeline/pkg/processor"
	"github.com/pdfme/pdf-pipeline/pkg/query"
	"github.com/pdfme/pdf-pipeline/pkg/types"
)

type bucketStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]blob.Metadata
}

func (s *bucketStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, meta blob.Metadata) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	s.meta[bucket+"/"+key] = meta
	return nil
}

func (s *bucketStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *bucketStore) Stat(ctx context.Context, bucket, key string) (blob.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return blob.ObjectInfo{}, blob.ErrNotFound
	}
	return blob.ObjectInfo{Key: key, Size: int64(len(data)), Metadata: s.meta[bucket+"/"+key]}, nil
}

func (s *bucketStore) SetMetadata(ctx context.Context, bucket, key string, meta blob.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := blob.Metadata{}
	for k, v := range s.meta[bucket+"/"+key] {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	s.meta[bucket+"/"+key] = merged
	return nil
}

func (s *bucketStore) Delete(ctx context.Context, bucket, key string) error { return nil }

func (s *bucketStore) List(ctx context.Context, bucket string) ([]blob.ObjectInfo, error) {
	return nil, nil
}

func (s *bucketStore) EnsureBucket(ctx context.Context, bucket string) error { return nil }

// queue stands in for the broker: it keeps published requests in order.
type queue struct {
	msgs []types.ProcessingRequest
}

func (q *queue) Publish(ctx context.Context, req types.ProcessingRequest) error {
	q.msgs = append(q.msgs, req)
	return nil
}

type emptyProvider struct{}

func (emptyProvider) Extract(ctx context.Context, document []byte, schema extraction.Schema) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func TestPipeline_UploadToQueryableRecord(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	store := &bucketStore{objects: map[string][]byte{}, meta: map[string]blob.Metadata{}}
	broker := &queue{}

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	producer := ingest.NewProducer(store, broker, "pdf-uploads", 1<<20, log, ingest.WithValidator(nil))
	orch := processor.New(store, emptyProvider{}, db, log)
	reader := query.NewService(db, nil, store, "pdf-uploads", 8, time.Minute)

	key, err := producer.Ingest(ctx, []byte("%PDF-1.7 minimal"), "application/pdf", "annual-2023.pdf")
	require.NoError(t, err)

	require.Len(t, broker.msgs, 1)
	assert.Equal(t, key, broker.msgs[0].DocumentKey)

	info, err := store.Stat(ctx, "pdf-uploads", key)
	require.NoError(t, err)
	assert.Equal(t, "annual-2023.pdf", info.Metadata.OriginalName())
	assert.True(t, info.Metadata.Queued())

	res := orch.Handle(ctx, broker.msgs[0])
	require.Equal(t, types.Ack, res.Decision, "unexpected failure: %v", res.Err)

	rec, err := reader.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "annual-2023.pdf", rec.OriginalName)
	assert.JSONEq(t, `{}`, string(rec.StructuredData))

	view, err := reader.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, view.Status)

	// redelivery of the same message converges on the same row
	res = orch.Handle(ctx, broker.msgs[0])
	require.Equal(t, types.Ack, res.Decision)
	all, err := reader.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
}
