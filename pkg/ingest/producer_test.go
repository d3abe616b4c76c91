package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfme/pdf-pipeline/pkg/apperr"
	"github.com/pdfme/pdf-pipeline/pkg/blob"
	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// events records store and publish calls in order.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

type memStore struct {
	ev      *events
	err     error
	markErr error
	objects map[string][]byte
	types   map[string]string
	meta    map[string]blob.Metadata
}

func newMemStore(ev *events) *memStore {
	return &memStore{ev: ev, objects: map[string][]byte{}, types: map[string]string{}, meta: map[string]blob.Metadata{}}
}

func (m *memStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, meta blob.Metadata) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = data
	m.types[bucket+"/"+key] = contentType
	m.meta[bucket+"/"+key] = meta
	m.ev.add("put:" + key)
	return nil
}

func (m *memStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Stat(ctx context.Context, bucket, key string) (blob.ObjectInfo, error) {
	if _, ok := m.objects[bucket+"/"+key]; !ok {
		return blob.ObjectInfo{}, blob.ErrNotFound
	}
	return blob.ObjectInfo{Key: key, Metadata: m.meta[bucket+"/"+key]}, nil
}

func (m *memStore) SetMetadata(ctx context.Context, bucket, key string, meta blob.Metadata) error {
	if m.markErr != nil {
		return m.markErr
	}
	merged := blob.Metadata{}
	for k, v := range m.meta[bucket+"/"+key] {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	m.meta[bucket+"/"+key] = merged
	m.ev.add("mark:" + key)
	return nil
}

func (m *memStore) Delete(ctx context.Context, bucket, key string) error {
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *memStore) List(ctx context.Context, bucket string) ([]blob.ObjectInfo, error) {
	return nil, nil
}

func (m *memStore) EnsureBucket(ctx context.Context, bucket string) error { return nil }

type memPublisher struct {
	ev   *events
	err  error
	sent []types.ProcessingRequest
}

func (m *memPublisher) Publish(ctx context.Context, req types.ProcessingRequest) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, req)
	m.ev.add("publish:" + req.DocumentKey)
	return nil
}

type memStatus struct {
	statuses map[string]string
}

func (m *memStatus) SetStatus(ctx context.Context, key, status string) error {
	m.statuses[key] = status
	return nil
}

func (m *memStatus) InitStatus(ctx context.Context, key, status string) error {
	if _, ok := m.statuses[key]; !ok {
		m.statuses[key] = status
	}
	return nil
}

func (m *memStatus) GetStatus(ctx context.Context, key string) (string, error) {
	return m.statuses[key], nil
}

func newTestProducer(store *memStore, pub *memPublisher, opts ...Option) *Producer {
	opts = append([]Option{
		WithValidator(nil),
		WithKeyGenerator(func() string { return "k-1.pdf" }),
	}, opts...)
	return NewProducer(store, pub, "pdf-uploads", 1024, zerolog.Nop(), opts...)
}

func TestIngest_StoresThenPublishes(t *testing.T) {
	ev := &events{}
	store := newMemStore(ev)
	pub := &memPublisher{ev: ev}
	status := &memStatus{statuses: map[string]string{}}
	p := newTestProducer(store, pub, WithStatusTracker(status))

	key, err := p.Ingest(context.Background(), []byte("%PDF-1.7 body"), "application/pdf", "annual-report.pdf")
	require.NoError(t, err)

	assert.Equal(t, "k-1.pdf", key)
	assert.Equal(t, []string{"put:k-1.pdf", "publish:k-1.pdf", "mark:k-1.pdf"}, ev.log)
	assert.Equal(t, "application/pdf", store.types["pdf-uploads/k-1.pdf"])
	assert.Equal(t, "annual-report.pdf", store.meta["pdf-uploads/k-1.pdf"].OriginalName())
	assert.True(t, store.meta["pdf-uploads/k-1.pdf"].Queued())
	require.Len(t, pub.sent, 1)
	assert.Equal(t, types.ProcessingRequest{DocumentKey: "k-1.pdf", OriginalName: "annual-report.pdf", Bucket: "pdf-uploads"}, pub.sent[0])
	assert.Equal(t, types.StatusQueued, status.statuses["k-1.pdf"])
}

func TestIngest_DefaultKeyIsIndependentOfName(t *testing.T) {
	ev := &events{}
	p := NewProducer(newMemStore(ev), &memPublisher{ev: ev}, "pdf-uploads", 1024, zerolog.Nop(), WithValidator(nil))

	k1, err := p.Ingest(context.Background(), []byte("%PDF"), "application/pdf", "same.pdf")
	require.NoError(t, err)
	k2, err := p.Ingest(context.Background(), []byte("%PDF"), "application/pdf", "same.pdf")
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.NotContains(t, k1, "same")
	assert.Regexp(t, `^[0-9a-f-]{36}\.pdf$`, k1)
}

func TestIngest_RejectsNonPDFContentType(t *testing.T) {
	ev := &events{}
	store := newMemStore(ev)
	pub := &memPublisher{ev: ev}
	p := newTestProducer(store, pub)

	_, err := p.Ingest(context.Background(), []byte("0123456789"), "text/plain", "notes.txt")

	require.Error(t, err)
	assert.Equal(t, apperr.InvalidInput, apperr.ClassOf(err))
	assert.Empty(t, store.objects)
	assert.Empty(t, pub.sent)
}

func TestIngest_ContentTypeParametersIgnored(t *testing.T) {
	ev := &events{}
	p := newTestProducer(newMemStore(ev), &memPublisher{ev: ev})

	_, err := p.Ingest(context.Background(), []byte("%PDF"), "Application/PDF; name=x.pdf", "x.pdf")
	assert.NoError(t, err)
}

func TestIngest_RejectsEmptyAndOversized(t *testing.T) {
	ev := &events{}
	store := newMemStore(ev)
	pub := &memPublisher{ev: ev}
	p := newTestProducer(store, pub)

	_, err := p.Ingest(context.Background(), nil, "application/pdf", "empty.pdf")
	assert.Equal(t, apperr.InvalidInput, apperr.ClassOf(err))

	_, err = p.Ingest(context.Background(), make([]byte, 1025), "application/pdf", "big.pdf")
	assert.Equal(t, apperr.InvalidInput, apperr.ClassOf(err))

	assert.Empty(t, store.objects)
	assert.Empty(t, pub.sent)
}

func TestIngest_ValidatorFailureIsInvalidInput(t *testing.T) {
	ev := &events{}
	store := newMemStore(ev)
	p := newTestProducer(store, &memPublisher{ev: ev}, WithValidator(func([]byte) error {
		return errors.New("no xref table")
	}))

	_, err := p.Ingest(context.Background(), []byte("garbage"), "application/pdf", "bad.pdf")
	assert.Equal(t, apperr.InvalidInput, apperr.ClassOf(err))
	assert.Empty(t, store.objects)
}

func TestIngest_StoreFailureNeverPublishes(t *testing.T) {
	ev := &events{}
	store := newMemStore(ev)
	store.err = errors.New("connection refused")
	pub := &memPublisher{ev: ev}
	p := newTestProducer(store, pub)

	_, err := p.Ingest(context.Background(), []byte("%PDF"), "application/pdf", "a.pdf")

	assert.Equal(t, apperr.TransientInfra, apperr.ClassOf(err))
	assert.Empty(t, pub.sent)
}

func TestIngest_PublishFailureLeavesOrphanBlob(t *testing.T) {
	ev := &events{}
	store := newMemStore(ev)
	pub := &memPublisher{ev: ev, err: errors.New("channel closed")}
	p := newTestProducer(store, pub)

	_, err := p.Ingest(context.Background(), []byte("%PDF"), "application/pdf", "a.pdf")

	assert.Equal(t, apperr.TransientInfra, apperr.ClassOf(err))
	assert.Contains(t, store.objects, "pdf-uploads/k-1.pdf")
	assert.Equal(t, []string{"put:k-1.pdf"}, ev.log)
	assert.False(t, store.meta["pdf-uploads/k-1.pdf"].Queued(), "unconfirmed documents stay unmarked for the reconciler")
}

func TestIngest_MarkFailureStillSucceeds(t *testing.T) {
	ev := &events{}
	store := newMemStore(ev)
	store.markErr = errors.New("slow down")
	pub := &memPublisher{ev: ev}
	p := newTestProducer(store, pub)

	key, err := p.Ingest(context.Background(), []byte("%PDF"), "application/pdf", "a.pdf")

	require.NoError(t, err)
	assert.Equal(t, "k-1.pdf", key)
	assert.Len(t, pub.sent, 1)
}

func TestIngest_QueuedStatusDoesNotOverwriteWorkerProgress(t *testing.T) {
	ev := &events{}
	// a fast worker already reported before the queued write lands
	status := &memStatus{statuses: map[string]string{"k-1.pdf": types.StatusFailed}}
	p := newTestProducer(newMemStore(ev), &memPublisher{ev: ev}, WithStatusTracker(status))

	_, err := p.Ingest(context.Background(), []byte("%PDF"), "application/pdf", "a.pdf")
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, status.statuses["k-1.pdf"])
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "report.pdf", displayName("report.pdf", "k.pdf"))
	assert.Equal(t, "report.pdf", displayName(`C:\Users\me\report.pdf`, "k.pdf"))
	assert.Equal(t, "report.pdf", displayName("../../report.pdf", "k.pdf"))
	assert.Equal(t, "k.pdf", displayName("  ", "k.pdf"))
}

func TestValidatePDF_RejectsGarbage(t *testing.T) {
	assert.Error(t, ValidatePDF([]byte("this is not a pdf")))
}
