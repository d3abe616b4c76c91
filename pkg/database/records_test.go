package database

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfme/pdf-pipeline/pkg/types"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestUpsert_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := &types.ExtractionRecord{
		DocumentKey:    "a1.pdf",
		OriginalName:   "annual-report.pdf",
		StructuredData: json.RawMessage(`{"title":"X"}`),
	}
	require.NoError(t, db.Upsert(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	got, err := db.FindByKey(ctx, "a1.pdf")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "annual-report.pdf", got.OriginalName)
	assert.JSONEq(t, `{"title":"X"}`, string(got.StructuredData))
	assert.Nil(t, got.VectorRepresentation)
	assert.WithinDuration(t, rec.Timestamp, got.Timestamp, time.Second)
}

func TestUpsert_SecondWriteOverwritesAndKeepsID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &types.ExtractionRecord{DocumentKey: "k.pdf", OriginalName: "r.pdf", StructuredData: json.RawMessage(`{"title":"old"}`)}
	require.NoError(t, db.Upsert(ctx, first))

	second := &types.ExtractionRecord{DocumentKey: "k.pdf", OriginalName: "r.pdf", StructuredData: json.RawMessage(`{"title":"new"}`)}
	require.NoError(t, db.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	all, err := db.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.JSONEq(t, `{"title":"new"}`, string(all[0].StructuredData))
}

func TestUpsert_EmptyDataStoredAsEmptyObject(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Upsert(ctx, &types.ExtractionRecord{DocumentKey: "e.pdf", OriginalName: "e.pdf"}))

	got, err := db.FindByKey(ctx, "e.pdf")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got.StructuredData))
}

func TestUpsert_RejectsEmptyKey(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, db.Upsert(context.Background(), &types.ExtractionRecord{}))
}

func TestFindByKey_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.FindByKey(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.OriginalName(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindAll_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	vec := "[0.1,0.2]"
	require.NoError(t, db.Upsert(ctx, &types.ExtractionRecord{DocumentKey: "old.pdf", OriginalName: "o", Timestamp: base}))
	require.NoError(t, db.Upsert(ctx, &types.ExtractionRecord{DocumentKey: "new.pdf", OriginalName: "n", Timestamp: base.Add(time.Hour), VectorRepresentation: &vec}))

	all, err := db.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new.pdf", all[0].DocumentKey)
	require.NotNil(t, all[0].VectorRepresentation)
	assert.Equal(t, vec, *all[0].VectorRepresentation)
	assert.Equal(t, "old.pdf", all[1].DocumentKey)

	name, err := db.OriginalName(ctx, "new.pdf")
	require.NoError(t, err)
	assert.Equal(t, "n", name)
}

func TestFindAll_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)

	all, err := db.FindAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}
