package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// RecordWriter is the worker's view of the result store.
type RecordWriter interface {
	Upsert(ctx context.Context, rec *types.ExtractionRecord) error
}

// RecordReader is the query surface's view of the result store.
type RecordReader interface {
	FindByKey(ctx context.Context, documentKey string) (*types.ExtractionRecord, error)
	FindAll(ctx context.Context) ([]types.ExtractionRecord, error)
	OriginalName(ctx context.Context, documentKey string) (string, error)
}

var (
	_ RecordWriter = (*DB)(nil)
	_ RecordReader = (*DB)(nil)
)

// Upsert inserts or overwrites the record keyed by DocumentKey.
// The stored id survives overwrites and is written back into rec.
func (db *DB) Upsert(ctx context.Context, rec *types.ExtractionRecord) error {
	if rec.DocumentKey == "" {
		return fmt.Errorf("upsert: empty document key")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data := rec.StructuredData
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	var vector sql.NullString
	if rec.VectorRepresentation != nil {
		vector = sql.NullString{String: *rec.VectorRepresentation, Valid: true}
	}

	var id string
	err := db.QueryRowContext(ctx, db.q.upsert,
		rec.ID, rec.DocumentKey, rec.OriginalName, string(data), rec.Timestamp, vector,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.DocumentKey, err)
	}

	rec.ID = id
	return nil
}

// FindByKey returns ErrNotFound when no record exists.
func (db *DB) FindByKey(ctx context.Context, documentKey string) (*types.ExtractionRecord, error) {
	rec, err := scanRecord(db.QueryRowContext(ctx, db.q.findByKey, documentKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// FindAll returns every record, newest first.
func (db *DB) FindAll(ctx context.Context) ([]types.ExtractionRecord, error) {
	rows, err := db.QueryContext(ctx, db.q.findAll)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []types.ExtractionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

// OriginalName returns the client-supplied file name for a key.
func (db *DB) OriginalName(ctx context.Context, documentKey string) (string, error) {
	var name string
	err := db.QueryRowContext(ctx, db.q.originalName, documentKey).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get original name: %w", err)
	}
	return name, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*types.ExtractionRecord, error) {
	var (
		rec    types.ExtractionRecord
		data   []byte
		vector sql.NullString
	)
	if err := s.Scan(&rec.ID, &rec.DocumentKey, &rec.OriginalName, &data, &rec.Timestamp, &vector); err != nil {
		return nil, err
	}

	rec.StructuredData = json.RawMessage(data)
	if vector.Valid {
		rec.VectorRepresentation = &vector.String
	}
	return &rec, nil
}
