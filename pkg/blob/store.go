// Package blob stores uploaded documents as opaque objects under bucket+key.
package blob

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound means the store confirmed the object (or its bucket) does not exist.
// Any other Get error is an I/O failure and may succeed on retry.
var ErrNotFound = errors.New("object not found")

// User metadata keys written alongside each document.
const (
	MetaOriginalName = "original-name"
	// MetaQueued is set once the broker has confirmed a processing request
	// for the object. It is never cleared.
	MetaQueued = "queued"
)

// Store is the blob store contract used by ingest, the worker and the reconciler.
type Store interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, meta Metadata) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	// SetMetadata merges meta into the object's existing user metadata.
	SetMetadata(ctx context.Context, bucket, key string, meta Metadata) error
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket string) ([]ObjectInfo, error)
	EnsureBucket(ctx context.Context, bucket string) error
}

// Metadata is per-object user metadata with lower-case keys.
type Metadata map[string]string

func (m Metadata) OriginalName() string { return m[MetaOriginalName] }

func (m Metadata) Queued() bool { return m[MetaQueued] == "true" }

// ObjectInfo describes a stored object. List leaves Metadata empty; use Stat.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	Metadata     Metadata
}

// ReadAll downloads an object fully and closes the reader.
func ReadAll(ctx context.Context, s Store, bucket, key string) ([]byte, error) {
	rc, err := s.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// encodeMetadata escapes values so arbitrary file names survive as HTTP headers.
func encodeMetadata(meta Metadata) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[strings.ToLower(k)] = url.QueryEscape(v)
	}
	return out
}

func decodeMetadata(raw map[string]string) Metadata {
	meta := Metadata{}
	for k, v := range raw {
		if decoded, err := url.QueryUnescape(v); err == nil {
			v = decoded
		}
		meta[strings.ToLower(k)] = v
	}
	return meta
}

func mergeMetadata(existing, update Metadata) Metadata {
	merged := Metadata{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range update {
		merged[strings.ToLower(k)] = v
	}
	return merged
}
