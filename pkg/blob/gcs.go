package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// GCSStore implements Store on Google Cloud Storage using ambient credentials.
type GCSStore struct {
	client    *storage.Client
	projectID string
	log       zerolog.Logger
}

func NewGCSStore(ctx context.Context, projectID string, log zerolog.Logger) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, projectID: projectID, log: log}, nil
}

func (s *GCSStore) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.Bucket(bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if s.projectID == "" {
		return fmt.Errorf("bucket %s does not exist and no project is configured to create it", bucket)
	}
	if err := s.client.Bucket(bucket).Create(ctx, s.projectID, nil); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	s.log.Info().Str("bucket", bucket).Msg("✓ Created bucket")
	return nil
}

func (s *GCSStore) Put(ctx context.Context, bucket, key string, r io.Reader, _ int64, contentType string, meta Metadata) error {
	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = encodeMetadata(meta)

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return fmt.Errorf("put gs://%s/%s: %w", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("get gs://%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get gs://%s/%s: %w", bucket, key, err)
	}
	return reader, nil
}

func (s *GCSStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return ObjectInfo{}, fmt.Errorf("stat gs://%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat gs://%s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{
		Key:          attrs.Name,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
		Metadata:     decodeMetadata(attrs.Metadata),
	}, nil
}

func (s *GCSStore) SetMetadata(ctx context.Context, bucket, key string, meta Metadata) error {
	current, err := s.Stat(ctx, bucket, key)
	if err != nil {
		return err
	}

	obj := s.client.Bucket(bucket).Object(key)
	if _, err := obj.Update(ctx, storage.ObjectAttrsToUpdate{
		Metadata: encodeMetadata(mergeMetadata(current.Metadata, meta)),
	}); err != nil {
		return fmt.Errorf("update metadata gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	it := s.client.Bucket(bucket).Objects(ctx, nil)

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s: %w", bucket, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return objects, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
