package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinIOStore implements Store on an S3-compatible MinIO server.
type MinIOStore struct {
	client *minio.Client
	log    zerolog.Logger
}

// NewMinIOStore initializes the MinIO client. It does not contact the server.
func NewMinIOStore(endpoint, accessKey, secretKey string, useSSL bool, log zerolog.Logger) (*MinIOStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init: %w", err)
	}

	log.Info().Str("endpoint", endpoint).Msg("✓ MinIO client initialized")
	return &MinIOStore{client: client, log: log}, nil
}

// EnsureBucket creates bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		s.log.Info().Str("bucket", bucket).Msg("✓ Created bucket")
	} else {
		s.log.Debug().Str("bucket", bucket).Msg("✓ Bucket exists")
	}

	return nil
}

func (s *MinIOStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, meta Metadata) error {
	info, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: encodeMetadata(meta),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}

	s.log.Debug().Str("bucket", bucket).Str("key", key).Int64("size", info.Size).Msg("uploaded object")
	return nil
}

// Get returns the object body. GetObject is lazy, so the object is stat'ed
// first to surface a missing key as ErrNotFound instead of a read error.
func (s *MinIOStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(bucket, key, err)
	}

	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, s.translate(bucket, key, err)
	}

	return object, nil
}

func (s *MinIOStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, s.translate(bucket, key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		Metadata:     decodeMetadata(info.UserMetadata),
	}, nil
}

// SetMetadata rewrites the object onto itself with merged metadata. S3 has no
// in-place metadata update.
func (s *MinIOStore) SetMetadata(ctx context.Context, bucket, key string, meta Metadata) error {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return s.translate(bucket, key, err)
	}

	headers := encodeMetadata(mergeMetadata(decodeMetadata(info.UserMetadata), meta))
	if info.ContentType != "" {
		headers["Content-Type"] = info.ContentType
	}

	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucket, Object: key, ReplaceMetadata: true, UserMetadata: headers},
		minio.CopySrcOptions{Bucket: bucket, Object: key},
	)
	if err != nil {
		return fmt.Errorf("update metadata %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *MinIOStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	s.log.Debug().Str("bucket", bucket).Str("key", key).Msg("deleted object")
	return nil
}

// List lists all objects in the bucket (metadata only), skipping directories.
func (s *MinIOStore) List(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	objectCh := s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Recursive: true,
	})

	var objects []ObjectInfo
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("list %s: %w", bucket, object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}

	return objects, nil
}

func (s *MinIOStore) translate(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("get %s/%s: %w", bucket, key, ErrNotFound)
	}
	return fmt.Errorf("get %s/%s: %w", bucket, key, err)
}
