package blob

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTranslate_MissingObjectIsNotFound(t *testing.T) {
	s := &MinIOStore{log: zerolog.Nop()}

	for _, code := range []string{"NoSuchKey", "NoSuchBucket"} {
		err := s.translate("pdf-uploads", "k.pdf", minio.ErrorResponse{Code: code, StatusCode: 404})
		assert.ErrorIs(t, err, ErrNotFound, code)
	}
}

func TestTranslate_OtherErrorsStayIOErrors(t *testing.T) {
	s := &MinIOStore{log: zerolog.Nop()}

	err := s.translate("pdf-uploads", "k.pdf", minio.ErrorResponse{Code: "SlowDown", StatusCode: 503})
	assert.False(t, errors.Is(err, ErrNotFound))

	err = s.translate("pdf-uploads", "k.pdf", errors.New("connection reset by peer"))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "pdf-uploads/k.pdf")
}

func TestMetadata_EncodingRoundTrip(t *testing.T) {
	raw := encodeMetadata(Metadata{MetaOriginalName: "Jahresbericht 2023 (final).pdf", MetaQueued: "true"})
	for _, v := range raw {
		assert.NotContains(t, v, " ")
	}

	// S3 servers return canonical header casing
	meta := decodeMetadata(map[string]string{
		"Original-Name": raw[MetaOriginalName],
		"Queued":        raw[MetaQueued],
	})
	assert.Equal(t, "Jahresbericht 2023 (final).pdf", meta.OriginalName())
	assert.True(t, meta.Queued())
}

func TestMergeMetadata_KeepsExistingKeys(t *testing.T) {
	merged := mergeMetadata(Metadata{MetaOriginalName: "a.pdf"}, Metadata{"Queued": "true"})

	assert.Equal(t, "a.pdf", merged.OriginalName())
	assert.True(t, merged.Queued())
	assert.Nil(t, encodeMetadata(nil))
}
