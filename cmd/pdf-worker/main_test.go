package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/pdfme/pdf-pipeline/pkg/config"
)

func TestRun_StartupFailureReturnsError(t *testing.T) {
	cfg := config.Default()
	cfg.Blob.Driver = "ftp"

	err := run(cfg, zerolog.Nop())

	assert.ErrorContains(t, err, "initialize blob store")
	assert.ErrorContains(t, err, "unsupported blob driver")
}
