package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfme/pdf-pipeline/pkg/cache"
	"github.com/pdfme/pdf-pipeline/pkg/config"
)

func TestCloser_ReverseOrder(t *testing.T) {
	var order []int
	c := &Closer{}
	c.Add(func() error { order = append(order, 1); return nil })
	c.Add(func() error { order = append(order, 2); return errors.New("ignored") })
	c.Add(func() error { order = append(order, 3); return nil })

	c.Close(zerolog.Nop())

	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestTopologyAndPolicyFromConfig(t *testing.T) {
	cfg := config.Default()

	topo := Topology(cfg)
	assert.Equal(t, "pdf-processing-exchange", topo.Exchange)
	assert.Equal(t, "pdf-processing-queue", topo.Queue)
	assert.Equal(t, "pdf.process", topo.RoutingKey)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}, topo.RetryDelays)

	policy := RetryPolicy(cfg)
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, cfg.Retry.BaseDelay, policy.BaseDelay)
}

func TestOpenStatusTracker_DisabledIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Enabled = false

	tracker, err := OpenStatusTracker(cfg, &Closer{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, cache.Noop{}, tracker)
}

func TestOpenExtractor_RejectsMissingCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Extraction.APIKey = ""

	_, err := OpenExtractor(context.Background(), cfg, &Closer{}, zerolog.Nop())
	assert.Error(t, err)

	cfg.Extraction.Backend = "vertex"
	cfg.Extraction.ProjectID = ""
	_, err = OpenExtractor(context.Background(), cfg, &Closer{}, zerolog.Nop())
	assert.Error(t, err)
}
