package fedidetect_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	fedidetect "github.com/fedidetect/fedidetect"
	"github.com/fedidetect/fedidetect/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNode_StartAndShutdown(t *testing.T) {
	logger := zap.NewNop()
	cfg := config.NewInternalConfig()
	cfg.ServerAddress = "localhost:0"

	ctx, cancel := context.WithCancel(context.Background())
	node, err := fedidetect.Start(ctx, logger, cfg, "")
	require.NoError(t, err)
	require.NotNil(t, node)

	cancel()
	assert.True(t, node.WaitForShutdown(5*time.Second), "node should shut down in time")
}

func TestNew_MissingParameters(t *testing.T) {
	_, err := fedidetect.New(nil, config.NewInternalConfig())
	assert.Error(t, err)

	_, err = fedidetect.New(zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestNode_Start_BadConfig(t *testing.T) {
	// Manual TLS without cert paths must fail node startup synchronously.
	cfg := config.NewInternalConfig()
	cfg.ServerAddress = "localhost:0"
	cfg.SSLEnabledValue = true
	cfg.SSLModeValue = "manual"

	node, err := fedidetect.New(zap.NewNop(), cfg)
	require.NoError(t, err)
	err = node.Start(context.Background(), http.NewServeMux(), "")
	assert.Error(t, err)
}
