package extra_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fedidetect/fedidetect/config"
	"github.com/fedidetect/fedidetect/extra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStatusHandler(t *testing.T) {
	cfg := config.NewInternalConfig()
	cfg.ServerNameValue = "fedidetect-test"
	cfg.ServerVersionValue = "0.1.0"

	server := httptest.NewServer(extra.StatusHandler(cfg, zap.NewNop()))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status extra.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status.Config)
	assert.Equal(t, "fedidetect-test", status.Name)
	assert.Equal(t, "0.1.0", status.Version)
}
