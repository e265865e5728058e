package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fedidetect/fedidetect/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRandomID(t *testing.T) {
	a := shared.RandomID()
	b := shared.RandomID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestFlushIfNotDone(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	err := shared.FlushIfNotDone(zap.NewNop(), r, w, "data: %s\n\n", "hello")
	require.NoError(t, err)
	assert.Contains(t, w.Body.String(), "data: hello")
	assert.True(t, w.Flushed)
}

func TestFlushIfNotDone_ContextDone(t *testing.T) {
	w := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	err := shared.FlushIfNotDone(zap.NewNop(), r, w, "data: %s\n\n", "hello")
	assert.Error(t, err)
	assert.Empty(t, w.Body.String())
}
