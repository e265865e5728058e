package shared

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// RandomID returns a URL-safe random identifier.
func RandomID() string {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(key)
}

// FlushIfNotDone writes a formatted chunk to the response and flushes it,
// unless the request context is already done (client disconnected).
func FlushIfNotDone(logger *zap.Logger, r *http.Request, w http.ResponseWriter, format string, args ...any) error {
	select {
	case <-r.Context().Done():
		return r.Context().Err()
	default:
	}
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return fmt.Errorf("write to response: %w", err)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	} else {
		logger.Warn("ResponseWriter does not support flushing")
	}
	return nil
}
