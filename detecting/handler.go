package detecting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fedidetect/fedidetect/shared"
	"go.uber.org/zap"
)

// DetectRequest is the POST body for the detection endpoint. GET requests
// carry the same values in the "url" and "timeoutMs" query parameters.
type DetectRequest struct {
	TargetURL string `json:"targetUrl"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

// DetectionResult is the final outcome of one detection request. Stage and
// Error are populated only when the probe failed; an unrecognized platform
// on a well-formed nodeinfo document is not an error.
type DetectionResult struct {
	Platform Platform `json:"platform"`
	Stage    Stage    `json:"stage,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// writeLogEntry sends a DetectionLogEntry as an SSE event.
func writeLogEntry(w http.ResponseWriter, r *http.Request, entry DetectionLogEntry, logger *zap.Logger) error {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		logger.Error("Failed to marshal log entry", zap.Error(err), zap.Any("entry", entry))
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return shared.FlushIfNotDone(logger, r, w, "event: log_entry\ndata: %s\n\n", jsonData)
}

// writeFinalResult sends the DetectionResult as the closing SSE event.
func writeFinalResult(w http.ResponseWriter, r *http.Request, result DetectionResult, logger *zap.Logger) error {
	jsonData, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to marshal final result", zap.Error(err), zap.Any("result", result))
		errData, _ := json.Marshal(map[string]string{"error": "Internal error finalizing result"})
		_ = shared.FlushIfNotDone(logger, r, w, "event: final_result\ndata: %s\n\n", errData)
		return fmt.Errorf("failed to marshal final result: %w", err)
	}
	return shared.FlushIfNotDone(logger, r, w, "event: final_result\ndata: %s\n\n", jsonData)
}

// parseDetectRequest extracts the detection parameters from either a POST
// JSON body or GET query parameters.
func parseDetectRequest(r *http.Request) (DetectRequest, error) {
	var reqPayload DetectRequest
	switch r.Method {
	case http.MethodGet:
		reqPayload.TargetURL = r.URL.Query().Get("url")
		if raw := r.URL.Query().Get("timeoutMs"); raw != "" {
			ms, err := strconv.Atoi(raw)
			if err != nil {
				return reqPayload, fmt.Errorf("invalid timeoutMs: %w", err)
			}
			reqPayload.TimeoutMs = ms
		}
	case http.MethodPost:
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return reqPayload, fmt.Errorf("read request body: %w", err)
		}
		defer r.Body.Close()
		if err := json.Unmarshal(bodyBytes, &reqPayload); err != nil {
			return reqPayload, fmt.Errorf("parse request body: %w", err)
		}
	}
	return reqPayload, nil
}

// Handler creates an HTTP handler that resolves the platform behind a target
// URL. POST carries a JSON body, GET carries query parameters; either method
// with "Accept: text/event-stream" streams per-stage progress before the
// final result.
func Handler(logger *zap.Logger, httpClient *http.Client, defaultTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handlerLogger := logger.With(zap.String("handler", "detecting"))
		isSSE := strings.Contains(r.Header.Get("Accept"), "text/event-stream")

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, `{"error": "Method Not Allowed"}`, http.StatusMethodNotAllowed)
			return
		}

		reqPayload, err := parseDetectRequest(r)
		if err != nil {
			handlerLogger.Error("Failed to decode detection request", zap.Error(err))
			http.Error(w, `{"error": "Invalid request format"}`, http.StatusBadRequest)
			return
		}
		if reqPayload.TargetURL == "" {
			handlerLogger.Warn("Missing target URL")
			http.Error(w, `{"error": "Target URL is required"}`, http.StatusBadRequest)
			return
		}

		timeout := defaultTimeout
		if reqPayload.TimeoutMs > 0 {
			timeout = time.Duration(reqPayload.TimeoutMs) * time.Millisecond
		}

		handlerLogger = handlerLogger.With(zap.String("targetURL", reqPayload.TargetURL), zap.Bool("sse", isSSE))
		handlerLogger.Info("Handling detection request")

		detector := New(httpClient, timeout, handlerLogger)

		if isSSE {
			serveSSE(w, r, detector, reqPayload.TargetURL, handlerLogger)
			return
		}

		// Synchronous JSON mode.
		w.Header().Set("Content-Type", "application/json")
		result := runProbe(r.Context(), detector, "sync", reqPayload.TargetURL, nil, handlerLogger)
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			handlerLogger.Error("Failed to encode final JSON response", zap.Error(err))
		}
		handlerLogger.Info("Detection request finished",
			zap.String("platform", string(result.Platform)),
			zap.String("error", result.Error))
	}
}

// serveSSE streams probe progress as log_entry events followed by one
// final_result event. A client disconnect cancels the in-flight probe.
func serveSSE(w http.ResponseWriter, r *http.Request, detector *Detector, targetURL string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("ResponseWriter does not support flushing (http.Flusher), cannot use SSE")
		return
	}
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logChan := make(chan DetectionLogEntry, 10)
	resultCh := make(chan DetectionResult, 1)
	stepID := shared.RandomID()

	go func() {
		defer close(logChan)
		resultCh <- runProbe(ctx, detector, stepID, targetURL, logChan, logger)
	}()

	// Forward progress entries. After a write failure keep draining so the
	// probe goroutine never blocks on logChan.
	writeFailed := false
	for entry := range logChan {
		if writeFailed {
			continue
		}
		if err := writeLogEntry(w, r, entry, logger); err != nil {
			logger.Warn("Error writing log entry to SSE stream, client might have disconnected", zap.Error(err))
			cancel()
			writeFailed = true
		}
	}

	result := <-resultCh
	if err := writeFinalResult(w, r, result, logger); err != nil {
		logger.Error("Failed to write final result to SSE stream", zap.Error(err))
	}
	logger.Info("Detection stream finished",
		zap.String("platform", string(result.Platform)),
		zap.String("error", result.Error))
}

// runProbe executes one probe and folds its staged error into the result.
func runProbe(ctx context.Context, detector *Detector, stepID, targetURL string, logChan chan<- DetectionLogEntry, logger *zap.Logger) DetectionResult {
	platform, err := detector.Probe(ctx, stepID, targetURL, logChan)
	result := DetectionResult{Platform: platform}
	if err != nil {
		result.Error = err.Error()
		var staged *StageError
		if errors.As(err, &staged) {
			result.Stage = staged.Stage
		}
		logger.Warn("Platform detection failed", zap.String("targetURL", targetURL), zap.Error(err))
	}
	return result
}
