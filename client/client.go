// Package client provides a Go client for the fedidetect detection service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fedidetect/fedidetect/detecting"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"gopkg.in/cenkalti/backoff.v1"
)

// Client calls a running detection service.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client for the detect endpoint at endpointURL
// (e.g. "https://fedidetect.example:8080/detect").
func New(endpointURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(endpointURL)
	if err != nil {
		logger.Error("Failed to parse endpoint URL", zap.String("url", endpointURL), zap.Error(err))
		return nil, fmt.Errorf("invalid endpoint URL %s: %w", endpointURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   u,
		httpClient: httpClient,
		logger:     logger.With(zap.String("endpoint", u.String())),
	}, nil
}

// Detect asks the service to classify targetURL and returns the final
// result. A zero timeout leaves the service default in place.
func (c *Client) Detect(ctx context.Context, targetURL string, timeout time.Duration) (detecting.DetectionResult, error) {
	var result detecting.DetectionResult

	reqPayload := detecting.DetectRequest{
		TargetURL: targetURL,
		TimeoutMs: int(timeout / time.Millisecond),
	}
	body, err := json.Marshal(reqPayload)
	if err != nil {
		return result, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.CopyN(io.Discard, resp.Body, 1024)
		return result, fmt.Errorf("detection request failed: status code %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("parse detection response: %w", err)
	}
	return result, nil
}

// DetectStream subscribes to the SSE progress stream for one detection,
// invoking onLog for every progress entry, and returns the final result.
func (c *Client) DetectStream(ctx context.Context, targetURL string, timeout time.Duration, onLog func(detecting.DetectionLogEntry)) (detecting.DetectionResult, error) {
	var result detecting.DetectionResult

	streamURL := *c.endpoint
	query := streamURL.Query()
	query.Set("url", targetURL)
	if timeout > 0 {
		query.Set("timeoutMs", strconv.Itoa(int(timeout/time.Millisecond)))
	}
	streamURL.RawQuery = query.Encode()

	sseClient := sse.NewClient(streamURL.String())
	sseClient.Connection = c.httpClient
	sseClient.Headers = map[string]string{
		"Accept":        "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 30 * time.Second
	sseClient.ReconnectStrategy = backoff.WithContext(expBackoff, subCtx)
	sseClient.ReconnectNotify = func(err error, t time.Duration) {
		c.logger.Error("SSE connection error", zap.Error(err), zap.Duration("delay", t))
	}

	events := make(chan *sse.Event, 10)
	if err := sseClient.SubscribeChanWithContext(subCtx, "", events); err != nil {
		return result, fmt.Errorf("SSE subscription failed: %w", err)
	}
	defer sseClient.Unsubscribe(events)

	for {
		select {
		case <-subCtx.Done():
			return result, subCtx.Err()
		case event, ok := <-events:
			if !ok {
				return result, errors.New("stream closed before final result")
			}
			switch string(event.Event) {
			case "log_entry":
				var entry detecting.DetectionLogEntry
				if err := json.Unmarshal(event.Data, &entry); err != nil {
					c.logger.Warn("Failed to parse log entry from stream", zap.Error(err))
					continue
				}
				if onLog != nil {
					onLog(entry)
				}
			case "final_result":
				if err := json.Unmarshal(event.Data, &result); err != nil {
					return result, fmt.Errorf("parse final result: %w", err)
				}
				return result, nil
			default:
				c.logger.Debug("Ignoring unknown SSE event", zap.String("event", string(event.Event)))
			}
		}
	}
}
