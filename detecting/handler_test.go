package detecting_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fedidetect/fedidetect/detecting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func lemmyNetwork() *fakeNetwork {
	return &fakeNetwork{responses: map[string]*http.Response{
		"https://lemmy.example/.well-known/nodeinfo": jsonResponse(http.StatusOK,
			discoveryBody("https://lemmy.example/nodeinfo/2.1")),
		"https://lemmy.example/nodeinfo/2.1": jsonResponse(http.StatusOK, nodeinfoBody("lemmy")),
	}}
}

func TestHandler_SyncPOST(t *testing.T) {
	handler := detecting.Handler(zap.NewNop(), lemmyNetwork().client(), detecting.DefaultTimeout)
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Post(server.URL, "application/json", strings.NewReader(`{"targetUrl":"lemmy.example"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result detecting.DetectionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, detecting.PlatformLemmy, result.Platform)
	assert.Empty(t, result.Error)
}

func TestHandler_SyncGETQueryParams(t *testing.T) {
	handler := detecting.Handler(zap.NewNop(), lemmyNetwork().client(), detecting.DefaultTimeout)
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "?url=lemmy.example&timeoutMs=2000")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result detecting.DetectionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, detecting.PlatformLemmy, result.Platform)
}

func TestHandler_MissingTargetURL(t *testing.T) {
	handler := detecting.Handler(zap.NewNop(), lemmyNetwork().client(), detecting.DefaultTimeout)
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Post(server.URL, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_InvalidBody(t *testing.T) {
	handler := detecting.Handler(zap.NewNop(), lemmyNetwork().client(), detecting.DefaultTimeout)
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Post(server.URL, "application/json", strings.NewReader(`{nope`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	handler := detecting.Handler(zap.NewNop(), lemmyNetwork().client(), detecting.DefaultTimeout)
	server := httptest.NewServer(handler)
	defer server.Close()

	req, err := http.NewRequest(http.MethodDelete, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandler_OptionsPreflight(t *testing.T) {
	handler := detecting.Handler(zap.NewNop(), lemmyNetwork().client(), detecting.DefaultTimeout)
	server := httptest.NewServer(handler)
	defer server.Close()

	req, err := http.NewRequest(http.MethodOptions, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHandler_SSEStream(t *testing.T) {
	handler := detecting.Handler(zap.NewNop(), lemmyNetwork().client(), detecting.DefaultTimeout)
	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"?url=lemmy.example", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var sawLogEntry bool
	var finalResult *detecting.DetectionResult
	scanner := bufio.NewScanner(resp.Body)
	var currentEvent string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch currentEvent {
			case "log_entry":
				var entry detecting.DetectionLogEntry
				require.NoError(t, json.Unmarshal([]byte(data), &entry))
				sawLogEntry = true
			case "final_result":
				var result detecting.DetectionResult
				require.NoError(t, json.Unmarshal([]byte(data), &result))
				finalResult = &result
			}
		}
	}

	assert.True(t, sawLogEntry, "expected at least one log_entry event")
	require.NotNil(t, finalResult, "expected a final_result event")
	assert.Equal(t, detecting.PlatformLemmy, finalResult.Platform)
}

func TestHandler_SSEReportsFailureStage(t *testing.T) {
	network := &fakeNetwork{responses: map[string]*http.Response{
		"https://down.example/.well-known/nodeinfo": jsonResponse(http.StatusBadGateway, `oops`),
	}}
	handler := detecting.Handler(zap.NewNop(), network.client(), detecting.DefaultTimeout)
	server := httptest.NewServer(handler)
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"?url=down.example", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var currentEvent string
	var finalResult *detecting.DetectionResult
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") && currentEvent == "final_result" {
			var result detecting.DetectionResult
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &result))
			finalResult = &result
		}
	}

	require.NotNil(t, finalResult)
	assert.Equal(t, detecting.PlatformUnknown, finalResult.Platform)
	assert.Equal(t, detecting.StageDiscovery, finalResult.Stage)
	assert.NotEmpty(t, finalResult.Error)
}
