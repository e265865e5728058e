package detecting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the per-phase network timeout: each request gets this
// budget for the response headers to arrive and the same budget again for
// the body to be read.
const DefaultTimeout = 5 * time.Second

// maxBodySize caps how much of either document is read.
const maxBodySize = 1 << 20

// errPhaseTimeout marks a request aborted because a phase budget ran out.
var errPhaseTimeout = errors.New("phase timeout exceeded")

// Stage names the probe step that produced a result or failure.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageDiscovery Stage = "discovery"
	StageLinks     Stage = "links"
	StageNodeinfo  Stage = "nodeinfo"
	StageClassify  Stage = "classify"
)

// StageError reports which probe stage failed. Detect collapses it to
// PlatformUnknown; Probe returns it so callers can surface per-stage detail.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) *StageError { return &StageError{Stage: stage, Err: err} }

// Detector resolves the platform behind a hostname or URL via the
// /.well-known/nodeinfo discovery convention.
type Detector struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a Detector. A nil httpClient falls back to http.DefaultClient
// (phase timeouts are enforced per request, not on the client); a
// non-positive timeout means DefaultTimeout.
func New(httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *Detector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}
}

// Detect classifies the server behind identifier. It never fails: any probe
// error is logged once as a diagnostic and reported as PlatformUnknown.
// Callers must treat PlatformUnknown as "could not determine", never as
// "confirmed not lemmy/piefed".
func (d *Detector) Detect(ctx context.Context, identifier string) Platform {
	platform, err := d.Probe(ctx, "", identifier, nil)
	if err != nil {
		d.logger.Warn("Platform detection failed",
			zap.String("identifier", identifier),
			zap.Error(err))
		return PlatformUnknown
	}
	return platform
}

// Probe runs one detection and surfaces the staged error instead of
// swallowing it. When logChan is non-nil a progress entry is emitted per
// stage; stepID correlates them.
//
// A well-formed nodeinfo document naming unrecognized software is a
// successful probe that classifies to PlatformUnknown, not an error.
func (d *Detector) Probe(ctx context.Context, stepID, identifier string, logChan chan<- DetectionLogEntry) (Platform, error) {
	emit := func(stage Stage, rawURL, status string, details *LogDetails) {
		if logChan == nil {
			return
		}
		logChan <- DetectionLogEntry{
			StepID:    stepID,
			Timestamp: time.Now(),
			Stage:     stage,
			URL:       rawURL,
			Status:    status,
			Details:   details,
		}
	}

	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		// No network call for an empty identifier.
		return PlatformUnknown, nil
	}

	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		emit(StageNormalize, trimmed, statusError, &LogDetails{Type: "Parse", Message: err.Error()})
		return PlatformUnknown, stageErr(StageNormalize, err)
	}
	// Resolving the root-absolute well-known path drops any path or query
	// carried by the input.
	discoveryURL := base.ResolveReference(&url.URL{Path: WellKnownPath}).String()

	emit(StageDiscovery, discoveryURL, statusAttempting, nil)
	var discovery discoveryDocument
	status, err := d.fetchJSON(ctx, discoveryURL, &discovery)
	if err != nil {
		emit(StageDiscovery, discoveryURL, statusError, errDetails(status, err))
		return PlatformUnknown, stageErr(StageDiscovery, err)
	}
	emit(StageDiscovery, discoveryURL, statusSuccess, nil)

	href, matched := nodeinfoHref(discovery)
	if !matched || href == "" {
		err := errors.New("no usable nodeinfo link in discovery document")
		emit(StageLinks, discoveryURL, statusError, &LogDetails{Type: "Shape", Message: err.Error()})
		return PlatformUnknown, stageErr(StageLinks, err)
	}
	emit(StageLinks, href, statusSuccess, nil)

	emit(StageNodeinfo, href, statusAttempting, nil)
	var node nodeinfoDocument
	status, err = d.fetchJSON(ctx, href, &node)
	if err != nil {
		emit(StageNodeinfo, href, statusError, errDetails(status, err))
		return PlatformUnknown, stageErr(StageNodeinfo, err)
	}
	emit(StageNodeinfo, href, statusSuccess, nil)

	name := stringField(node.Software.Name)
	platform := ClassifySoftware(name)
	if platform == PlatformUnknown {
		emit(StageClassify, href, statusSuccess, &LogDetails{
			Type:    "Classification",
			Message: fmt.Sprintf("unrecognized software name %q", name),
		})
		d.logger.Debug("Nodeinfo software not recognized",
			zap.String("identifier", identifier),
			zap.String("softwareName", name))
		return PlatformUnknown, nil
	}
	emit(StageClassify, href, statusSuccess, nil)
	d.logger.Debug("Platform detected",
		zap.String("identifier", identifier),
		zap.String("platform", string(platform)))
	return platform, nil
}

// fetchJSON issues a GET against rawURL and decodes the 200 response body
// into out. The headers-received phase and the body-read phase each get a
// fresh budget of d.timeout; there is no combined deadline beyond what the
// caller's context imposes. Returns the HTTP status code when one was
// received.
func (d *Detector) fetchJSON(ctx context.Context, rawURL string, out any) (int, error) {
	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	// Headers phase budget; reset after the headers arrive so the body
	// read gets its own independent budget.
	timer := time.AfterFunc(d.timeout, func() { cancel(errPhaseTimeout) })
	defer timer.Stop()

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(context.Cause(reqCtx), errPhaseTimeout) {
			return 0, fmt.Errorf("response headers not received within %s: %w", d.timeout, errPhaseTimeout)
		}
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.CopyN(io.Discard, resp.Body, 1024)
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	timer.Reset(d.timeout)
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if errors.Is(context.Cause(reqCtx), errPhaseTimeout) {
			return resp.StatusCode, fmt.Errorf("response body not received within %s: %w", d.timeout, errPhaseTimeout)
		}
		return resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("parse body: %w", err)
	}
	return resp.StatusCode, nil
}

// errDetails converts a fetch failure into log details, classifying the
// failure the way the progress log distinguishes them.
func errDetails(status int, err error) *LogDetails {
	details := &LogDetails{Message: err.Error()}
	var urlErr *url.Error
	switch {
	case status != 0 && status != http.StatusOK:
		details.Type = "HTTP"
		code := status
		details.StatusCode = &code
	case errors.Is(err, errPhaseTimeout):
		details.Type = "Timeout"
	case errors.As(err, &urlErr):
		details.Type = "Connection"
	default:
		details.Type = "Parse"
	}
	return details
}
