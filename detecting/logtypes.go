package detecting

import "time"

// LogDetails holds specific error information for a detection stage.
type LogDetails struct {
	Type                string `json:"type,omitempty"` // "HTTP", "Timeout", "Connection", "Parse", "Shape", "Classification"
	Message             string `json:"message,omitempty"`
	StatusCode          *int   `json:"statusCode,omitempty"`          // Pointer to handle absence of status code
	ResponseBodyPreview string `json:"responseBodyPreview,omitempty"` // Max 1000 chars
}

// DetectionLogEntry represents a single entry in the detection progress log.
// StepID correlates the entries of one probe.
type DetectionLogEntry struct {
	StepID    string      `json:"stepId"`
	Timestamp time.Time   `json:"timestamp"`
	Stage     Stage       `json:"stage"`
	URL       string      `json:"url,omitempty"`
	Status    string      `json:"status"` // "attempting", "success", "error"
	Details   *LogDetails `json:"details,omitempty"`
}

const (
	statusAttempting = "attempting"
	statusSuccess    = "success"
	statusError      = "error"
)
