package extra

import (
	"encoding/json"
	"net/http"

	"github.com/fedidetect/fedidetect/config"
	"go.uber.org/zap"
)

// StatusResponse represents the response structure for the status endpoint
type StatusResponse struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Config  string `json:"config"`
}

// StatusHandler creates an HTTP handler for checking service status
func StatusHandler(cfg config.IConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handlerLogger := logger.With(zap.String("handler", "StatusHandler"))
		w.Header().Set("Content-Type", "application/json")

		// Always return 200 status code
		w.WriteHeader(http.StatusOK)

		response := StatusResponse{Config: "ok"}

		if name, err := cfg.ServerName(); err == nil {
			response.Name = name
		}
		if version, err := cfg.ServerVersion(); err == nil {
			response.Version = version
		}
		if err := cfg.Status(r.Context()); err != nil {
			handlerLogger.Error("Failed to get config status", zap.Error(err))
			response.Config = "error"
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			handlerLogger.Error("Failed to encode status response", zap.Error(err))
		}
	}
}
