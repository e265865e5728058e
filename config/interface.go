package config

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a setting does not exist in the backing store.
var ErrNotFound = errors.New("setting not found")

// Defaults applied by every implementation when the backing store has no
// value.
const (
	DefaultListenAddr        = ":8080"
	DefaultDetectHandlerPath = "/detect"
	DefaultDetectTimeout     = 5000 * time.Millisecond
)

// IConfig is the configuration surface consumed by the detection service.
type IConfig interface {
	// Core server settings
	ListenAddr() (string, error)
	ServerName() (string, error)
	ServerVersion() (string, error)
	LogLevel() (string, error)
	DetectHandlerPath() (string, error)
	DetectTimeout() (time.Duration, error)

	// SSL settings
	SSLEnabled() (bool, error)
	SSLMode() (string, error)      // "manual" or "acme"
	SSLCertFile() (string, error)  // Path to certificate file (manual mode)
	SSLKeyFile() (string, error)   // Path to private key file (manual mode)
	SSLAcmeDomains() ([]string, error)
	SSLAcmeEmail() (string, error)
	SSLAcmeCacheDir() (string, error)

	// Status reports whether the backing store is reachable.
	Status(ctx context.Context) error
	Close() error
}
