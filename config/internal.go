package config

import (
	"context"
	"time"
)

var _ IConfig = (*InternalConfig)(nil)

// InternalConfig implements IConfig with in-memory values. Intended for
// tests and for embedding the service with hardcoded settings.
type InternalConfig struct {
	ServerAddress          string
	ServerNameValue        string
	ServerVersionValue     string
	LogLevelValue          string
	DetectHandlerPathValue string
	DetectTimeoutValue     time.Duration

	SSLEnabledValue      bool
	SSLModeValue         string
	SSLCertFileValue     string
	SSLKeyFileValue      string
	SSLAcmeDomainsValue  []string
	SSLAcmeEmailValue    string
	SSLAcmeCacheDirValue string
}

// NewInternalConfig creates an InternalConfig with defaults.
func NewInternalConfig() *InternalConfig {
	return &InternalConfig{
		ServerAddress:          DefaultListenAddr,
		ServerNameValue:        "fedidetect",
		LogLevelValue:          "info",
		DetectHandlerPathValue: DefaultDetectHandlerPath,
		DetectTimeoutValue:     DefaultDetectTimeout,
		SSLModeValue:           "manual",
		SSLAcmeCacheDirValue:   "./.autocert-cache",
	}
}

func (c *InternalConfig) ListenAddr() (string, error)              { return c.ServerAddress, nil }
func (c *InternalConfig) ServerName() (string, error)              { return c.ServerNameValue, nil }
func (c *InternalConfig) ServerVersion() (string, error)           { return c.ServerVersionValue, nil }
func (c *InternalConfig) LogLevel() (string, error)                { return c.LogLevelValue, nil }
func (c *InternalConfig) DetectHandlerPath() (string, error)       { return c.DetectHandlerPathValue, nil }
func (c *InternalConfig) DetectTimeout() (time.Duration, error)    { return c.DetectTimeoutValue, nil }
func (c *InternalConfig) SSLEnabled() (bool, error)                { return c.SSLEnabledValue, nil }
func (c *InternalConfig) SSLMode() (string, error)                 { return c.SSLModeValue, nil }
func (c *InternalConfig) SSLCertFile() (string, error)             { return c.SSLCertFileValue, nil }
func (c *InternalConfig) SSLKeyFile() (string, error)              { return c.SSLKeyFileValue, nil }
func (c *InternalConfig) SSLAcmeDomains() ([]string, error)        { return c.SSLAcmeDomainsValue, nil }
func (c *InternalConfig) SSLAcmeEmail() (string, error)            { return c.SSLAcmeEmailValue, nil }
func (c *InternalConfig) SSLAcmeCacheDir() (string, error)         { return c.SSLAcmeCacheDirValue, nil }
func (c *InternalConfig) Status(_ context.Context) error           { return nil }
func (c *InternalConfig) Close() error                             { return nil }
