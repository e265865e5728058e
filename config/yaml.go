package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var _ IConfig = (*YamlConfig)(nil)

// YamlConfig implements IConfig with YAML file-based storage. The file is
// re-read on fsnotify write events, so edits take effect without a restart.
type YamlConfig struct {
	mu         sync.RWMutex
	configPath string
	logger     *zap.Logger
	watcher    *fsnotify.Watcher
	watchDone  chan struct{}

	serverAddress     string
	serverName        string
	serverVersion     string
	logLevel          string
	detectHandlerPath string
	detectTimeout     time.Duration

	sslEnabled      bool
	sslMode         string
	sslCertFile     string
	sslKeyFile      string
	sslAcmeDomains  []string
	sslAcmeEmail    string
	sslAcmeCacheDir string
}

// YAML configuration structure matching the required format
type yamlConfig struct {
	Server struct {
		Address         string `yaml:"address"`
		Name            string `yaml:"name"`
		Version         string `yaml:"version"`
		LogLevel        string `yaml:"log_level"`
		DetectHandler   string `yaml:"detect_handler"`
		DetectTimeoutMs int    `yaml:"detect_timeout_ms"`
		SSL             struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			CertFile     string   `yaml:"cert_file"`
			KeyFile      string   `yaml:"key_file"`
			AcmeDomains  []string `yaml:"acme_domains"`
			AcmeEmail    string   `yaml:"acme_email"`
			AcmeCacheDir string   `yaml:"acme_cache_dir"`
		} `yaml:"ssl"`
	} `yaml:"server"`
}

// NewYamlConfig creates a new YAML-based configuration and starts watching
// the file for changes.
func NewYamlConfig(configPath string, logger *zap.Logger) (*YamlConfig, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	config := &YamlConfig{
		configPath: configPath,
		logger:     logger,
		sslMode:    "manual",
	}

	if err := config.Update(); err != nil {
		return nil, err
	}
	config.startWatcher()
	return config, nil
}

// Update reloads configuration from the YAML file.
func (c *YamlConfig) Update() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("Updating configuration from YAML file", zap.String("path", c.configPath))

	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.logger.Error("Failed to read config file", zap.Error(err))
		return err
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		c.logger.Error("Failed to parse YAML", zap.Error(err))
		return err
	}

	c.serverAddress = yamlCfg.Server.Address
	if c.serverAddress == "" {
		c.serverAddress = DefaultListenAddr
	}
	c.serverName = yamlCfg.Server.Name
	c.serverVersion = yamlCfg.Server.Version
	c.logLevel = yamlCfg.Server.LogLevel
	c.detectHandlerPath = yamlCfg.Server.DetectHandler
	if c.detectHandlerPath == "" {
		c.detectHandlerPath = DefaultDetectHandlerPath
	}
	c.detectTimeout = time.Duration(yamlCfg.Server.DetectTimeoutMs) * time.Millisecond
	if c.detectTimeout <= 0 {
		c.detectTimeout = DefaultDetectTimeout
	}

	c.sslEnabled = yamlCfg.Server.SSL.Enabled
	c.sslMode = strings.ToLower(yamlCfg.Server.SSL.Mode)
	if c.sslMode != "acme" {
		c.sslMode = "manual"
	}
	c.sslCertFile = yamlCfg.Server.SSL.CertFile
	c.sslKeyFile = yamlCfg.Server.SSL.KeyFile
	c.sslAcmeDomains = yamlCfg.Server.SSL.AcmeDomains
	c.sslAcmeEmail = yamlCfg.Server.SSL.AcmeEmail
	c.sslAcmeCacheDir = yamlCfg.Server.SSL.AcmeCacheDir
	if c.sslAcmeCacheDir == "" {
		c.sslAcmeCacheDir = "./.autocert-cache"
	}

	return nil
}

// startWatcher reloads the config when the file changes. Watching the parent
// directory instead of the file itself survives editors that replace the
// file on save.
func (c *YamlConfig) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Warn("Failed to create config watcher, hot reload disabled", zap.Error(err))
		return
	}
	if err := watcher.Add(filepath.Dir(c.configPath)); err != nil {
		c.logger.Warn("Failed to watch config directory, hot reload disabled", zap.Error(err))
		_ = watcher.Close()
		return
	}

	c.watcher = watcher
	c.watchDone = make(chan struct{})

	go func() {
		defer close(c.watchDone)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(c.configPath) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				c.logger.Info("Config file changed, reloading", zap.String("path", c.configPath))
				if err := c.Update(); err != nil {
					c.logger.Error("Failed to reload config, keeping previous values", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Error("Config watcher error", zap.Error(err))
			}
		}
	}()
}

// Close stops the file watcher.
func (c *YamlConfig) Close() error {
	if c.watcher != nil {
		err := c.watcher.Close()
		<-c.watchDone
		c.watcher = nil
		return err
	}
	return nil
}

func (c *YamlConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverAddress, nil
}

func (c *YamlConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName, nil
}

func (c *YamlConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion, nil
}

func (c *YamlConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logLevel, nil
}

func (c *YamlConfig) DetectHandlerPath() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detectHandlerPath, nil
}

func (c *YamlConfig) DetectTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detectTimeout, nil
}

func (c *YamlConfig) SSLEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslEnabled, nil
}

func (c *YamlConfig) SSLMode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslMode, nil
}

func (c *YamlConfig) SSLCertFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslCertFile, nil
}

func (c *YamlConfig) SSLKeyFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslKeyFile, nil
}

func (c *YamlConfig) SSLAcmeDomains() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeDomains, nil
}

func (c *YamlConfig) SSLAcmeEmail() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeEmail, nil
}

func (c *YamlConfig) SSLAcmeCacheDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeCacheDir, nil
}

// Status reports whether the config file is still readable.
func (c *YamlConfig) Status(_ context.Context) error {
	_, err := os.Stat(c.configPath)
	return err
}
