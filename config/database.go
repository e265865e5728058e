package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var _ IConfig = (*DatabaseConfig)(nil)

// DatabaseConfig implements IConfig with PostgreSQL-based storage. Settings
// live in a "Settings" table as key/JSON-value rows, so operators can change
// them without redeploying; every read goes to the database.
type DatabaseConfig struct {
	logger             *zap.Logger
	dbConnectionString string
}

// NewDatabaseConfig creates a new DatabaseConfig instance.
func NewDatabaseConfig(dbConnectionString string, logger *zap.Logger) (*DatabaseConfig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseConfig{
		dbConnectionString: dbConnectionString,
		logger:             logger,
	}, nil
}

// Close closes any resources held by the config.
func (c *DatabaseConfig) Close() error {
	return nil
}

// --- IConfig implementation ---

func (c *DatabaseConfig) ListenAddr() (string, error) {
	return c.getSettingString("listen_address", DefaultListenAddr)
}

func (c *DatabaseConfig) ServerName() (string, error) {
	return c.getSettingString("server_name", "fedidetect")
}

func (c *DatabaseConfig) ServerVersion() (string, error) {
	return c.getSettingString("server_version", "")
}

func (c *DatabaseConfig) LogLevel() (string, error) {
	return c.getSettingString("log_level", "info")
}

func (c *DatabaseConfig) DetectHandlerPath() (string, error) {
	return c.getSettingString("detect_handler", DefaultDetectHandlerPath)
}

func (c *DatabaseConfig) DetectTimeout() (time.Duration, error) {
	rawValue, err := c.getSettingJSON("detect_timeout_ms")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DefaultDetectTimeout, nil
		}
		return DefaultDetectTimeout, err
	}
	ms, ok := rawValue.(float64)
	if !ok || ms <= 0 {
		return DefaultDetectTimeout, fmt.Errorf("invalid detect_timeout_ms value: %v", rawValue)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (c *DatabaseConfig) SSLEnabled() (bool, error) {
	rawValue, err := c.getSettingJSON("ssl_enabled")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	enabled, ok := rawValue.(bool)
	if !ok {
		return false, fmt.Errorf("invalid ssl_enabled value: %v", rawValue)
	}
	return enabled, nil
}

func (c *DatabaseConfig) SSLMode() (string, error) {
	return c.getSettingString("ssl_mode", "manual")
}

func (c *DatabaseConfig) SSLCertFile() (string, error) {
	return c.getSettingString("ssl_cert_file", "")
}

func (c *DatabaseConfig) SSLKeyFile() (string, error) {
	return c.getSettingString("ssl_key_file", "")
}

func (c *DatabaseConfig) SSLAcmeDomains() ([]string, error) {
	rawValue, err := c.getSettingJSON("ssl_acme_domains")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rawList, ok := rawValue.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid ssl_acme_domains value: %v", rawValue)
	}
	domains := make([]string, 0, len(rawList))
	for _, v := range rawList {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("invalid domain entry: %v", v)
		}
		domains = append(domains, s)
	}
	return domains, nil
}

func (c *DatabaseConfig) SSLAcmeEmail() (string, error) {
	return c.getSettingString("ssl_acme_email", "")
}

func (c *DatabaseConfig) SSLAcmeCacheDir() (string, error) {
	return c.getSettingString("ssl_acme_cache_dir", "./.autocert-cache")
}

// Status pings the database.
func (c *DatabaseConfig) Status(ctx context.Context) error {
	db, err := sql.Open("postgres", c.dbConnectionString)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	return db.PingContext(ctx)
}

// --- Settings accessors ---

func (c *DatabaseConfig) getSettingJSON(key string) (any, error) {
	db, err := sql.Open("postgres", c.dbConnectionString)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	query := `SELECT "value" FROM "Settings" WHERE "key" = $1 LIMIT 1`
	var raw []byte
	err = db.QueryRow(query, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query setting %q: %w", key, err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("parse setting %q: %w", key, err)
	}
	return value, nil
}

func (c *DatabaseConfig) getSettingString(key, defaultValue string) (string, error) {
	rawValue, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	s, ok := rawValue.(string)
	if !ok {
		return defaultValue, fmt.Errorf("setting %q is not a string: %v", key, rawValue)
	}
	return s, nil
}
