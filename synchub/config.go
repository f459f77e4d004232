// CLAUDE:SUMMARY Configuration struct and defaults for the hub — DB path, JWT secret, webhook, body caps.
package synchub

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the hub configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8443".
	Addr string `json:"addr" yaml:"addr"`

	DBPath string `json:"db_path" yaml:"db_path"`

	// JWTSecret signs session tokens. Must be at least guard.MinSecretLen
	// bytes.
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`

	// SessionTTL is how long issued tokens live. Default: 24h
	SessionTTL time.Duration `json:"session_ttl" yaml:"session_ttl"`

	// SnapshotPath is the SQLite file served by /v1/snapshot for cache
	// mirroring. Empty disables the endpoint.
	SnapshotPath string `json:"snapshot_path" yaml:"snapshot_path"`

	// WebhookURL receives an HMAC-signed POST whenever a mark set takes a
	// new revision. Empty disables notifications.
	WebhookURL    string `json:"webhook_url" yaml:"webhook_url"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`

	// MaxBody caps request bodies in bytes. Default: 1 MiB
	MaxBody int64 `json:"max_body" yaml:"max_body"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8443"
	}
	if c.DBPath == "" {
		c.DBPath = "synchub.db"
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.MaxBody == 0 {
		c.MaxBody = 1 << 20
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
