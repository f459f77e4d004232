// CLAUDE:SUMMARY Engine configuration: tiers, hub account, tier policy, pass timing, YAML loader.
package engine

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bakharlabs/blurshield/restore"
)

// Config holds all engine configuration.
type Config struct {
	// CacheDB is the local persist cache database.
	CacheDB string `yaml:"cache_db"`
	// RegistryDB is the per-origin activation registry database.
	RegistryDB string `yaml:"registry_db"`
	// ExtDir is the extension-store directory. Empty disables the tier.
	ExtDir string `yaml:"ext_dir"`
	// ExtQuota is the per-identity byte cap of the extension store.
	ExtQuota int `yaml:"ext_quota"`

	Hub  HubConfig  `yaml:"hub"`
	Tier TierConfig `yaml:"tier"`

	// SecondPassDelay is the fixed interval between the immediate
	// restoration pass and the retry pass.
	SecondPassDelay time.Duration `yaml:"second_pass_delay"`
	// SaveDebounce is the gateway's shadow-to-outer-tiers flush delay.
	SaveDebounce time.Duration `yaml:"save_debounce"`
	// WatchInterval is the external-change polling frequency.
	WatchInterval time.Duration `yaml:"watch_interval"`

	// MaxRegionWidth/Height bound drawn regions. 0 means unbounded.
	MaxRegionWidth  float64 `yaml:"max_region_width"`
	MaxRegionHeight float64 `yaml:"max_region_height"`

	// AllowedOrigins gates the bridge websocket upgrade.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HubConfig points the remote tier at a synchub instance. An empty token
// means not signed in; the engine runs on the local tiers alone.
type HubConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	// WarmCache pulls a verified snapshot of the account's mark database
	// at startup and swaps it in as the local cache.
	WarmCache bool `yaml:"warm_cache"`
	// MirrorPath is where the warmed snapshot lands.
	MirrorPath string `yaml:"mirror_path"`
}

// TierConfig selects the account tier and optionally overrides the
// capability expressions.
type TierConfig struct {
	Name       string `yaml:"name"`
	CreateExpr string `yaml:"create_expr"`
	AddExpr    string `yaml:"add_expr"`
}

func (c *Config) defaults() {
	if c.CacheDB == "" {
		c.CacheDB = "blurshield.db"
	}
	if c.RegistryDB == "" {
		c.RegistryDB = "docregistry.db"
	}
	if c.SecondPassDelay <= 0 {
		c.SecondPassDelay = restore.DefaultSecondPassDelay
	}
	if c.SaveDebounce <= 0 {
		c.SaveDebounce = 2 * time.Second
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = time.Second
	}
	if c.Hub.MirrorPath == "" {
		c.Hub.MirrorPath = c.CacheDB
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
