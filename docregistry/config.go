// CLAUDE:SUMMARY Configuration struct and defaults for docregistry — DB path, default activation, degraded detection.
package docregistry

// Config holds the docregistry configuration.
type Config struct {
	DBPath string `json:"db_path" yaml:"db_path"`

	// DefaultExpr is the activation expression applied to origins without
	// a stored one. Empty means "always activate".
	DefaultExpr string `json:"default_expr" yaml:"default_expr"`

	// DegradedThreshold is the success rate below which an origin is
	// considered degraded. Default: 0.5
	DegradedThreshold float64 `json:"degraded_threshold" yaml:"degraded_threshold"`

	// MinPasses is how many restoration passes an origin needs before it
	// can be flagged degraded. Default: 5
	MinPasses int `json:"min_passes" yaml:"min_passes"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "docregistry.db"
	}
	if c.DegradedThreshold == 0 {
		c.DegradedThreshold = 0.5
	}
	if c.MinPasses == 0 {
		c.MinPasses = 5
	}
}
