// Package config provides configuration types for policygate.
package config

// Config is the top-level configuration for the policy evaluation engine.
type Config struct {
	// Log configures structured logging.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Store selects where raw policy documents live.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Cache configures the LRU+TTL policy cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Audit configures where decision records are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// PolicyDir points at a directory of YAML policy documents loaded into
	// the store at startup. Optional; when empty, only stored and seeded
	// policies apply.
	PolicyDir string `yaml:"policy_dir" mapstructure:"policy_dir"`

	// SeedDefaults installs the built-in global policy when the store has
	// no global policy. Defaults to true.
	SeedDefaults *bool `yaml:"seed_defaults" mapstructure:"seed_defaults"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	// Defaults to "info". DevMode=true overrides to "debug".
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// StoreConfig selects the policy store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite". Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`

	// SQLitePath is the database file path when Backend is "sqlite".
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path" validate:"required_if=Backend sqlite"`
}

// CacheConfig configures the policy cache.
type CacheConfig struct {
	// MaxSize bounds the number of cached policies. Defaults to 1000.
	MaxSize int `yaml:"max_size" mapstructure:"max_size" validate:"omitempty,min=1"`

	// TTLEnabled turns per-entry expiry on. Defaults to false: cached
	// policies live until evicted or invalidated.
	TTLEnabled bool `yaml:"ttl_enabled" mapstructure:"ttl_enabled"`

	// TTL is the default per-entry time-to-live (e.g. "5m").
	// Only honored when TTLEnabled. Defaults to "5m".
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`

	// PruneInterval is how often the expired-entry sweep runs (e.g. "1m").
	// Empty disables the sweep; lazy expiry on Get still applies.
	PruneInterval string `yaml:"prune_interval" mapstructure:"prune_interval" validate:"omitempty,duration"`
}

// AuditConfig configures decision record output.
type AuditConfig struct {
	// Output specifies where decision records are written.
	// Valid values: "stdout" or "file:///absolute/path/to/audit.log".
	// Defaults to "stdout".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// BufferSize is the number of recent records kept in memory for
	// status queries. Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// ShouldSeedDefaults reports whether the built-in global policy is installed
// on an empty store (default true).
func (c *Config) ShouldSeedDefaults() bool {
	return c.SeedDefaults == nil || *c.SeedDefaults
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DevMode {
		c.Log.Level = "debug"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}

	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "5m"
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}
}
