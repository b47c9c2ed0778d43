// Package config provides configuration loading for policygate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for policygate.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("policygate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: POLICYGATE_CACHE_MAX_SIZE
	viper.SetEnvPrefix("POLICYGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a policygate config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".policygate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "policygate"))
		}
	} else {
		paths = append(paths, "/etc/policygate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for policygate.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "policygate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds config keys for environment variable overrides.
// Example: POLICYGATE_CACHE_MAX_SIZE overrides cache.max_size
func bindNestedEnvKeys() {
	_ = viper.BindEnv("log.level")

	_ = viper.BindEnv("store.backend")
	_ = viper.BindEnv("store.sqlite_path")

	_ = viper.BindEnv("cache.max_size")
	_ = viper.BindEnv("cache.ttl_enabled")
	_ = viper.BindEnv("cache.ttl")
	_ = viper.BindEnv("cache.prune_interval")

	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.buffer_size")

	_ = viper.BindEnv("policy_dir")
	_ = viper.BindEnv("seed_defaults")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
