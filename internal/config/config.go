// Package config loads the immutable runtime configuration: defaults first,
// then an optional YAML file, then SHOPREC_ environment variables, validated
// once at load time. The resulting struct is passed into every component
// constructor; nothing reads configuration ambiently.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// SHOPREC_RETENTION_DAYS=30. Double underscores nest keys.
const EnvPrefix = "SHOPREC_"

// Placement names used for per-placement algorithm defaults.
const (
	PlacementProduct  = "product"
	PlacementCart     = "cart"
	PlacementCheckout = "checkout"
	PlacementThankYou = "thank_you"
)

// Config is the full runtime configuration.
type Config struct {
	// DBPath locates the SQLite database file.
	DBPath string `koanf:"db_path" validate:"required"`

	// RetentionDays is the age beyond which interaction and tracking events
	// are purged. Purchases are kept forever regardless.
	RetentionDays int `koanf:"retention_days" validate:"min=1"`

	// ResultLimit is the default recommendation list length.
	ResultLimit int `koanf:"result_limit" validate:"min=1,max=50"`

	// Placements maps placement name to its default algorithm.
	Placements map[string]string `koanf:"placements" validate:"required"`

	// Tracking enable flags per actor class.
	TrackAnonymous bool `koanf:"track_anonymous"`
	TrackLoggedIn  bool `koanf:"track_logged_in"`

	// PrivacyCompliance disables tracking of anonymous visitors regardless
	// of TrackAnonymous.
	PrivacyCompliance bool `koanf:"privacy_compliance"`

	// Recommendation cache tuning. CacheSize 0 disables caching.
	CacheSize int           `koanf:"cache_size" validate:"min=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`

	// QueryTimeout bounds every recommendation computation.
	QueryTimeout time.Duration `koanf:"query_timeout" validate:"min=0"`

	Log LogConfig `koanf:"log"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// knownAlgorithms are the values allowed in Placements. Kept here rather
// than importing the engine so config stays a leaf package.
var knownAlgorithms = map[string]bool{
	"frequently_bought_together": true,
	"also_viewed":                true,
	"similar":                    true,
	"personalized":               true,
	"popular":                    true,
	"enhanced":                   true,
	"trending":                   true,
	"seasonal":                   true,
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DBPath:        "./shoprec.db",
		RetentionDays: 90,
		ResultLimit:   4,
		Placements: map[string]string{
			PlacementProduct:  "frequently_bought_together",
			PlacementCart:     "frequently_bought_together",
			PlacementCheckout: "popular",
			PlacementThankYou: "personalized",
		},
		TrackAnonymous:    true,
		TrackLoggedIn:     true,
		PrivacyCompliance: false,
		CacheSize:         256,
		CacheTTL:          5 * time.Minute,
		QueryTimeout:      3 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and SHOPREC_ environment variables, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and placement algorithm names.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for placement, alg := range c.Placements {
		if !knownAlgorithms[alg] {
			return fmt.Errorf("invalid configuration: placement %q uses unknown algorithm %q", placement, alg)
		}
	}
	return nil
}
