package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "VOICECAL_"
	envConfig = "VOICECAL_CONFIG"
)

var listKeys = map[string]bool{
	"placeholders":    true,
	"allowed_origins": true,
}

// Load builds a Config by layering, low to high:
//  1. defaults (New)
//  2. a YAML file if VOICECAL_CONFIG is set
//  3. env vars prefixed VOICECAL_, e.g. VOICECAL_OPENAI_API_KEY
//
// List values in env are comma separated.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if listKeys[key] {
			var items []string
			for _, v := range strings.Split(value, ",") {
				if v = strings.TrimSpace(v); v != "" {
					items = append(items, v)
				}
			}
			return key, items
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	cfg := New()
	// Lists replace the defaults instead of merging into them.
	if k.Exists("placeholders") {
		cfg.Placeholders = nil
	}
	if k.Exists("allowed_origins") {
		cfg.AllowedOrigins = nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
