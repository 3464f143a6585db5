package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesConfig is the request classification ruleset. Rules are evaluated in
// a fixed priority order: API hosts/paths, then image extensions, then the
// static asset manifest, then everything else.
type RulesConfig struct {
	APIPathPrefixes   []string `yaml:"api_path_prefixes"`
	APIHostSubstrings []string `yaml:"api_host_substrings"`
	ImageExtensions   []string `yaml:"image_extensions"`
	StaticAssets      []string `yaml:"static_assets"`
}

// Config is the gateway configuration, loadable from a YAML file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// Origin is the base URL used to pre-populate the static asset cache at
	// install time.
	Origin string `yaml:"origin"`
	// CacheVersion names the current cache namespaces. Bumping it and
	// activating purges every previous namespace.
	CacheVersion int         `yaml:"cache_version"`
	Rules        RulesConfig `yaml:"rules"`
}

// DefaultConfig returns the gateway configuration used when no file is
// provided.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":7322",
		CacheVersion: 1,
		Rules: RulesConfig{
			APIPathPrefixes:   []string{"/api/"},
			APIHostSubstrings: []string{"firestore", "firebase"},
			ImageExtensions:   []string{"png", "jpg", "jpeg", "gif", "svg", "webp"},
			StaticAssets: []string{
				"/",
				"/manifest.json",
				"/icon-192x192.png",
				"/icon-512x512.png",
				"/sounds/notification.mp3",
				"/sounds/timer-complete.mp3",
			},
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults. A missing
// path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.CacheVersion < 1 {
		return fmt.Errorf("cache version must be >= 1")
	}

	return nil
}
