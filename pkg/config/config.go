package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration options for cppopt.
type Config struct {
	// Optimization settings
	Optimize OptimizeConfig `koanf:"optimize"`

	// Include inlining settings
	Inline InlineConfig `koanf:"inline"`

	// Cache settings
	Cache CacheConfig `koanf:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output"`
}

// OptimizeConfig controls the dead-code elimination pass.
type OptimizeConfig struct {
	// EntryPoints are the root symbols reachability starts from.
	EntryPoints []string `koanf:"entry_points"`

	// KeepSymbols are always retained regardless of use.
	KeepSymbols []string `koanf:"keep_symbols"`

	// KeepMacros are macro names never pruned.
	KeepMacros []string `koanf:"keep_macros"`

	// Defines are NAME or NAME=VALUE preprocessor definitions.
	Defines []string `koanf:"defines"`
}

// InlineConfig controls flattening of quoted includes before analysis.
type InlineConfig struct {
	Enabled     bool     `koanf:"enabled"`
	IncludeDirs []string `koanf:"include_dirs"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
	TTL     int    `koanf:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format"` // text, json, markdown, toon
	Color   bool   `koanf:"color"`
	Verbose bool   `koanf:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Optimize: OptimizeConfig{
			EntryPoints: []string{"main"},
		},
		Inline: InlineConfig{
			Enabled: false,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".cppopt/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format:  "text",
			Color:   true,
			Verbose: false,
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault tries to load config from standard locations or returns
// defaults.
func LoadOrDefault() *Config {
	configNames := []string{
		"cppopt.toml",
		"cppopt.yaml",
		"cppopt.yml",
		"cppopt.json",
		".cppopt.toml",
		".cppopt.yaml",
		".cppopt.yml",
		".cppopt.json",
	}

	searchDirs := []string{".", ".cppopt"}

	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := Load(path)
				if err == nil {
					return cfg
				}
			}
		}
	}

	return DefaultConfig()
}

// ParseDefines splits NAME or NAME=VALUE strings into a definition map.
func ParseDefines(defs []string) map[string]string {
	m := make(map[string]string, len(defs))
	for _, d := range defs {
		if i := strings.IndexByte(d, '='); i >= 0 {
			m[d[:i]] = d[i+1:]
		} else if d != "" {
			// -DNAME means -DNAME=1, same as the compiler drivers.
			m[d] = "1"
		}
	}
	return m
}
