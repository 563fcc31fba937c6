// Package config loads querybridge settings from a YAML file, QUERYBRIDGE_
// environment variables and command-line flags.
//
// Precedence, highest first: flags > env vars > config file > defaults.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/queryrec"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "QUERYBRIDGE_"

// DefaultFiles are looked up in the working directory when no file is given.
var DefaultFiles = []string{"querybridge.yaml", "querybridge.yml"}

// ValidFormats are the CLI output formats.
var ValidFormats = []string{"text", "json"}

// Config holds every setting.
type Config struct {
	From         string `koanf:"from"`
	To           string `koanf:"to"`
	MaxDepth     int    `koanf:"max_depth"`
	Format       string `koanf:"format"`
	RecordFormat string `koanf:"record_format"`
	Parameterize bool   `koanf:"parameterize"`
	Workers      int    `koanf:"workers"`

	// File is the config file that was read, empty when none was.
	File string `koanf:"-"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		MaxDepth: qir.DefaultMaxDepth,
		Format:   "text",
		Workers:  4,
	}
}

// Load reads cfgFile (or a default file if present), the environment and
// the flags that were explicitly set. Flag names map to keys with dashes
// replaced by underscores.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	d := Default()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"max_depth":    d.MaxDepth,
		"format":       d.Format,
		"parameterize": d.Parameterize,
		"workers":      d.Workers,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns explicit, which must exist, or the first default
// file present.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	for _, name := range DefaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Validate checks that every set value is one the tools accept. Empty
// dialects are allowed; commands that need them check presence.
func (c *Config) Validate() error {
	for key, v := range map[string]string{"from": c.From, "to": c.To} {
		if v == "" {
			continue
		}
		if _, err := qir.ParseDialect(v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.RecordFormat != "" {
		if _, err := queryrec.ParseFormat(c.RecordFormat); err != nil {
			return fmt.Errorf("record_format: %w", err)
		}
	}
	if !slices.Contains(ValidFormats, c.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", c.Format, ValidFormats)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// Record returns the configured record format, empty when unset.
func (c *Config) Record() queryrec.Format {
	if c.RecordFormat == "" {
		return ""
	}
	f, _ := queryrec.ParseFormat(c.RecordFormat)
	return f
}
