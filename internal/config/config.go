// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

// Package config loads the sluice configuration: compiled-in defaults,
// overlaid by an optional YAML file, overlaid by flags changed on the
// command line. The file is schema-validated before it is merged.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/sluice-dl/sluice/internal/xdg"
)

// FileName is the config file name looked up in the sluice config dirs.
const FileName = "config.yaml"

// Config is the root configuration.
type Config struct {
	LogFormat string        `koanf:"log_format" json:"log_format,omitempty" jsonschema:"title=Log format,enum=json,enum=text"`
	Format    string        `koanf:"format" json:"format,omitempty" jsonschema:"title=Default format selector"`
	Plugins   PluginsConfig `koanf:"plugins" json:"plugins,omitempty"`
}

// PluginsConfig tunes plugin discovery and collection.
type PluginsConfig struct {
	Dirs    []string `koanf:"dirs" json:"dirs,omitempty" jsonschema:"title=Extra plugin search roots"`
	Only    []string `koanf:"only" json:"only,omitempty" jsonschema:"title=Class allowlist globs"`
	Exclude []string `koanf:"exclude" json:"exclude,omitempty" jsonschema:"title=Class denylist globs"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		LogFormat: "json",
		Format:    "best",
	}
}

// Validate checks constraints the schema cannot cover, since flags bypass
// file validation.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.In("config").
			With("log_format", c.LogFormat).
			Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	return nil
}

// Load builds the effective configuration. path names an explicit config
// file and must exist when non-empty; otherwise the first config.yaml found
// in the sluice config dirs is used, and none existing is fine. flags may be
// nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := Default()
	seed := map[string]any{
		"log_format":      defaults.LogFormat,
		"format":          defaults.Format,
		"plugins.dirs":    defaults.Plugins.Dirs,
		"plugins.only":    defaults.Plugins.Only,
		"plugins.exclude": defaults.Plugins.Exclude,
	}
	for key, val := range seed {
		if err := k.Set(key, val); err != nil {
			return nil, oops.In("config").With("key", key).Wrapf(err, "seeding defaults")
		}
	}

	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		if err := mergeFile(k, path, explicit); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		p := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, oops.In("config").Wrapf(err, "merging command-line flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Wrapf(err, "unmarshaling configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile validates the YAML file against the config schema and merges it.
// A missing file is an error only when the path was given explicitly. An
// empty file contributes nothing.
func mergeFile(k *koanf.Koanf, path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return oops.In("config").With("path", path).Wrapf(err, "reading config file")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := Validate(raw); err != nil {
		return oops.In("config").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.In("config").With("path", path).Wrapf(err, "merging config file")
	}
	return nil
}

// findConfigFile returns the first config.yaml under the sluice config
// dirs, or "".
func findConfigFile() string {
	dirs := append(xdg.ConfigDirs(), xdg.SystemConfigDirs()...)
	for _, dir := range dirs {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// flagKey maps a command-line flag name to its config key. Plugin flags live
// under the plugins table; the rest translate kebab-case to snake_case.
func flagKey(name string) string {
	switch name {
	case "plugin-dir":
		return "plugins.dirs"
	case "only":
		return "plugins.only"
	case "exclude":
		return "plugins.exclude"
	default:
		return strings.ReplaceAll(name, "-", "_")
	}
}
