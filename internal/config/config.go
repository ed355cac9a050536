package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Config captures the defaults applied when the corresponding command line
// flags are not given.
type Config struct {
	// Database is the path of the SQLite index database.
	Database string `yaml:"database"`

	// LogLevel selects the logger verbosity: debug, info or none.
	LogLevel string `yaml:"log_level"`

	// Capacity is the default volume capacity for packing runs, in a
	// human-readable form such as "4.7GB" or "700M".
	Capacity string `yaml:"capacity"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Database: filepath.Join(home, ".yuunagi", "index.db"),
		LogLevel: "info",
		Capacity: "4.7GB",
	}
}

// Load reads the configuration file from $YUUNAGI_CONFIG, or
// ~/.yuunagi.yaml when unset. A missing file is not an error; the defaults
// are returned. A present but unparsable file is an error, since silently
// ignoring it would make the tool operate on the wrong database.
func Load() (Config, error) {
	cfg := Default()

	path := os.Getenv("YUUNAGI_CONFIG")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, ".yuunagi.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return cfg, nil
}
