package config

import (
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
)

// FileName is the project configuration file looked up by Load.
const FileName = "mosaic.yaml"

var (
	envRefPattern = regexp.MustCompile(`\$\{env\.([^}]+)\}`)
	varRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// Load loads mosaic.yaml from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads, interpolates, defaults and validates the config at path.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, mosaicerrors.Wrap(mosaicerrors.CodeIOFailure, "failed to read config file", err)
	}
	return Parse(content)
}

// Parse decodes YAML config content.
func Parse(content []byte) (*Config, error) {
	content = []byte(interpolateEnv(string(content)))

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, mosaicerrors.Wrap(mosaicerrors.CodeConfigInvalid, "failed to parse config", err).
			WithSuggestion("check mosaic.yaml for YAML syntax errors")
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write encodes cfg as YAML to path.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return mosaicerrors.Wrap(mosaicerrors.CodeConfigInvalid, "failed to encode config", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return mosaicerrors.Wrap(mosaicerrors.CodeIOFailure, "failed to create config directory", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return mosaicerrors.Wrap(mosaicerrors.CodeIOFailure, "failed to write config", err)
	}
	return nil
}

// interpolateEnv replaces ${env.VAR} and ${VAR} with environment values.
// Unset variables are left as written.
func interpolateEnv(content string) string {
	content = envRefPattern.ReplaceAllStringFunc(content, func(match string) string {
		if val := os.Getenv(envRefPattern.FindStringSubmatch(match)[1]); val != "" {
			return val
		}
		return match
	})

	return varRefPattern.ReplaceAllStringFunc(content, func(match string) string {
		if val := os.Getenv(varRefPattern.FindStringSubmatch(match)[1]); val != "" {
			return val
		}
		return match
	})
}

// Default returns the configuration used when no mosaic.yaml exists.
func Default() *Config {
	cfg := &Config{Name: "mosaic", Version: "1.0"}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1.0"
	}
	if cfg.Store.Capacity == 0 {
		cfg.Store.Capacity = 100
	}
	if cfg.Snapshot.Driver == "" {
		cfg.Snapshot.Driver = "file"
	}
	if cfg.Snapshot.Path == "" {
		switch cfg.Snapshot.Driver {
		case "sqlite", "sqlite-pure":
			cfg.Snapshot.Path = ".mosaic/mosaic.db"
		default:
			cfg.Snapshot.Path = ".mosaic/snapshots"
		}
	}
	if cfg.Snapshot.Name == "" {
		cfg.Snapshot.Name = "default"
	}
	if cfg.Snapshot.Format == "" {
		cfg.Snapshot.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
