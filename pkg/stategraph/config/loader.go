package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load builds a Config from defaults, an optional file and the environment,
// then validates it. An empty path skips the file.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := decode(raw, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromFile loads configuration from a file over the defaults, auto-detecting
// format by extension. Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	raw, err := readFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromYAML parses YAML data over the defaults.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	cfg := Default()
	if err := decode(m, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromJSON parses JSON data over the defaults.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	cfg := Default()
	if err := decode(m, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no arguments it loads ".env".
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var m map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// decode applies raw onto cfg. Unknown keys are rejected.
func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}
