package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader reads a YAML configuration file into a validated Config, grounded
// on a koanf-based loader but trimmed to the single provider ragforge
// actually needs: a local file. The configuration surface (§6) is a
// static options object supplied at process startup, not a remote config
// store, so consul/etcd/zookeeper providers are dropped (see DESIGN.md).
type Loader struct {
	koanf *koanf.Koanf
	path  string
}

// NewLoader constructs a Loader for the YAML file at path.
func NewLoader(path string) (*Loader, error) {
	if path == "" {
		return nil, fmt.Errorf("config: file path is required")
	}
	return &Loader{koanf: koanf.New("."), path: path}, nil
}

// Load reads and strictly validates the configuration file, rejecting
// unknown keys before returning a fully defaulted Config.
func (l *Loader) Load() (*Config, error) {
	if err := l.koanf.Load(file.Provider(l.path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", l.path, err)
	}

	strictResult, err := ValidateConfigStructure(l.koanf.Raw())
	if err != nil {
		return nil, fmt.Errorf("config: strict validation failed: %w", err)
	}
	if !strictResult.Valid() {
		return nil, fmt.Errorf("config: invalid configuration:\n%s", strictResult.FormatErrors())
	}

	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// LoadConfig is a convenience wrapper around NewLoader(path).Load().
func LoadConfig(path string) (*Config, error) {
	loader, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return loader.Load()
}
