package cyql

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the on-disk .cyql.yaml configuration, discovered by
// walking up from the current working directory.
type EngineConfig struct {
	// Database is the SQLite file path store.Open opens.
	Database string `yaml:"database"`

	// DefaultMaxHops records the upper bound for variable-length paths
	// that don't specify their own maximum. Defaults to 10. The translator
	// does not read this field: it always applies a fixed bound of 10.
	DefaultMaxHops int `yaml:"default_max_hops,omitempty"`

	// LogLevel is one of zapcore's level names ("debug", "info", "warn",
	// "error"); empty defaults to "info".
	LogLevel string `yaml:"log_level,omitempty"`
}

// DefaultMaxHops is used when a config omits DefaultMaxHops or sets it
// to zero.
const DefaultMaxHops = 10

// DefaultConfigNames are the filenames LoadConfig/FindConfig search for.
var DefaultConfigNames = []string{".cyql.yaml", ".cyql.yml", "cyql.yaml", "cyql.yml"}

// LoadConfig finds and loads the nearest config file walking up from dir.
func LoadConfig(dir string) (*EngineConfig, error) {
	path, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}
	return LoadConfigFile(path)
}

// FindConfig searches for a config file starting from dir and walking up
// to the filesystem root.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for d := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(d, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(d)
		if parent == d {
			return "", ErrConfigNotFound
		}
		d = parent
	}
}

// LoadConfigFile loads a config from a specific path and fills in
// defaults for any zero-valued fields.
func LoadConfigFile(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.DefaultMaxHops == 0 {
		cfg.DefaultMaxHops = DefaultMaxHops
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}
