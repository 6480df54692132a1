package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.json"
	dbFileName     = "queue.db"

	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var ErrUnknownKey = errors.New("unknown config key")

// Config holds the queue settings persisted between runs.
// Durations are stored in seconds.
type Config struct {
	MaxRetries      int     `json:"max_retries" yaml:"max_retries"`
	BackoffBase     float64 `json:"backoff_base" yaml:"backoff_base"`
	WorkerTimeout   float64 `json:"worker_timeout" yaml:"worker_timeout"`
	PollInterval    float64 `json:"poll_interval" yaml:"poll_interval"`
	DataDir         string  `json:"data_dir" yaml:"data_dir"`
	StoreDriver     string  `json:"store_driver" yaml:"store_driver"`
	DSN             string  `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	SubmitRateLimit int     `json:"submit_rate_limit" yaml:"submit_rate_limit"`
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		MaxRetries:      3,
		BackoffBase:     2.0,
		WorkerTimeout:   300,
		PollInterval:    1,
		DataDir:         defaultDataDir(),
		StoreDriver:     DriverSQLite3,
		SubmitRateLimit: 60,
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".queuectl")
	}
	return filepath.Join(dir, "queuectl")
}

// DefaultPath returns the config file location used when none is given
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), configFileName)
}

// Load reads the config at path. A missing file yields the defaults.
// Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path through a temp file and rename so readers
// never observe a partial file.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BackoffBase < 0 || math.IsNaN(c.BackoffBase) {
		return fmt.Errorf("backoff_base must be >= 0, got %g", c.BackoffBase)
	}
	if c.WorkerTimeout <= 0 {
		return fmt.Errorf("worker_timeout must be > 0, got %g", c.WorkerTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0, got %g", c.PollInterval)
	}
	if c.SubmitRateLimit < 0 {
		return fmt.Errorf("submit_rate_limit must be >= 0, got %d", c.SubmitRateLimit)
	}
	switch c.StoreDriver {
	case DriverSQLite3, DriverSQLite:
	case DriverPostgres:
		if c.DSN == "" {
			return errors.New("dsn is required for the pgx store driver")
		}
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}
	return nil
}

// StoreDSN returns the connection string for the configured driver. SQLite
// drivers use a file in DataDir unless DSN overrides it.
func (c *Config) StoreDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return filepath.Join(c.DataDir, dbFileName)
}

type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

var fields = map[string]field{
	"max_retries": {
		get: func(c *Config) string { return strconv.Itoa(c.MaxRetries) },
		set: func(c *Config, v string) error { return setInt(&c.MaxRetries, v) },
	},
	"backoff_base": {
		get: func(c *Config) string { return formatFloat(c.BackoffBase) },
		set: func(c *Config, v string) error { return setFloat(&c.BackoffBase, v) },
	},
	"worker_timeout": {
		get: func(c *Config) string { return formatFloat(c.WorkerTimeout) },
		set: func(c *Config, v string) error { return setFloat(&c.WorkerTimeout, v) },
	},
	"poll_interval": {
		get: func(c *Config) string { return formatFloat(c.PollInterval) },
		set: func(c *Config, v string) error { return setFloat(&c.PollInterval, v) },
	},
	"data_dir": {
		get: func(c *Config) string { return c.DataDir },
		set: func(c *Config, v string) error { c.DataDir = v; return nil },
	},
	"store_driver": {
		get: func(c *Config) string { return c.StoreDriver },
		set: func(c *Config, v string) error { c.StoreDriver = v; return nil },
	},
	"dsn": {
		get: func(c *Config) string { return c.DSN },
		set: func(c *Config, v string) error { c.DSN = v; return nil },
	},
	"submit_rate_limit": {
		get: func(c *Config) string { return strconv.Itoa(c.SubmitRateLimit) },
		set: func(c *Config, v string) error { return setInt(&c.SubmitRateLimit, v) },
	},
}

// Keys returns every settable key in sorted order
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeKey accepts both max-retries and max_retries spellings.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

// Get returns the value of key formatted as a string
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[NormalizeKey(key)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return f.get(c), nil
}

// Set parses value into key. The config is left unchanged if the result
// would not validate.
func (c *Config) Set(key, value string) error {
	f, ok := fields[NormalizeKey(key)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	next := *c
	if err := f.set(&next, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Reset restores key to its default, or every key when key is empty
func (c *Config) Reset(key string) error {
	def := Default()
	if key == "" {
		*c = *def
		return nil
	}

	f, ok := fields[NormalizeKey(key)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	next := *c
	if err := f.set(&next, f.get(def)); err != nil {
		return err
	}
	*c = next
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func setInt(dst *int, v string) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
