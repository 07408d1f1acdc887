// Package config handles configuration loading, validation, and management for dotphrase.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"dotphrase/internal/security"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Storage selects where mappings live.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Input configures the keyboard event source.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Injection configures the virtual keyboard.
	Injection InjectionConfig `toml:"injection" json:"injection" yaml:"injection"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configures the optional Prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Notify configures desktop notifications.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// Phrasebook configures a phrase file imported at startup.
	Phrasebook PhrasebookConfig `toml:"phrasebook" json:"phrasebook" yaml:"phrasebook"`
}

// StorageConfig holds mapping store settings.
type StorageConfig struct {
	// Backend is "sqlite", "redis" or "memory".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is how long SQLite waits on a locked database.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// Encrypt seals expansions at rest.
	Encrypt bool `toml:"encrypt" json:"encrypt" yaml:"encrypt"`

	// KeyPath is the master key file used when Encrypt is set.
	KeyPath string `toml:"key_path" json:"key_path" yaml:"key_path"`

	// Redis backend settings.
	Redis RedisConfig `toml:"redis" json:"redis" yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `toml:"addr" json:"addr" yaml:"addr"`
	Password string `toml:"password" json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `toml:"db" json:"db" yaml:"db"`
	Key      string `toml:"key" json:"key" yaml:"key"`
}

// InputConfig holds keyboard source settings.
type InputConfig struct {
	// Devices lists /dev/input/event* paths. Empty autodetects keyboards.
	Devices []string `toml:"devices" json:"devices" yaml:"devices"`

	// CancelKey ends a listening session: "escape" or "delete".
	CancelKey string `toml:"cancel_key" json:"cancel_key" yaml:"cancel_key"`

	// Buffer is the event channel capacity.
	Buffer int `toml:"buffer" json:"buffer" yaml:"buffer"`
}

// InjectionConfig holds virtual keyboard settings.
type InjectionConfig struct {
	DeviceName    string `toml:"device_name" json:"device_name" yaml:"device_name"`
	KeyDelayMs    int    `toml:"key_delay_ms" json:"key_delay_ms" yaml:"key_delay_ms"`
	SettleDelayMs int    `toml:"settle_delay_ms" json:"settle_delay_ms" yaml:"settle_delay_ms"`

	// UnicodeInput is "ctrl-shift-u" or "none".
	UnicodeInput string `toml:"unicode_input" json:"unicode_input" yaml:"unicode_input"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`

	// LogContent writes typed text and expansions to the log.
	LogContent bool `toml:"log_content" json:"log_content" yaml:"log_content"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" json:"addr" yaml:"addr"`
}

// NotifyConfig holds desktop notification settings.
type NotifyConfig struct {
	Enabled   bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	TimeoutMs int  `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// PhrasebookConfig holds the startup phrase file settings.
type PhrasebookConfig struct {
	// Path is imported when a session starts. Empty disables it.
	Path string `toml:"path" json:"path" yaml:"path"`

	// Watch re-imports Path whenever it changes.
	Watch bool `toml:"watch" json:"watch" yaml:"watch"`

	// Replace overwrites existing triggers on import.
	Replace bool `toml:"replace" json:"replace" yaml:"replace"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Version: Version,
		Storage: StorageConfig{
			Backend:       "sqlite",
			Path:          filepath.Join(dataDir, "phrases.db"),
			BusyTimeoutMs: 5000,
			KeyPath:       filepath.Join(dataDir, "master.key"),
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
				Key:  "dotphrase:phrases",
			},
		},
		Input: InputConfig{
			CancelKey: "escape",
			Buffer:    256,
		},
		Injection: InjectionConfig{
			DeviceName:    "dotphrase virtual keyboard",
			KeyDelayMs:    2,
			SettleDelayMs: 300,
			UnicodeInput:  "ctrl-shift-u",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(StateDir(), "dotphrase.log"),
			MaxSizeMB:  10,
			MaxAgeDays: 14,
			MaxBackups: 3,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9465",
		},
		Notify: NotifyConfig{
			Enabled:   true,
			TimeoutMs: 4000,
		},
	}
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// LoadOrCreate loads the configuration, writing a default file first if
// none exists. created reports whether a file was written.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveConfig(DefaultConfig(), path); err != nil {
			return nil, false, err
		}
		cfg, err := Load(path)
		return cfg, true, err
	}
	cfg, err := Load(path)
	return cfg, false, err
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if no config file exists
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		// Try TOML by default
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode config (unknown format): %w", err)
		}
	}

	return cfg, nil
}

// SaveConfig writes the configuration with 0600 permissions, encoding by
// extension (TOML when unknown).
func SaveConfig(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		buf.WriteString("# dotphrase configuration\n\n")
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := security.WriteSecretFile(path, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with DOTPHRASE_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	// Storage overrides
	if v := os.Getenv("DOTPHRASE_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("DOTPHRASE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("DOTPHRASE_STORAGE_ENCRYPT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.Encrypt = b
		}
	}
	if v := os.Getenv("DOTPHRASE_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
	}
	// Credentials from env keep them out of the config file
	if v := os.Getenv("DOTPHRASE_REDIS_PASSWORD"); v != "" {
		c.Storage.Redis.Password = v
	}

	// Input overrides
	if v := os.Getenv("DOTPHRASE_INPUT_DEVICES"); v != "" {
		c.Input.Devices = splitList(v)
	}
	if v := os.Getenv("DOTPHRASE_CANCEL_KEY"); v != "" {
		c.Input.CancelKey = v
	}

	// Logging overrides
	if v := os.Getenv("DOTPHRASE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOTPHRASE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("DOTPHRASE_LOG_CONTENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.LogContent = b
		}
	}

	// Metrics overrides
	if v := os.Getenv("DOTPHRASE_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Input.Devices = append([]string(nil), c.Input.Devices...)
	return &clone
}

// KeyDelay returns the pause between injected key events.
func (c *Config) KeyDelay() time.Duration {
	return time.Duration(c.Injection.KeyDelayMs) * time.Millisecond
}

// SettleDelay returns the pause after creating the virtual keyboard.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Injection.SettleDelayMs) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
