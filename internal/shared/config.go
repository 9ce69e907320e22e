package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	LogLevel string         `toml:"log_level"`
	Database DatabaseConfig `toml:"database"`
	Import   ImportConfig   `toml:"import"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	DedupWindow    Duration `toml:"dedup_window"`
	ParseTimeout   Duration `toml:"parse_timeout"`
	MaxRecords     int      `toml:"max_records"`
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	MaxFiles       int      `toml:"max_files"`
	MinPlayMs      int64    `toml:"min_play_ms"`
}

// CatalogConfig configures the remote reference catalog.
type CatalogConfig struct {
	LastFMAPIKey   string   `toml:"lastfm_api_key"`
	LastFMBaseURL  string   `toml:"lastfm_base_url"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// RedisConfig enables distributed locking and aggregate triggers when Addr is set.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	LockTTL    Duration `toml:"lock_ttl"`
	AckTimeout Duration `toml:"ack_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// JobRetention is how long a finished import's event log stays in memory.
	JobRetention Duration `toml:"job_retention"`
}

// Addr returns host:port for [http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Duration wraps [time.Duration] so TOML strings like "20s" decode.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv reads KEY=VALUE pairs from the given dotenv files into the process environment.
//
// Missing files are ignored; variables already set are not overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints from HISTX_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("HISTX_LASTFM_API_KEY"); v != "" {
		c.Catalog.LastFMAPIKey = v
	}
	if v := os.Getenv("HISTX_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("HISTX_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("HISTX_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
		c.Database.Driver = "postgres"
	}
	if v := os.Getenv("HISTX_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("HISTX_DEDUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Import.DedupWindow = Duration{d}
		}
	}
	if v := os.Getenv("HISTX_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate reports configuration values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: database.driver must be sqlite or postgres, got %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Import.DedupWindow.Duration < 0 {
		return fmt.Errorf("%w: import.dedup_window must not be negative", ErrInvalidConfig)
	}
	if c.Import.MaxRecords <= 0 {
		return fmt.Errorf("%w: import.max_records must be positive", ErrInvalidConfig)
	}
	if c.Import.MinPlayMs < 0 {
		return fmt.Errorf("%w: import.min_play_ms must not be negative", ErrInvalidConfig)
	}
	if c.Server.JobRetention.Duration < 0 {
		return fmt.Errorf("%w: server.job_retention must not be negative", ErrInvalidConfig)
	}
	return nil
}
