package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Client      ClientConfig      `toml:"client"`
	Auth        AuthConfig        `toml:"auth"`
	Cache       CacheConfig       `toml:"cache"`
	Sync        SyncConfig        `toml:"sync"`
	Tempo       []TempoConfig     `toml:"tempo"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains the public PKCE client registration.
type SpotifyConfig struct {
	ClientID    string   `toml:"client_id"`
	RedirectURI string   `toml:"redirect_uri"`
	Scopes      []string `toml:"scopes"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the OAuth callback listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port for the callback listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ClientConfig tunes the resilient HTTP client.
type ClientConfig struct {
	BaseURL           string  `toml:"base_url"`
	AccountsURL       string  `toml:"accounts_url"`
	MaxAttempts       int     `toml:"max_attempts"`
	BackoffBaseMs     int     `toml:"backoff_base_ms"`
	BackoffJitterMs   int     `toml:"backoff_jitter_ms"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	BreakerFailures   uint32  `toml:"breaker_failures"`
	BreakerTimeoutMs  int     `toml:"breaker_timeout_ms"`
	TimeoutMs         int     `toml:"timeout_ms"`
}

// BackoffMin is the fixed part of the wait between attempts.
func (c ClientConfig) BackoffMin() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffMax is the upper bound of the wait between attempts.
func (c ClientConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffBaseMs+c.BackoffJitterMs) * time.Millisecond
}

func (c ClientConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMs) * time.Millisecond
}

func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// AuthConfig tunes token refresh and the wait for a concurrent refresh.
type AuthConfig struct {
	RefreshAttempts     int `toml:"refresh_attempts"`
	RefreshBackoffMinMs int `toml:"refresh_backoff_min_ms"`
	RefreshBackoffMaxMs int `toml:"refresh_backoff_max_ms"`
	PollAttempts        int `toml:"poll_attempts"`
	PollMinMs           int `toml:"poll_min_ms"`
	PollMaxMs           int `toml:"poll_max_ms"`
}

// CacheConfig contains local cache settings.
type CacheConfig struct {
	SnapshotPath string `toml:"snapshot_path"`
}

// SyncConfig contains sync engine settings.
type SyncConfig struct {
	PlaylistPageSize int  `toml:"playlist_page_size"`
	TrackPageSize    int  `toml:"track_page_size"`
	StrictEnrichment bool `toml:"strict_enrichment"`
}

// TempoConfig is one row of the dance tempo table.
type TempoConfig struct {
	Key   string  `toml:"key"`
	Dance string  `toml:"dance"`
	Low   float64 `toml:"low"`
	High  float64 `toml:"high"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	md, err := toml.Decode(string(data), config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrInvalidConfig, err)
	}
	if md.IsDefined("tempo") {
		var only struct {
			Tempo []TempoConfig `toml:"tempo"`
		}
		if _, err := toml.Decode(string(data), &only); err == nil {
			config.Tempo = only.Tempo
		}
	}

	return config, config.Validate()
}

// Validate checks the values the client cannot work without.
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("%w: client.base_url is required", ErrInvalidConfig)
	}
	if c.Client.MaxAttempts < 1 {
		return fmt.Errorf("%w: client.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Sync.PlaylistPageSize < 1 || c.Sync.PlaylistPageSize > 50 {
		return fmt.Errorf("%w: sync.playlist_page_size must be within 1..50", ErrInvalidConfig)
	}
	if c.Sync.TrackPageSize < 1 || c.Sync.TrackPageSize > 100 {
		return fmt.Errorf("%w: sync.track_page_size must be within 1..100", ErrInvalidConfig)
	}
	for _, t := range c.Tempo {
		if t.Key == "" || t.Low <= 0 || t.High < t.Low {
			return fmt.Errorf("%w: bad tempo range %q", ErrInvalidConfig, t.Key)
		}
	}
	return nil
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
