package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Cache       CacheConfig       `toml:"cache"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify ServiceConfig `toml:"spotify"`
	Tidal   ServiceConfig `toml:"tidal"`
}

// ServiceConfig contains OAuth2 client credentials for one music service.
//
// Explicit values take precedence; blank fields fall back to the service's
// environment variables (e.g. SPOTIFY_CLIENT_ID) via [ServiceConfig.Resolve].
type ServiceConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Resolve fills blank credential fields from environment variables prefixed
// with the given service name (e.g. "SPOTIFY" -> SPOTIFY_CLIENT_ID).
func (s ServiceConfig) Resolve(envPrefix string) ServiceConfig {
	if s.ClientID == "" {
		s.ClientID = os.Getenv(envPrefix + "_CLIENT_ID")
	}
	if s.ClientSecret == "" {
		s.ClientSecret = os.Getenv(envPrefix + "_CLIENT_SECRET")
	}
	if s.RedirectURI == "" {
		s.RedirectURI = os.Getenv(envPrefix + "_REDIRECT_URI")
	}
	return s
}

// CacheConfig contains token cache settings.
type CacheConfig struct {
	Dir string `toml:"dir"`
}

// TokenPath returns the token cache file path for a service.
func (c CacheConfig) TokenPath(service string) string {
	dir := c.Dir
	if dir == "" {
		dir = ".cache"
	}
	return fmt.Sprintf("%s/%s_token.json", dir, service)
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains callback HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the configuration to a TOML file at the specified path.
func SaveConfig(path string, config *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
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
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
