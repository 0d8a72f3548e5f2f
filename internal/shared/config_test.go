package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "syncronus.db" {
			t.Errorf("expected database path syncronus.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8888 {
			t.Errorf("expected server port 8888, got %d", config.Server.Port)
		}

		if config.Cache.Dir != ".cache" {
			t.Errorf("expected cache dir .cache, got %s", config.Cache.Dir)
		}

		if config.Credentials.Spotify.RedirectURI == "" {
			t.Error("expected spotify redirect_uri to have a default")
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("expected error when config file already exists")
		}
	})

	t.Run("LoadConfig and SaveConfig round-trip", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		config := DefaultConfig()
		config.Credentials.Spotify.ClientID = "spotify_id"
		config.Credentials.Tidal.ClientID = "tidal_id"
		config.Database.Path = filepath.Join(tmpDir, "test.db")

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if loaded.Credentials.Spotify.ClientID != "spotify_id" {
			t.Errorf("expected spotify client_id to survive round-trip, got %s", loaded.Credentials.Spotify.ClientID)
		}
		if loaded.Credentials.Tidal.ClientID != "tidal_id" {
			t.Errorf("expected tidal client_id to survive round-trip, got %s", loaded.Credentials.Tidal.ClientID)
		}
		if loaded.Database.Path != config.Database.Path {
			t.Errorf("expected database path to survive round-trip, got %s", loaded.Database.Path)
		}
	})

	t.Run("LoadConfig with missing file", func(t *testing.T) {
		_, err := LoadConfig("/nonexistent/config.toml")
		if err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("Resolve fills blanks from environment", func(t *testing.T) {
		t.Setenv("TIDAL_CLIENT_ID", "env_id")
		t.Setenv("TIDAL_CLIENT_SECRET", "env_secret")
		t.Setenv("TIDAL_REDIRECT_URI", "http://localhost:9999/callback")

		resolved := ServiceConfig{ClientID: "explicit_id"}.Resolve("TIDAL")

		if resolved.ClientID != "explicit_id" {
			t.Errorf("explicit value should win, got %s", resolved.ClientID)
		}
		if resolved.ClientSecret != "env_secret" {
			t.Errorf("expected secret from environment, got %s", resolved.ClientSecret)
		}
		if resolved.RedirectURI != "http://localhost:9999/callback" {
			t.Errorf("expected redirect URI from environment, got %s", resolved.RedirectURI)
		}
	})

	t.Run("TokenPath", func(t *testing.T) {
		cache := CacheConfig{Dir: "/tmp/cache"}
		if got := cache.TokenPath("spotify"); got != "/tmp/cache/spotify_token.json" {
			t.Errorf("TokenPath() = %s", got)
		}

		empty := CacheConfig{}
		if got := empty.TokenPath("tidal"); got != ".cache/tidal_token.json" {
			t.Errorf("TokenPath() with empty dir = %s", got)
		}
	})
}
