// submodule cmd wires configuration, services, and the CLI entrypoint
package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/syncronus/internal/services"
	"github.com/desertthunder/syncronus/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	configPath := "config.toml"
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}

	var spotifyService services.Service
	if svc, err := services.NewSpotifyService(config.Credentials.Spotify, config.Cache.TokenPath("spotify"), logger); err == nil {
		spotifyService = svc
	} else {
		logger.Debug("spotify service unavailable", "error", err)
	}

	var tidalService services.Service
	if svc, err := services.NewTidalService(config.Credentials.Tidal, config.Cache.TokenPath("tidal"), logger); err == nil {
		tidalService = svc
	} else {
		logger.Debug("tidal service unavailable", "error", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Spotify:    spotifyService,
		Tidal:      tidalService,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "syncronus",
		Usage:    "Sync playlists between Spotify & Tidal",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
