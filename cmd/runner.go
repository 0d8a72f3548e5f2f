package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncronus/internal/repositories"
	"github.com/desertthunder/syncronus/internal/services"
	"github.com/desertthunder/syncronus/internal/shared"
	"github.com/desertthunder/syncronus/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    services.Service
	tidal      services.Service
	db         *sql.DB
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    services.Service
	Tidal      services.Service
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		tidal:      opts.Tidal,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger, used by the TUI to redirect log output to a file.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, syncCommand, cacheCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// resolveService resolves a service name to its corresponding Service instance.
func (r *Runner) resolveService(serviceName string) (services.Service, error) {
	switch serviceName {
	case "spotify":
		if r.spotify == nil {
			return nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
		}
		return r.spotify, nil
	case "tidal":
		if r.tidal == nil {
			return nil, fmt.Errorf("%w: Tidal service not initialized", shared.ErrServiceUnavailable)
		}
		return r.tidal, nil
	default:
		return nil, fmt.Errorf("%w: invalid service '%s' (must be 'spotify' or 'tidal')", shared.ErrInvalidArgument, serviceName)
	}
}

// database lazily opens the configured sqlite database and runs migrations.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	return db, nil
}

// newEngine builds a transfer engine from source to dest, attaching the sync
// history and track match cache when the database is available.
func (r *Runner) newEngine(source, dest services.Service) *tasks.PlaylistEngine {
	engine := tasks.NewPlaylistEngine(source, dest, r.logger)

	db, err := r.database()
	if err != nil {
		r.logger.Warn("running without local cache", "error", err)
		return engine
	}

	return engine.
		WithHistory(repositories.NewSyncRunRepository(db)).
		WithTrackCache(repositories.NewTrackRepository(db))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
