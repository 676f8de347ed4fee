// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading and checkpoint database opening to reduce
// boilerplate across commands.
package appctx

import (
	"fmt"

	"github.com/lherron/wrkmig/internal/config"
	"github.com/lherron/wrkmig/internal/db"
	"github.com/spf13/cobra"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// DB is the opened checkpoint database (nil if NeedsDB is false)
	DB *db.DB
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB indicates whether to open the checkpoint database.
	NeedsDB bool
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	// Override paths from persistent flags if provided
	if dbFlag := cmd.Flag("db"); dbFlag != nil {
		if dbPath := dbFlag.Value.String(); dbPath != "" {
			app.Config.DBPath = dbPath
		}
	}
	if mappingFlag := cmd.Flag("mapping"); mappingFlag != nil {
		if mappingPath := mappingFlag.Value.String(); mappingPath != "" {
			app.Config.MappingFile = mappingPath
		}
	}

	if opts.NeedsDB {
		database, err := db.Open(app.Config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
		}
		// The checkpoint database is private to this tool, so schema
		// migrations apply on open rather than through a separate command.
		if err := database.Migrate(); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to migrate checkpoint database: %w", err)
		}
		app.DB = database
	}

	return app, nil
}
