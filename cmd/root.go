package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/spritesheet/internal/config"
	"github.com/andresmejia3/spritesheet/internal/logging"
	"github.com/andresmejia3/spritesheet/internal/store"
	"github.com/andresmejia3/spritesheet/internal/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// DB is the optional sheet registry shared by subcommands. It stays nil
	// when no database is configured.
	DB *store.Store
	// Cfg is the environment configuration, loaded before every command.
	Cfg *config.Config
	// Log carries diagnostics; user-facing lines go straight to stderr.
	Log = zap.NewNop()

	dbURL   string
	verbose bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "spritesheet",
	Short:         "Turn videos into sprite sheets with JSON frame metadata",
	Version:       Version,
	SilenceErrors: true, // Execute prints it
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
		}

		level := Cfg.LogLevel
		if verbose {
			level = "debug"
		}
		if Log, err = logging.New(level); err != nil {
			return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
		}

		// The flag wins over the environment; with neither the registry is off.
		if dbURL == "" {
			dbURL = Cfg.PostgresURL()
		}
		if dbURL == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL, Log.Named("store"))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
		}
		_ = Log.Sync()
	},
}

// requireDB guards the registry commands.
func requireDB() error {
	if DB == nil {
		return fmt.Errorf("%w: no database configured (use --db or SPRITESHEET_DB_URL / POSTGRES_HOST)", types.ErrConfiguration)
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// errReported marks failures already printed in detail (e.g. a batch summary).
var errReported = errors.New("failed")

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the sheet registry (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
