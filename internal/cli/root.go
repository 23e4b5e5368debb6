// Package cli implements the worklog command-line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/worklog/internal/app"
	"github.com/JonMunkholm/worklog/internal/config"
	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/JonMunkholm/worklog/internal/logging"
	"github.com/JonMunkholm/worklog/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// runtime is the state shared by all subcommands.
type runtime struct {
	envFile string
	cfg     *config.Config

	open    func(ctx context.Context, cfg *config.Config) (*app.App, error)
	migrate func(ctx context.Context, cfg *config.Config) error
}

func newRuntime() *runtime {
	return &runtime{
		open: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg, app.Options{Migrate: cfg.Database.MigrateOnStart})
		},
		migrate: func(ctx context.Context, cfg *config.Config) error {
			pool, err := app.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			return store.Migrate(pool)
		},
	}
}

// NewRootCmd builds the worklog command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newRuntime())
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "worklog",
		Short: "Import work-log files and report on logged hours",
		Long: `worklog imports CSV files of work-log entries into PostgreSQL.
Rows are validated and deduplicated against the file and the database,
accepted rows are inserted in one batch, and rejected rows are written
to an error report next to the source file.

Stored hours can be summarized per month, per project, or per member.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: rt.setup,
	}
	root.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "dotenv file loaded before reading the environment (empty to skip)")

	root.AddCommand(
		newImportCmd(rt),
		newReportCmd(rt),
		newRangeCmd(rt),
		newMigrateCmd(rt),
	)
	return root
}

// setup loads configuration and routes logs to stderr so stdout stays
// reserved for command output.
func (rt *runtime) setup(cmd *cobra.Command, _ []string) error {
	if rt.envFile != "" {
		if err := godotenv.Load(rt.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", rt.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	rt.cfg = cfg
	return nil
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		return 1
	}
	return 0
}

// printError writes the user-facing message for err followed by its detail.
func printError(w io.Writer, err error) {
	if core.IsUserFacing(err) {
		fmt.Fprintln(w, "Error:", core.FormatUserError(err))
		fmt.Fprintln(w, "  cause:", err)
		return
	}
	fmt.Fprintln(w, "Error:", err)
}
