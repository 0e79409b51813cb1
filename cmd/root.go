// Package cmd defines and implements the CLI commands for comic-archiver.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archiver/internal/app"
	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/config"
	"github.com/JakeFAU/comic-archiver/internal/logging"
	"github.com/JakeFAU/comic-archiver/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface the commands use, so tests can inject a fake.
type App interface {
	Logger() *zap.Logger
	Catalog() comics.Catalog
	Fetch(ctx context.Context, opts app.FetchOptions) (pipeline.Summary, error)
	Serve(ctx context.Context) error
	Close() error
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return nil, err
	}
	return a, nil
}

type rootOptions struct {
	configFile string
	root       string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "comic-archiver",
		Short: "Archive the Dilbert strip back catalog from the Wayback Machine.",
		Long: `comic-archiver rebuilds the Dilbert archive (1989-04-16 to 2023-03-12)
from web archive snapshots. It downloads each strip image, extracts tags and
transcripts into a local database, and resumes where a previous run stopped.`,
		SilenceUsage: true,

		// Runs before every subcommand: load config, apply flag overrides,
		// then build the services the subcommand needs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.root, "root", "", "asset root directory (overrides storage.root)")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTagsCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

// loadConfig reads the config file and environment, then applies any flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Storage.Root = opts.root
	}
	if flags.Lookup("start") != nil && flags.Changed("start") {
		cfg.Range.Start, _ = flags.GetString("start")
	}
	if flags.Lookup("end") != nil && flags.Changed("end") {
		cfg.Range.End, _ = flags.GetString("end")
	}
	if flags.Lookup("concurrency") != nil && flags.Changed("concurrency") {
		cfg.Pipeline.Concurrency, _ = flags.GetInt("concurrency")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// run executes root and closes whatever app the subcommand built, including
// when the subcommand failed.
func run(ctx context.Context, root *cobra.Command) error {
	executed, err := root.ExecuteContextC(ctx)
	if executed == nil || executed.Context() == nil {
		return err
	}
	if appInstance, ok := executed.Context().Value(appKey).(App); ok && appInstance != nil {
		if closeErr := appInstance.Close(); closeErr != nil {
			fmt.Fprintf(root.ErrOrStderr(), "close: %v\n", closeErr)
		}
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), newRootCmd()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
