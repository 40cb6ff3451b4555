package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/harwoeck/adapt/v2"
	"github.com/spf13/cobra"
)

var (
	configPath string
	executor   string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "adapt-tenants",
		Short:         "Multi-tenant schema migrations with adapt",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Migrate all tenants of a tenant file",
		Long: `Migrate loads the tenant file, builds the orchestrator and signals
"application ready" once. Set ADAPT_SHOULD_RUN=false to skip all migrations
on a host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMigrate(ctx)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the adapt version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(adapt.Version)
		},
	}
)

func init() {
	migrateCmd.Flags().StringVarP(&configPath, "config", "c", "adapt-tenants.yaml", "path of the tenant file")
	migrateCmd.Flags().StringVar(&executor, "executor", "", "executor name stored with every applied migration")
	migrateCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func runMigrate(ctx context.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	tf, err := adapt.LoadTenantFile(configPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := tf.Close(); err != nil {
			log.Warn("failed to close datasources", "error", err)
		}
	}()

	var engineOptions []adapt.EngineOption
	if executor != "" {
		engineOptions = append(engineOptions, adapt.EngineExecutor(executor))
	}

	var observer adapt.ReadyObserver
	observer, err = adapt.NewOrchestrator(tf.Tenants(),
		adapt.Logger(log),
		adapt.WithEngineOptions(engineOptions...),
	)
	if err != nil {
		return err
	}

	return observer.OnApplicationReady(ctx)
}
