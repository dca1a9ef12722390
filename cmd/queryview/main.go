package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/queryview/internal/backup"
	"github.com/tinytelemetry/queryview/internal/duckdb"
	"github.com/tinytelemetry/queryview/internal/duckdb/migrate"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "queryview",
		Short:         "queryview - saved query service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/queryview/config.yml)")
	root.PersistentFlags().String("db-path", "", "catalog database path")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	load := func(cmd *cobra.Command) (appConfig, error) {
		cfg, err := loadConfig(configPath, cmd.Flags())
		if err != nil {
			return cfg, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newBackupCmd(load),
		newRunCmd(load),
		newSeedCmd(load),
		newVersionCmd(),
	)
	return root
}

type configLoader func(cmd *cobra.Command) (appConfig, error)

func newServeCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the query service with its socket and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().String("socket-path", "", "unix socket for the TUI")
	cmd.Flags().String("api-addr", "", "HTTP API listen address")
	cmd.Flags().Bool("api-enabled", true, "serve the HTTP API")
	cmd.Flags().String("seed-path", "", "YAML catalog seed applied at startup")
	cmd.Flags().Bool("seed-watch", false, "re-apply the seed when the file changes")
	cmd.Flags().String("redis-addr", "", "redis address for the shared result cache")
	return cmd
}

func newMigrateCmd(load configLoader) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending catalog migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
				return err
			}
			db, err := sql.Open("duckdb", cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			runner := migrate.NewRunner(db)
			if !statusOnly {
				pending, err := runner.Pending(ctx)
				if err != nil {
					return err
				}
				for _, m := range pending {
					fmt.Fprintf(cmd.OutOrStdout(), "applying %03d %s\n", m.Version, m.Name)
				}
				if err := runner.Run(ctx); err != nil {
					return err
				}
			}
			current, pending, err := runner.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog schema version %d, %d pending\n", current, pending)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "only report the schema version")
	return cmd
}

func newBackupCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Take one catalog snapshot and upload it when a bucket is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
			if err != nil {
				return fmt.Errorf("failed to initialize DuckDB: %w", err)
			}
			defer store.Close()

			if err := backup.Snapshot(cmd.Context(), store, backupConfig(cfg)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot written to %s\n", shortenPath(cfg.BackupLocalDir))
			return nil
		},
	}
	cmd.Flags().String("backup-local-dir", "", "directory for local snapshots")
	cmd.Flags().String("backup-bucket-url", "", "s3://bucket/prefix to upload to")
	cmd.Flags().String("backup-target", "", "upload client: s3 or minio")
	return cmd
}

func newSeedCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load data sources and queries from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
			if err != nil {
				return fmt.Errorf("failed to initialize DuckDB: %w", err)
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			res, err := applySeed(ctx, store, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d data sources and %d queries (%d skipped)\n",
				res.DataSources, res.Queries, res.Skipped)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "queryview - Saved Query Service\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
			fmt.Fprintf(out, "  Go version: %s\n", goVersion)
		},
	}
}
