package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/queryview/internal/backup"
	"github.com/tinytelemetry/queryview/internal/httpserver"
	"github.com/tinytelemetry/queryview/internal/socketrpc"
)

const shutdownDeadline = 10 * time.Second

// runServer starts the query service with its socket RPC and HTTP surfaces.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg.LogLevel)
	defer cleanupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.SeedPath != "" {
		res, err := applySeed(ctx, rt.store, cfg.SeedPath)
		if err != nil {
			return fmt.Errorf("failed to apply seed: %w", err)
		}
		log.Printf("queryview: seed applied: %d data sources, %d queries, %d skipped", res.DataSources, res.Queries, res.Skipped)
	}

	backupManager, err := backup.NewManager(rt.store, backupConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, rt.svc, rt.metrics.Registry())
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	sockServer := socketrpc.NewServer(cfg.SocketPath, rt.svc)
	if err := sockServer.Start(); err != nil {
		return fmt.Errorf("failed to start socket server: %w", err)
	}
	defer sockServer.Stop()

	printStartupBanner(cfg)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.SeedPath != "" && cfg.SeedWatch {
		g.Go(func() error {
			return watchSeed(gctx, cfg.SeedPath, func(ctx context.Context) error {
				res, err := applySeed(ctx, rt.store, cfg.SeedPath)
				if err == nil {
					log.Printf("queryview: seed reloaded: %d data sources, %d queries", res.DataSources, res.Queries)
				}
				return err
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}
	stop()
	fmt.Println("\nShutting down gracefully...")

	// A second signal or a stuck shutdown forces the exit.
	force := make(chan os.Signal, 1)
	signal.Notify(force, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-force:
			fmt.Println("\nForce shutdown.")
		case <-time.After(shutdownDeadline):
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Remove(cfg.SocketPath)
		os.Exit(1)
	}()
	return nil
}

func backupConfig(cfg appConfig) backup.Config {
	return backup.Config{
		Enabled:        cfg.BackupEnabled,
		Interval:       cfg.BackupInterval,
		LocalDir:       cfg.BackupLocalDir,
		KeepLast:       cfg.BackupKeepLast,
		Target:         cfg.BackupTarget,
		BucketURL:      cfg.BackupBucketURL,
		S3Endpoint:     cfg.BackupS3Endpoint,
		S3Region:       cfg.BackupS3Region,
		S3AccessKey:    cfg.BackupS3AccessKey,
		S3SecretKey:    cfg.BackupS3SecretKey,
		S3SessionToken: cfg.BackupS3SessionToken,
		S3UseSSL:       cfg.BackupS3UseSSL,
	}
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	row := func(ok bool, label, value string) string {
		mark := dot
		if ok {
			mark = check
		}
		return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
	}

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{
		"",
		cyan.Bold(true).Render("    queryview"),
		"    " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Endpoints"),
		"",
	}

	if cfg.APIEnabled {
		lines = append(lines, row(true, "HTTP API", cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, row(false, "HTTP API", dim.Render("disabled")))
	}
	lines = append(lines, row(true, "Unix Socket", cyan.Render(shortenPath(cfg.SocketPath))))

	lines = append(lines, "", bold.Render("    Storage"), "")
	lines = append(lines, row(true, "Catalog", dim.Render(shortenPath(cfg.DBPath))))
	if cfg.JournalEnabled {
		lines = append(lines, row(true, "Journal", dim.Render(shortenPath(cfg.JournalPath))))
	} else {
		lines = append(lines, row(false, "Journal", dim.Render("disabled")))
	}
	if cfg.BackupEnabled {
		target := shortenPath(cfg.BackupLocalDir)
		if cfg.BackupBucketURL != "" {
			target += " → " + cfg.BackupBucketURL
		}
		lines = append(lines, row(true, "Snapshots", dim.Render(target)))
	} else {
		lines = append(lines, row(false, "Snapshots", dim.Render("disabled")))
	}
	if cfg.RedisAddr != "" {
		lines = append(lines, row(true, "Result cache", dim.Render(cfg.RedisAddr)))
	} else {
		lines = append(lines, row(false, "Result cache", dim.Render("disabled")))
	}

	lines = append(lines, "", bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, row(true, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, row(false, "Config File", dim.Render("default (no file)")))
	}
	if cfg.SeedPath != "" {
		lines = append(lines, row(true, "Seed", dim.Render(shortenPath(cfg.SeedPath))))
	}
	lines = append(lines, row(true, "User", dim.Render(cfg.User.Name)))

	lines = append(lines, "", separator, "",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
