package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/queryview/internal/queryview"
	"github.com/tinytelemetry/queryview/internal/socketrpc"
	"github.com/tinytelemetry/queryview/internal/tui"
)

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
	var (
		configPath  string
		showVersion bool
	)
	cmd := &cobra.Command{
		Use:           "queryview-tui",
		Short:         "Terminal client for the queryview service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "queryview CLI - Query Client\n")
				fmt.Fprintf(out, "  Version:    %s\n", version)
				fmt.Fprintf(out, "  Commit:     %s\n", commit)
				fmt.Fprintf(out, "  Built:      %s\n", buildTime)
				fmt.Fprintf(out, "  Go version: %s\n", goVersion)
				return nil
			}
			cfg, err := loadCLIConfig(configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runTUI(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/queryview/config.yml)")
	cmd.Flags().String("socket-path", "", "override socket path to connect to the queryview service")
	cmd.Flags().String("location", "", "open a page location such as /queries/3?fullscreen=true")
	cmd.Flags().Int64("max-age", 0, "accept cached results at most this many seconds old (-1 any)")
	cmd.Flags().BoolVar(&showVersion, "version", false, "print version information")
	return cmd
}

func runTUI(cfg cliConfig) error {
	cleanupLogger := configureTUILogger(cfg.LogLevel)
	defer cleanupLogger()

	loc, err := queryview.ParseURLState(cfg.Location)
	if err != nil {
		return err
	}
	loc.OnChange(func(s string) { log.Debugf("tui: location %s", s) })

	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to queryview service at %s: %w\nIs the service running? Start it with: queryview serve", cfg.SocketPath, err)
	}
	defer client.Close()

	queryPage := tui.NewQueryPage(tui.QueryPageConfig{
		Service:            client,
		User:               cfg.User,
		Location:           loc,
		PollInterval:       cfg.PollInterval,
		FullscreenMinWidth: cfg.FullscreenMinWidth,
		MaxAge:             cfg.MaxAge,
	})
	app := tui.NewApp(tui.NewListPage(client), queryPage)
	if id, ok := loc.QueryID(); ok {
		app.StartAt(tui.QueryPageID, id)
	}

	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err = p.Run()
	// Cancel a job still running server-side.
	if cancel := queryPage.Close(); cancel != nil {
		cancel()
	}
	if err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}
	if last := queryPage.Location(); last != "/" {
		fmt.Println(last)
	}
	return nil
}

// configureTUILogger keeps log output off the terminal while the TUI owns it.
func configureTUILogger(level string) func() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})
	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	logDir := filepath.Join(home, ".local", "state", "queryview")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	f, err := os.OpenFile(filepath.Join(logDir, "queryview-tui.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}
}
