package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/queryview/internal/model"
	"github.com/tinytelemetry/queryview/internal/socketrpc"
)

// cliConfig holds only TUI-relevant configuration. It shares the service's
// config file and environment prefix.
type cliConfig struct {
	SocketPath         string        `mapstructure:"socket-path"`
	PollInterval       time.Duration `mapstructure:"poll-interval"`
	FullscreenMinWidth int           `mapstructure:"fullscreen-min-width"`
	MaxAge             int64         `mapstructure:"max-age"`
	User               model.User    `mapstructure:"user"`
	Location           string        `mapstructure:"location"`
	LogLevel           string        `mapstructure:"log-level"`
}

func loadCLIConfig(configPath string, flags *pflag.FlagSet) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("QUERYVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("poll-interval", model.DefaultPollInterval)
	v.SetDefault("fullscreen-min-width", model.DefaultFullscreenMinWidth)
	v.SetDefault("max-age", 0)
	v.SetDefault("user.name", "local")
	v.SetDefault("user.permissions", model.AllPermissions)
	v.SetDefault("log-level", "info")

	if flags != nil {
		for _, name := range []string{"socket-path", "location", "max-age"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(name, f); err != nil {
					return cfg, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "queryview", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("invalid poll-interval: %v", cfg.PollInterval)
	}
	if strings.HasPrefix(cfg.SocketPath, "~/") {
		cfg.SocketPath = filepath.Join(home, cfg.SocketPath[2:])
	}
	return cfg, nil
}
