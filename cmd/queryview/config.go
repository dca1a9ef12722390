package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/queryview/internal/model"
	"github.com/tinytelemetry/queryview/internal/socketrpc"
)

const (
	defaultBindHost           = "127.0.0.1"
	defaultAPIPort            = 3000
	defaultQueryTimeout       = model.DefaultQueryTimeout
	defaultMaxConcurrentReads = 4
	defaultMaxResultRows      = model.DefaultMaxResultRows
	defaultJobRetention       = 10 * time.Minute
	defaultCacheTTL           = 24 * time.Hour
	defaultEmbedTTL           = 7 * 24 * time.Hour
	defaultBackupInterval     = 6 * time.Hour
	defaultBackupKeepLast     = 24
)

// appConfig is the service's runtime configuration.
type appConfig struct {
	DBPath             string        `mapstructure:"db-path"`
	SocketPath         string        `mapstructure:"socket-path"`
	APIEnabled         bool          `mapstructure:"api-enabled"`
	APIPort            int           `mapstructure:"api-port"`
	APIAddr            string        `mapstructure:"api-addr"`
	BaseURL            string        `mapstructure:"base-url"`
	QueryTimeout       time.Duration `mapstructure:"query-timeout"`
	MaxConcurrentReads int           `mapstructure:"max-concurrent-queries"`
	MaxResultRows      int           `mapstructure:"max-result-rows"`
	JobRetention       time.Duration `mapstructure:"job-retention"`
	JournalEnabled     bool          `mapstructure:"journal-enabled"`
	JournalPath        string        `mapstructure:"journal-path"`
	SeedPath           string        `mapstructure:"seed-path"`
	SeedWatch          bool          `mapstructure:"seed-watch"`
	RedisAddr          string        `mapstructure:"redis-addr"`
	RedisPassword      string        `mapstructure:"redis-password"`
	RedisDB            int           `mapstructure:"redis-db"`
	CacheTTL           time.Duration `mapstructure:"cache-ttl"`
	EmbedSecret        string        `mapstructure:"embed-secret"`
	EmbedTTL           time.Duration `mapstructure:"embed-ttl"`
	User               model.User    `mapstructure:"user"`
	LogLevel           string        `mapstructure:"log-level"`

	BackupEnabled        bool          `mapstructure:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last"`
	BackupTarget         string        `mapstructure:"backup-target"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl"`

	ConfigPath string `mapstructure:"-"`
}

// loadConfig merges defaults, the config file, a .env file, QUERYVIEW_*
// environment variables and flags, in increasing priority.
func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: ignoring .env: %v", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "queryview")

	v := viper.New()
	v.SetEnvPrefix("QUERYVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("db-path", filepath.Join(dataDir, "queryview.duckdb"))
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("max-result-rows", defaultMaxResultRows)
	v.SetDefault("job-retention", defaultJobRetention)
	v.SetDefault("journal-enabled", true)
	v.SetDefault("journal-path", filepath.Join(dataDir, "catalog.journal"))
	v.SetDefault("seed-watch", false)
	v.SetDefault("redis-db", 0)
	v.SetDefault("cache-ttl", defaultCacheTTL)
	v.SetDefault("embed-ttl", defaultEmbedTTL)
	v.SetDefault("user.name", "local")
	v.SetDefault("user.permissions", model.AllPermissions)
	v.SetDefault("log-level", "info")
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-s3-use-ssl", true)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return cfg, err
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
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, statErr := os.Stat(cfg.ConfigPath); statErr != nil {
		cfg.ConfigPath = ""
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.MaxConcurrentReads <= 0 {
		return cfg, fmt.Errorf("invalid max-concurrent-queries: %d", cfg.MaxConcurrentReads)
	}
	if cfg.MaxResultRows <= 0 {
		return cfg, fmt.Errorf("invalid max-result-rows: %d", cfg.MaxResultRows)
	}
	if cfg.User.Name == "" {
		return cfg, errors.New("user.name is empty")
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.JournalPath = expandHome(home, cfg.JournalPath)
	cfg.SeedPath = expandHome(home, cfg.SeedPath)
	cfg.BackupLocalDir = expandHome(home, cfg.BackupLocalDir)
	cfg.SocketPath = expandHome(home, cfg.SocketPath)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.APIAddr
	}

	return cfg, nil
}

// bindFlags binds every flag that shares a name with a config key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Name == "config" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = fmt.Errorf("binding flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
