package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/queryview/internal/duckdb"
	"github.com/tinytelemetry/queryview/internal/jobs"
	"github.com/tinytelemetry/queryview/internal/journal"
	"github.com/tinytelemetry/queryview/internal/runner"
	"github.com/tinytelemetry/queryview/internal/service"
)

// runtime bundles the components every subcommand that touches the catalog
// needs.
type runtime struct {
	store   *duckdb.Store
	journal *journal.Journal
	cache   *jobs.RedisCache
	metrics *jobs.Metrics
	svc     *service.Service
}

// openRuntime opens the catalog, replays the edit journal and wires the
// query service.
func openRuntime(ctx context.Context, cfg appConfig) (*runtime, error) {
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	rt := &runtime{store: store, metrics: jobs.NewMetrics()}

	if cfg.JournalEnabled {
		rt.journal, err = journal.Open(cfg.JournalPath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open catalog journal: %w", err)
		}
	}

	jobCfg := jobs.Config{
		MaxConcurrent: int64(cfg.MaxConcurrentReads),
		QueryTimeout:  cfg.QueryTimeout,
		Retention:     cfg.JobRetention,
		CacheTTL:      cfg.CacheTTL,
		Metrics:       rt.metrics,
	}
	if cfg.RedisAddr != "" {
		rt.cache, err = jobs.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("queryview: result cache disabled: %v", err)
		} else {
			jobCfg.Cache = rt.cache
		}
	}

	secret := cfg.EmbedSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Printf("queryview: embed-secret not set, embed links expire on restart")
	}
	signer, err := service.NewEmbedSigner(secret, cfg.EmbedTTL)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.svc, err = service.New(ctx, store, rt.journal, jobs.NewManager(jobCfg),
		runner.NewRegistry(nil, cfg.MaxResultRows), signer,
		service.Config{User: cfg.User, BaseURL: cfg.BaseURL})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to start query service: %w", err)
	}
	return rt, nil
}

// Close releases every component in reverse order of creation.
func (rt *runtime) Close() {
	if rt.svc != nil {
		if err := rt.svc.Close(); err != nil {
			log.Printf("queryview: close service: %v", err)
		}
	}
	if rt.cache != nil {
		_ = rt.cache.Close()
	}
	if rt.journal != nil {
		_ = rt.journal.Close()
	}
	if err := rt.store.Close(); err != nil {
		log.Printf("queryview: close store: %v", err)
	}
}

// applySeed loads the seed file into the catalog.
func applySeed(ctx context.Context, store *duckdb.Store, path string) (duckdb.SeedResult, error) {
	seed, err := duckdb.LoadSeed(path)
	if err != nil {
		return duckdb.SeedResult{}, err
	}
	return store.ApplySeed(ctx, seed)
}

// configureRuntimeLogger sends log output to the service log file, falling
// back to stderr.
func configureRuntimeLogger(level string) func() {
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

	f, err := os.OpenFile(filepath.Join(logDir, "queryview.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
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
