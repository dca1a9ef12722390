package runner

import (
	"database/sql"
	"fmt"
	"reflect"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/tinytelemetry/queryview/internal/model"
)

// driverFor maps a data source type to its database/sql driver name.
var driverFor = map[string]string{
	"duckdb":   "duckdb",
	"sqlite":   "sqlite",
	"postgres": "pgx",
}

// OpenFunc opens a runner for a data source.
type OpenFunc func(ds model.DataSource) (Runner, error)

type registryEntry struct {
	options map[string]string
	runner  Runner
}

// Registry caches one runner per data source and reopens it when the data
// source options change.
type Registry struct {
	mu      sync.Mutex
	open    OpenFunc
	runners map[int64]registryEntry
}

// NewRegistry creates a registry. A nil open uses Open with maxRows.
func NewRegistry(open OpenFunc, maxRows int) *Registry {
	if open == nil {
		open = func(ds model.DataSource) (Runner, error) { return Open(ds, maxRows) }
	}
	return &Registry{open: open, runners: make(map[int64]registryEntry)}
}

// For returns the runner of ds, opening it on first use.
func (r *Registry) For(ds model.DataSource) (Runner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.runners[ds.ID]; ok {
		if reflect.DeepEqual(e.options, ds.Options) {
			return e.runner, nil
		}
		if err := e.runner.Close(); err != nil {
			log.Printf("runner: close stale runner for data source %d: %v", ds.ID, err)
		}
		delete(r.runners, ds.ID)
	}

	run, err := r.open(ds)
	if err != nil {
		return nil, err
	}
	opts := make(map[string]string, len(ds.Options))
	for k, v := range ds.Options {
		opts[k] = v
	}
	r.runners[ds.ID] = registryEntry{options: opts, runner: run}
	return run, nil
}

// Close closes every cached runner.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, e := range r.runners {
		if err := e.runner.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.runners, id)
	}
	return firstErr
}

// Open connects to a data source. duckdb and sqlite read options["path"]
// (empty means in-memory); postgres reads options["dsn"].
func Open(ds model.DataSource, maxRows int) (Runner, error) {
	driver, ok := driverFor[ds.Type]
	if !ok {
		return nil, fmt.Errorf("runner: unsupported data source type %q", ds.Type)
	}

	var dsn string
	switch ds.Type {
	case "postgres":
		dsn = ds.Options["dsn"]
		if dsn == "" {
			return nil, fmt.Errorf("runner: data source %q: dsn is required", ds.Name)
		}
	case "sqlite":
		dsn = ds.Options["path"]
		if dsn == "" {
			dsn = ":memory:"
		}
	default:
		dsn = ds.Options["path"]
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("runner: open %s data source %q: %w", ds.Type, ds.Name, err)
	}
	if dsn == "" || dsn == ":memory:" {
		// In-memory databases live per connection.
		db.SetMaxOpenConns(1)
	}
	return NewSQLRunner(db, maxRows), nil
}
