// Package jobs runs query executions in the background and tracks their
// status until a client polls the terminal result.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/tinytelemetry/queryview/internal/model"
)

var (
	// ErrJobNotFound is returned for unknown or pruned job ids.
	ErrJobNotFound = errors.New("jobs: job not found")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("jobs: manager closed")
)

// CancelledMessage is the error text of a job cancelled by a client.
const CancelledMessage = "Query cancelled"

const (
	defaultMaxConcurrent = 4
	defaultRetention     = 10 * time.Minute
	defaultCacheTTL      = 24 * time.Hour
)

// RunFunc produces the columns and rows of one execution.
type RunFunc func(ctx context.Context) (model.QueryResult, error)

// Submission describes one execution request.
type Submission struct {
	QueryID int64
	// CacheKey identifies equivalent executions. Empty disables caching.
	CacheKey string
	// MaxAge in seconds: 0 always runs, a negative value accepts any cached
	// result, a positive value accepts cached results at most that old.
	MaxAge int64
	Run    RunFunc
}

// Config tunes a Manager. Zero values pick defaults.
type Config struct {
	MaxConcurrent int64
	QueryTimeout  time.Duration
	Retention     time.Duration
	Cache         ResultCache
	CacheTTL      time.Duration
	Metrics       *Metrics
}

type job struct {
	result     model.QueryResult
	ctx        context.Context
	cancel     context.CancelFunc
	finishedAt time.Time
}

func (j *job) terminal() bool { return j.result.Status.Terminal() }

// Manager owns running and recently finished jobs.
type Manager struct {
	mu     sync.Mutex
	jobs   map[string]*job
	sem    *semaphore.Weighted
	cfg    Config
	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	now    func() time.Time
}

// NewManager creates a manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = model.DefaultQueryTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		jobs: make(map[string]*job),
		sem:  semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:  cfg,
		ctx:  ctx,
		stop: stop,
		now:  time.Now,
	}
}

// Submit starts a job and returns its first snapshot. A fresh enough cached
// result is returned as an already finished job.
func (m *Manager) Submit(ctx context.Context, sub Submission) (model.QueryResult, error) {
	if sub.Run == nil {
		return model.QueryResult{}, errors.New("jobs: submission has no run func")
	}

	if cached, ok := m.lookupCache(ctx, sub); ok {
		return cached, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.QueryResult{}, ErrClosed
	}
	m.pruneLocked()

	jobCtx, cancel := context.WithCancel(m.ctx)
	now := m.now().UTC()
	j := &job{
		result: model.QueryResult{
			JobID:     uuid.NewString(),
			QueryID:   sub.QueryID,
			Status:    model.StatusWaiting,
			UpdatedAt: now,
		},
		ctx:    jobCtx,
		cancel: cancel,
	}
	m.jobs[j.result.JobID] = j
	m.cfg.Metrics.submitted()

	m.wg.Add(1)
	go m.run(jobCtx, j.result.JobID, sub)
	return j.result, nil
}

func (m *Manager) lookupCache(ctx context.Context, sub Submission) (model.QueryResult, bool) {
	if m.cfg.Cache == nil || sub.CacheKey == "" || sub.MaxAge == 0 {
		return model.QueryResult{}, false
	}
	res, ok, err := m.cfg.Cache.Get(ctx, sub.CacheKey)
	if err != nil {
		log.Printf("jobs: cache get %s: %v", sub.CacheKey, err)
		return model.QueryResult{}, false
	}
	if !ok {
		m.cfg.Metrics.cacheLookup(false)
		return model.QueryResult{}, false
	}
	if sub.MaxAge > 0 && m.now().Sub(res.RetrievedAt) > time.Duration(sub.MaxAge)*time.Second {
		m.cfg.Metrics.cacheLookup(false)
		return model.QueryResult{}, false
	}
	m.cfg.Metrics.cacheLookup(true)

	res.JobID = uuid.NewString()
	res.QueryID = sub.QueryID
	res.Status = model.StatusDone
	res.UpdatedAt = m.now().UTC()

	m.mu.Lock()
	m.jobs[res.JobID] = &job{result: res, ctx: m.ctx, cancel: func() {}, finishedAt: m.now()}
	m.mu.Unlock()
	return res, true
}

func (m *Manager) run(ctx context.Context, id string, sub Submission) {
	defer m.wg.Done()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(id, model.QueryResult{}, err, time.Time{})
		return
	}
	defer m.sem.Release(1)

	if !m.transition(id, model.StatusProcessing) {
		return
	}
	m.cfg.Metrics.running(1)
	defer m.cfg.Metrics.running(-1)

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
	defer cancel()

	started := m.now()
	res, err := sub.Run(runCtx)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("query exceeded the %s timeout", m.cfg.QueryTimeout)
	}
	m.finish(id, res, err, started)

	if err != nil || m.cfg.Cache == nil || sub.CacheKey == "" {
		return
	}
	if final, gerr := m.Get(id); gerr == nil && final.Status == model.StatusDone {
		if perr := m.cfg.Cache.Put(context.Background(), sub.CacheKey, final, m.cfg.CacheTTL); perr != nil {
			log.Printf("jobs: cache put %s: %v", sub.CacheKey, perr)
		}
	}
}

// transition moves a non-terminal job to status and reports whether it did.
func (m *Manager) transition(id string, status model.ExecutionStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.terminal() {
		return false
	}
	j.result.Status = status
	j.result.UpdatedAt = m.now().UTC()
	return true
}

// finish records the outcome unless the job already reached a terminal
// status, which happens when a client cancelled it first.
func (m *Manager) finish(id string, res model.QueryResult, err error, started time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.terminal() {
		return
	}
	// Detach the job from the manager context.
	j.cancel()

	now := m.now()
	j.finishedAt = now
	j.result.UpdatedAt = now.UTC()
	if !started.IsZero() {
		j.result.Runtime = now.Sub(started).Seconds()
	}
	if err != nil {
		j.result.Status = model.StatusFailed
		j.result.Error = err.Error()
		if errors.Is(err, context.Canceled) {
			j.result.Error = CancelledMessage
		}
		m.cfg.Metrics.finished(model.StatusFailed, j.result.Runtime)
		return
	}
	j.result.Status = model.StatusDone
	j.result.Columns = res.Columns
	j.result.Rows = res.Rows
	j.result.RetrievedAt = now.UTC()
	m.cfg.Metrics.finished(model.StatusDone, j.result.Runtime)
}

// Get returns the latest snapshot of a job.
func (m *Manager) Get(id string) (model.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return model.QueryResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.result, nil
}

// Cancel stops a job. Cancelling a finished job is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.terminal() {
		return nil
	}
	j.cancel()
	now := m.now()
	j.finishedAt = now
	j.result.Status = model.StatusFailed
	j.result.Error = CancelledMessage
	j.result.UpdatedAt = now.UTC()
	m.cfg.Metrics.finished(model.StatusFailed, 0)
	return nil
}

// Len returns the number of tracked jobs.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *Manager) pruneLocked() {
	cutoff := m.now().Add(-m.cfg.Retention)
	for id, j := range m.jobs {
		if j.terminal() && j.finishedAt.Before(cutoff) {
			j.cancel()
			delete(m.jobs, id)
		}
	}
}

// Close cancels running jobs and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()
	m.wg.Wait()
}
