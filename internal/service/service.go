// Package service implements the query service behind the socket RPC and
// REST surfaces: catalog reads and edits, asynchronous execution and
// signed embed links.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/queryview/internal/duckdb"
	"github.com/tinytelemetry/queryview/internal/jobs"
	"github.com/tinytelemetry/queryview/internal/journal"
	"github.com/tinytelemetry/queryview/internal/model"
	"github.com/tinytelemetry/queryview/internal/runner"
)

var (
	// ErrDataSourcePaused rejects executions against a paused data source.
	ErrDataSourcePaused = errors.New("service: data source is paused")
	// ErrPermissionDenied is returned when the configured user lacks a permission.
	ErrPermissionDenied = errors.New("service: permission denied")
)

const defaultBaseURL = "http://localhost:3000"

// Config holds service options.
type Config struct {
	User    model.User
	BaseURL string
}

// Service implements model.QueryService over the catalog store.
type Service struct {
	store   *duckdb.Store
	journal *journal.Journal
	jobs    *jobs.Manager
	runners *runner.Registry
	embed   *EmbedSigner
	user    model.User
	baseURL string
}

var _ model.QueryService = (*Service)(nil)

// New wires a service and replays catalog edits left uncommitted by a
// previous run. j and embed may be nil.
func New(ctx context.Context, store *duckdb.Store, j *journal.Journal, mgr *jobs.Manager, runners *runner.Registry, embed *EmbedSigner, cfg Config) (*Service, error) {
	if store == nil || mgr == nil || runners == nil {
		return nil, errors.New("service: store, job manager and runner registry are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	s := &Service{
		store:   store,
		journal: j,
		jobs:    mgr,
		runners: runners,
		embed:   embed,
		user:    cfg.User,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
	if err := s.replay(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close stops running jobs and closes data-source connections.
func (s *Service) Close() error {
	s.jobs.Close()
	return s.runners.Close()
}

// User returns the viewer the service acts for.
func (s *Service) User() model.User { return s.user }

// Store exposes the catalog store.
func (s *Service) Store() *duckdb.Store { return s.store }

func (s *Service) decorate(q model.Query) model.Query {
	q.CanEdit = s.user.HasPermission(model.PermEditQuery)
	return q
}

func (s *Service) require(perm string) error {
	if !s.user.HasPermission(perm) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, perm)
	}
	return nil
}

// GetQuery returns a saved query.
func (s *Service) GetQuery(ctx context.Context, id int64) (model.Query, error) {
	q, err := s.store.GetQuery(ctx, id)
	if err != nil {
		return model.Query{}, err
	}
	return s.decorate(q), nil
}

// ListQueries returns the saved queries.
func (s *Service) ListQueries(ctx context.Context) ([]model.Query, error) {
	qs, err := s.store.ListQueries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range qs {
		qs[i] = s.decorate(qs[i])
	}
	return qs, nil
}

// GetDataSource returns data-source metadata.
func (s *Service) GetDataSource(ctx context.Context, id int64) (model.DataSource, error) {
	return s.store.GetDataSource(ctx, id)
}

// Execute renders the query with the request parameters and submits a job.
func (s *Service) Execute(ctx context.Context, req model.ExecuteRequest) (model.QueryResult, error) {
	if err := s.require(model.PermExecuteQuery); err != nil {
		return model.QueryResult{}, err
	}
	q, err := s.store.GetQuery(ctx, req.QueryID)
	if err != nil {
		return model.QueryResult{}, err
	}
	ds, err := s.store.GetDataSource(ctx, q.DataSourceID)
	if err != nil {
		return model.QueryResult{}, err
	}
	if ds.Paused {
		if ds.PauseReason != "" {
			return model.QueryResult{}, fmt.Errorf("%w: %s", ErrDataSourcePaused, ds.PauseReason)
		}
		return model.QueryResult{}, ErrDataSourcePaused
	}

	text, err := runner.Render(q.QueryText, q.Parameters, req.Parameters)
	if err != nil {
		return model.QueryResult{}, err
	}
	if _, err := runner.CheckReadOnly(text); err != nil {
		return model.QueryResult{}, err
	}

	return s.jobs.Submit(ctx, jobs.Submission{
		QueryID:  q.ID,
		CacheKey: cacheKey(ds.ID, text),
		MaxAge:   req.MaxAge,
		Run: func(ctx context.Context) (model.QueryResult, error) {
			r, err := s.runners.For(ds)
			if err != nil {
				return model.QueryResult{}, err
			}
			res, err := r.Run(ctx, text)
			if err != nil {
				return model.QueryResult{}, err
			}
			if res.Truncated {
				log.Printf("service: query %d result truncated to %d rows", q.ID, len(res.Rows))
			}
			return model.QueryResult{Columns: res.Columns, Rows: res.Rows}, nil
		},
	})
}

// PollJob returns the latest job snapshot.
func (s *Service) PollJob(ctx context.Context, jobID string) (model.QueryResult, error) {
	return s.jobs.Get(jobID)
}

// CancelJob cancels a running job.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	return s.jobs.Cancel(jobID)
}

// UpdateQuery patches name, description or schedule.
func (s *Service) UpdateQuery(ctx context.Context, id int64, patch model.QueryPatch) (model.Query, error) {
	if err := s.require(model.PermEditQuery); err != nil {
		return model.Query{}, err
	}
	if patch.Schedule != nil || patch.ClearSchedule {
		if err := s.require(model.PermScheduleQuery); err != nil {
			return model.Query{}, err
		}
	}
	if err := s.record(ctx, journal.Edit{Op: journal.OpUpdateQuery, QueryID: id, Patch: &patch}); err != nil {
		return model.Query{}, err
	}
	return s.GetQuery(ctx, id)
}

// SaveVisualization creates (id 0) or replaces a visualization.
func (s *Service) SaveVisualization(ctx context.Context, v model.Visualization) (model.Visualization, error) {
	if err := s.require(model.PermEditQuery); err != nil {
		return model.Visualization{}, err
	}
	if v.Type == "" {
		v.Type = model.VisualizationTable
	}
	if v.ID == 0 {
		if _, err := s.store.GetQuery(ctx, v.QueryID); err != nil {
			return model.Visualization{}, err
		}
		id, err := s.store.NextVisualizationID(ctx)
		if err != nil {
			return model.Visualization{}, err
		}
		v.ID = id
	}
	if err := s.record(ctx, journal.Edit{Op: journal.OpPutVisualization, Visualization: &v}); err != nil {
		return model.Visualization{}, err
	}
	return v, nil
}

// DeleteVisualization removes a visualization.
func (s *Service) DeleteVisualization(ctx context.Context, id int64) error {
	if err := s.require(model.PermEditQuery); err != nil {
		return err
	}
	return s.record(ctx, journal.Edit{Op: journal.OpDeleteVisualization, VisualizationID: id})
}

// AddWidget places a visualization on a dashboard.
func (s *Service) AddWidget(ctx context.Context, dashboard string, visualizationID int64) (model.Widget, error) {
	dashboard = strings.TrimSpace(dashboard)
	if dashboard == "" {
		return model.Widget{}, errors.New("service: dashboard is required")
	}
	v, err := s.store.GetVisualization(ctx, visualizationID)
	if err != nil {
		return model.Widget{}, err
	}
	id, err := s.store.NextWidgetID(ctx)
	if err != nil {
		return model.Widget{}, err
	}
	w := model.Widget{ID: id, Dashboard: dashboard, VisualizationID: v.ID, QueryID: v.QueryID}
	if err := s.record(ctx, journal.Edit{Op: journal.OpPutWidget, Widget: &w}); err != nil {
		return model.Widget{}, err
	}
	return w, nil
}

// EmbedURL returns a signed public link to one visualization.
func (s *Service) EmbedURL(ctx context.Context, queryID, visualizationID int64) (string, error) {
	if s.embed == nil {
		return "", errors.New("service: embedding is not configured")
	}
	v, err := s.store.GetVisualization(ctx, visualizationID)
	if err != nil {
		return "", err
	}
	if v.QueryID != queryID {
		return "", fmt.Errorf("service: visualization %d does not belong to query %d: %w", visualizationID, queryID, duckdb.ErrNotFound)
	}
	token, err := s.embed.Sign(queryID, visualizationID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/embed/query/%d/visualization/%d?token=%s", s.baseURL, queryID, visualizationID, token), nil
}

// Embedded verifies an embed token and returns the query and visualization
// it unlocks.
func (s *Service) Embedded(ctx context.Context, token string, queryID, visualizationID int64) (model.Query, model.Visualization, error) {
	if s.embed == nil {
		return model.Query{}, model.Visualization{}, ErrInvalidEmbedToken
	}
	if err := s.embed.Verify(token, queryID, visualizationID); err != nil {
		return model.Query{}, model.Visualization{}, err
	}
	q, err := s.store.GetQuery(ctx, queryID)
	if err != nil {
		return model.Query{}, model.Visualization{}, err
	}
	v, ok := q.Visualization(visualizationID)
	if !ok {
		return model.Query{}, model.Visualization{}, fmt.Errorf("service: visualization %d: %w", visualizationID, duckdb.ErrNotFound)
	}
	q.CanEdit = false
	return q, v, nil
}

func cacheKey(dataSourceID int64, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", dataSourceID, text)))
	return hex.EncodeToString(sum[:])
}
