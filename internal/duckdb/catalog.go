package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/queryview/internal/model"
)

const dataSourceColumns = `id, name, type, syntax, paused, pause_reason, view_only, options`

const queryColumns = `id, name, description, query_text, data_source_id, parameters, schedule,
	api_key, is_archived, is_draft, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateDataSource inserts a data source and returns it with its id.
func (s *Store) CreateDataSource(ctx context.Context, ds model.DataSource) (model.DataSource, error) {
	opts, err := marshalJSON(ds.Options, "{}")
	if err != nil {
		return model.DataSource{}, fmt.Errorf("duckdb: create data source: %w", err)
	}
	if ds.Syntax == "" {
		ds.Syntax = "sql"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	err = s.db.QueryRowContext(ctx, `INSERT INTO data_sources
		(name, type, syntax, paused, pause_reason, view_only, options)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		ds.Name, ds.Type, ds.Syntax, ds.Paused, ds.PauseReason, ds.ViewOnly, opts,
	).Scan(&ds.ID)
	if err != nil {
		return model.DataSource{}, fmt.Errorf("duckdb: create data source: %w", err)
	}
	return ds, nil
}

// DataSourceByName looks a data source up by its unique name.
func (s *Store) DataSourceByName(ctx context.Context, name string) (model.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE name = ?`, name)
	ds, err := scanDataSource(row)
	if err != nil {
		return model.DataSource{}, fmt.Errorf("duckdb: data source %q: %w", name, err)
	}
	return ds, nil
}

// GetDataSource returns a data source including its connection options.
func (s *Store) GetDataSource(ctx context.Context, id int64) (model.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+dataSourceColumns+` FROM data_sources WHERE id = ?`, id)
	ds, err := scanDataSource(row)
	if err != nil {
		return model.DataSource{}, fmt.Errorf("duckdb: get data source %d: %w", id, err)
	}
	return ds, nil
}

// ListDataSources returns every data source ordered by id.
func (s *Store) ListDataSources(ctx context.Context) ([]model.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+dataSourceColumns+` FROM data_sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: list data sources: %w", err)
	}
	defer rows.Close()

	var out []model.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("duckdb: list data sources: %w", err)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// SetDataSourcePaused pauses or resumes query execution on a data source.
func (s *Store) SetDataSourcePaused(ctx context.Context, id int64, paused bool, reason string) error {
	if !paused {
		reason = ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE data_sources SET paused = ?, pause_reason = ? WHERE id = ?`, paused, reason, id)
	if err != nil {
		return fmt.Errorf("duckdb: pause data source %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("data source %d", id))
}

// CreateQuery inserts a query with its visualizations. A query without
// visualizations gets a default table.
func (s *Store) CreateQuery(ctx context.Context, q model.Query) (model.Query, error) {
	params, err := marshalJSON(q.Parameters, "[]")
	if err != nil {
		return model.Query{}, fmt.Errorf("duckdb: create query: %w", err)
	}
	schedule, err := marshalSchedule(q.Schedule)
	if err != nil {
		return model.Query{}, fmt.Errorf("duckdb: create query: %w", err)
	}
	vizs := q.Visualizations
	if len(vizs) == 0 {
		vizs = []model.Visualization{{Type: model.VisualizationTable, Name: "Table"}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Query{}, fmt.Errorf("duckdb: create query: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var id int64
	err = tx.QueryRowContext(ctx, `INSERT INTO queries
		(name, description, query_text, data_source_id, parameters, schedule, api_key, is_archived, is_draft, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		q.Name, q.Description, q.QueryText, q.DataSourceID, params, schedule, q.APIKey, q.IsArchived, q.IsDraft, now, now,
	).Scan(&id)
	if err != nil {
		return model.Query{}, fmt.Errorf("duckdb: create query: %w", err)
	}

	for _, v := range vizs {
		opts, err := marshalJSON(v.Options, "{}")
		if err != nil {
			return model.Query{}, fmt.Errorf("duckdb: create query: visualization %q: %w", v.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO visualizations (query_id, type, name, options) VALUES (?, ?, ?, ?)`,
			id, string(v.Type), v.Name, opts,
		); err != nil {
			return model.Query{}, fmt.Errorf("duckdb: create query: visualization %q: %w", v.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Query{}, fmt.Errorf("duckdb: create query: commit: %w", err)
	}
	return s.getQueryLocked(ctx, id)
}

// GetQuery returns a query with its visualizations.
func (s *Store) GetQuery(ctx context.Context, id int64) (model.Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.getQueryLocked(ctx, id)
}

func (s *Store) getQueryLocked(ctx context.Context, id int64) (model.Query, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = ?`, id)
	q, err := scanQuery(row)
	if err != nil {
		return model.Query{}, fmt.Errorf("duckdb: get query %d: %w", id, err)
	}
	vizs, err := s.visualizationsLocked(ctx, id)
	if err != nil {
		return model.Query{}, err
	}
	q.Visualizations = vizs
	return q, nil
}

// ListQueries returns every query (with visualizations) ordered by id.
func (s *Store) ListQueries(ctx context.Context) ([]model.Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+queryColumns+` FROM queries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: list queries: %w", err)
	}
	var out []model.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("duckdb: list queries: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("duckdb: list queries: %w", err)
	}
	rows.Close()

	for i := range out {
		vizs, err := s.visualizationsLocked(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Visualizations = vizs
	}
	return out, nil
}

// UpdateQuery applies a patch and bumps the version.
func (s *Store) UpdateQuery(ctx context.Context, id int64, patch model.QueryPatch) (model.Query, error) {
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	switch {
	case patch.ClearSchedule:
		sets = append(sets, "schedule = NULL")
	case patch.Schedule != nil:
		schedule, err := marshalSchedule(patch.Schedule)
		if err != nil {
			return model.Query{}, fmt.Errorf("duckdb: update query %d: %w", id, err)
		}
		sets = append(sets, "schedule = ?")
		args = append(args, schedule)
	}
	args = append(args, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE queries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return model.Query{}, fmt.Errorf("duckdb: update query %d: %w", id, err)
	}
	if err := requireAffected(res, fmt.Sprintf("query %d", id)); err != nil {
		return model.Query{}, err
	}
	return s.getQueryLocked(ctx, id)
}

// ArchiveQuery marks a query archived; archived queries are read-only.
func (s *Store) ArchiveQuery(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE queries SET is_archived = true, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("duckdb: archive query %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("query %d", id))
}

// NextVisualizationID reserves a visualization id so an edit can be
// journaled before it is applied.
func (s *Store) NextVisualizationID(ctx context.Context) (int64, error) {
	return s.nextval(ctx, "visualizations_id_seq")
}

// NextWidgetID reserves a widget id.
func (s *Store) NextWidgetID(ctx context.Context) (int64, error) {
	return s.nextval(ctx, "widgets_id_seq")
}

func (s *Store) nextval(ctx context.Context, seq string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var id int64
	// Sequence names are package constants.
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT nextval('%s')", seq)).Scan(&id); err != nil {
		return 0, fmt.Errorf("duckdb: nextval %s: %w", seq, err)
	}
	return id, nil
}

// PutVisualization inserts or replaces a visualization with a known id.
func (s *Store) PutVisualization(ctx context.Context, v model.Visualization) (model.Visualization, error) {
	if v.ID == 0 {
		return model.Visualization{}, errors.New("duckdb: put visualization: id is required")
	}
	opts, err := marshalJSON(v.Options, "{}")
	if err != nil {
		return model.Visualization{}, fmt.Errorf("duckdb: put visualization %d: %w", v.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) > 0 FROM queries WHERE id = ?`, v.QueryID).Scan(&exists); err != nil {
		return model.Visualization{}, fmt.Errorf("duckdb: put visualization %d: %w", v.ID, err)
	}
	if !exists {
		return model.Visualization{}, fmt.Errorf("duckdb: put visualization %d: query %d: %w", v.ID, v.QueryID, ErrNotFound)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO visualizations (id, query_id, type, name, options)
		VALUES (?, ?, ?, ?, ?)`, v.ID, v.QueryID, string(v.Type), v.Name, opts); err != nil {
		return model.Visualization{}, fmt.Errorf("duckdb: put visualization %d: %w", v.ID, err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE queries SET updated_at = ? WHERE id = ?`, time.Now().UTC(), v.QueryID); err != nil {
		return model.Visualization{}, fmt.Errorf("duckdb: put visualization %d: touch query: %w", v.ID, err)
	}
	return v, nil
}

// GetVisualization returns one visualization.
func (s *Store) GetVisualization(ctx context.Context, id int64) (model.Visualization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT id, query_id, type, name, options FROM visualizations WHERE id = ?`, id)
	v, err := scanVisualization(row)
	if err != nil {
		return model.Visualization{}, fmt.Errorf("duckdb: get visualization %d: %w", id, err)
	}
	return v, nil
}

// DeleteVisualization removes a visualization and the widgets showing it.
func (s *Store) DeleteVisualization(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM widgets WHERE visualization_id = ?`, id); err != nil {
		return fmt.Errorf("duckdb: delete visualization %d: widgets: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM visualizations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("duckdb: delete visualization %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("visualization %d", id))
}

func (s *Store) visualizationsLocked(ctx context.Context, queryID int64) ([]model.Visualization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_id, type, name, options FROM visualizations WHERE query_id = ? ORDER BY id`, queryID)
	if err != nil {
		return nil, fmt.Errorf("duckdb: visualizations of query %d: %w", queryID, err)
	}
	defer rows.Close()

	var out []model.Visualization
	for rows.Next() {
		v, err := scanVisualization(rows)
		if err != nil {
			return nil, fmt.Errorf("duckdb: visualizations of query %d: %w", queryID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PutWidget inserts or replaces a dashboard widget with a known id.
func (s *Store) PutWidget(ctx context.Context, w model.Widget) (model.Widget, error) {
	if w.ID == 0 {
		return model.Widget{}, errors.New("duckdb: put widget: id is required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO widgets (id, dashboard, visualization_id, query_id, created_at)
		VALUES (?, ?, ?, ?, ?)`, w.ID, w.Dashboard, w.VisualizationID, w.QueryID, w.CreatedAt); err != nil {
		return model.Widget{}, fmt.Errorf("duckdb: put widget %d: %w", w.ID, err)
	}
	return w, nil
}

// ListWidgets returns the widgets of a dashboard in creation order.
func (s *Store) ListWidgets(ctx context.Context, dashboard string) ([]model.Widget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, dashboard, visualization_id, query_id, created_at
		FROM widgets WHERE dashboard = ? ORDER BY id`, dashboard)
	if err != nil {
		return nil, fmt.Errorf("duckdb: list widgets: %w", err)
	}
	defer rows.Close()

	var out []model.Widget
	for rows.Next() {
		var w model.Widget
		if err := rows.Scan(&w.ID, &w.Dashboard, &w.VisualizationID, &w.QueryID, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("duckdb: list widgets: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanDataSource(row rowScanner) (model.DataSource, error) {
	var (
		ds   model.DataSource
		opts string
	)
	if err := row.Scan(&ds.ID, &ds.Name, &ds.Type, &ds.Syntax, &ds.Paused, &ds.PauseReason, &ds.ViewOnly, &opts); err != nil {
		return model.DataSource{}, notFound(err)
	}
	if err := json.Unmarshal([]byte(opts), &ds.Options); err != nil {
		return model.DataSource{}, fmt.Errorf("decode options: %w", err)
	}
	return ds, nil
}

func scanQuery(row rowScanner) (model.Query, error) {
	var (
		q        model.Query
		params   string
		schedule sql.NullString
	)
	err := row.Scan(&q.ID, &q.Name, &q.Description, &q.QueryText, &q.DataSourceID, &params, &schedule,
		&q.APIKey, &q.IsArchived, &q.IsDraft, &q.Version, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return model.Query{}, notFound(err)
	}
	if err := json.Unmarshal([]byte(params), &q.Parameters); err != nil {
		return model.Query{}, fmt.Errorf("decode parameters: %w", err)
	}
	if schedule.Valid && schedule.String != "" {
		q.Schedule = &model.Schedule{}
		if err := json.Unmarshal([]byte(schedule.String), q.Schedule); err != nil {
			return model.Query{}, fmt.Errorf("decode schedule: %w", err)
		}
	}
	q.IsSafe = safeParameters(q.Parameters)
	return q, nil
}

func scanVisualization(row rowScanner) (model.Visualization, error) {
	var (
		v    model.Visualization
		typ  string
		opts string
	)
	if err := row.Scan(&v.ID, &v.QueryID, &typ, &v.Name, &opts); err != nil {
		return model.Visualization{}, notFound(err)
	}
	v.Type = model.VisualizationType(typ)
	if err := json.Unmarshal([]byte(opts), &v.Options); err != nil {
		return model.Visualization{}, fmt.Errorf("decode options: %w", err)
	}
	return v, nil
}

// safeParameters reports whether a query can run without execute
// permission: free-text parameters are the injection vector.
func safeParameters(params []model.Parameter) bool {
	for _, p := range params {
		if p.Type == model.ParamText || p.Type == "" {
			return false
		}
	}
	return true
}

func marshalJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func marshalSchedule(s *model.Schedule) (any, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("duckdb: %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("duckdb: %s: %w", what, ErrNotFound)
	}
	return nil
}
