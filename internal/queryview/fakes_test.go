package queryview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/queryview/internal/model"
)

var errFake = errors.New("boom")

// fakeSource is a scriptable ResultSource. Execute hands out job ids in order
// and answers with a waiting snapshot unless onExecute says otherwise; polls
// finish the job with one row unless onPoll says otherwise.
type fakeSource struct {
	mu        sync.Mutex
	executes  []model.ExecuteRequest
	polls     []string
	cancelled []string
	cancelErr error

	onExecute func(req model.ExecuteRequest, jobID string) (model.QueryResult, error)
	onPoll    func(jobID string) (model.QueryResult, error)
}

func (f *fakeSource) Execute(ctx context.Context, req model.ExecuteRequest) (model.QueryResult, error) {
	f.mu.Lock()
	f.executes = append(f.executes, req)
	jobID := fmt.Sprintf("job-%d", len(f.executes))
	hook := f.onExecute
	f.mu.Unlock()

	if hook != nil {
		return hook(req, jobID)
	}
	return model.QueryResult{JobID: jobID, QueryID: req.QueryID, Status: model.StatusWaiting}, nil
}

func (f *fakeSource) PollJob(ctx context.Context, jobID string) (model.QueryResult, error) {
	f.mu.Lock()
	f.polls = append(f.polls, jobID)
	hook := f.onPoll
	f.mu.Unlock()

	if hook != nil {
		return hook(jobID)
	}
	return doneResult(jobID, 1), nil
}

func (f *fakeSource) CancelJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return f.cancelErr
}

func (f *fakeSource) executeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executes)
}

func (f *fakeSource) lastExecute() model.ExecuteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executes[len(f.executes)-1]
}

func (f *fakeSource) cancelledJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func doneResult(jobID string, rows int) model.QueryResult {
	out := model.QueryResult{
		JobID:       jobID,
		Status:      model.StatusDone,
		Columns:     []model.Column{{Name: "n", Type: "integer"}},
		Runtime:     0.25,
		RetrievedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	for i := 0; i < rows; i++ {
		out.Rows = append(out.Rows, map[string]any{"n": i})
	}
	return out
}

// fakeCatalog serves queries, data sources and dialog edits from memory.
type fakeCatalog struct {
	mu          sync.Mutex
	queries     map[int64]model.Query
	dataSources map[int64]model.DataSource
	dsErr       error
	editErr     error
	nextVizID   int64
	widgets     []model.Widget
}

func newFakeCatalog(queries ...model.Query) *fakeCatalog {
	c := &fakeCatalog{
		queries:     make(map[int64]model.Query),
		dataSources: map[int64]model.DataSource{1: {ID: 1, Name: "warehouse", Type: "duckdb"}},
		nextVizID:   100,
	}
	for _, q := range queries {
		c.queries[q.ID] = q
	}
	return c
}

func (c *fakeCatalog) GetQuery(ctx context.Context, id int64) (model.Query, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[id]
	if !ok {
		return model.Query{}, fmt.Errorf("query %d not found", id)
	}
	return q.Clone(), nil
}

func (c *fakeCatalog) GetDataSource(ctx context.Context, id int64) (model.DataSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dsErr != nil {
		return model.DataSource{}, c.dsErr
	}
	ds, ok := c.dataSources[id]
	if !ok {
		return model.DataSource{}, fmt.Errorf("data source %d not found", id)
	}
	return ds, nil
}

func (c *fakeCatalog) UpdateQuery(ctx context.Context, id int64, patch model.QueryPatch) (model.Query, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return model.Query{}, c.editErr
	}
	q := c.queries[id]
	if patch.Name != nil {
		q.Name = *patch.Name
	}
	if patch.Description != nil {
		q.Description = *patch.Description
	}
	if patch.ClearSchedule {
		q.Schedule = nil
	} else if patch.Schedule != nil {
		s := *patch.Schedule
		q.Schedule = &s
	}
	q.Version++
	c.queries[id] = q
	return q.Clone(), nil
}

func (c *fakeCatalog) SaveVisualization(ctx context.Context, v model.Visualization) (model.Visualization, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return model.Visualization{}, c.editErr
	}
	q := c.queries[v.QueryID]
	if v.ID == 0 {
		c.nextVizID++
		v.ID = c.nextVizID
		q.Visualizations = append(q.Visualizations, v)
	} else {
		for i := range q.Visualizations {
			if q.Visualizations[i].ID == v.ID {
				q.Visualizations[i] = v
			}
		}
	}
	c.queries[v.QueryID] = q
	return v, nil
}

func (c *fakeCatalog) DeleteVisualization(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return c.editErr
	}
	for qid, q := range c.queries {
		kept := q.Visualizations[:0:0]
		for _, v := range q.Visualizations {
			if v.ID != id {
				kept = append(kept, v)
			}
		}
		q.Visualizations = kept
		c.queries[qid] = q
	}
	return nil
}

func (c *fakeCatalog) AddWidget(ctx context.Context, dashboard string, visualizationID int64) (model.Widget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := model.Widget{ID: int64(len(c.widgets) + 1), Dashboard: dashboard, VisualizationID: visualizationID}
	c.widgets = append(c.widgets, w)
	return w, nil
}

func (c *fakeCatalog) EmbedURL(ctx context.Context, queryID, visualizationID int64) (string, error) {
	return fmt.Sprintf("http://localhost:3000/embed/query/%d/visualization/%d?token=t", queryID, visualizationID), nil
}

func (c *fakeCatalog) put(q model.Query) {
	c.mu.Lock()
	c.queries[q.ID] = q
	c.mu.Unlock()
}

// memLocation is an in-memory Location that counts writes.
type memLocation struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

func newMemLocation(values map[string]string) *memLocation {
	if values == nil {
		values = make(map[string]string)
	}
	return &memLocation{values: values}
}

func (l *memLocation) Read(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.values[key]
	return v, ok
}

func (l *memLocation) Write(key, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	if value == "" {
		delete(l.values, key)
		return
	}
	l.values[key] = value
}

func sampleQuery() model.Query {
	return model.Query{
		ID:           42,
		Name:         "Daily signups",
		QueryText:    "SELECT day, count(*) FROM signups GROUP BY day",
		DataSourceID: 1,
		CanEdit:      true,
		Parameters: []model.Parameter{
			{Name: "since", Type: model.ParamDate},
			{Name: "limit", Type: model.ParamNumber},
		},
		Visualizations: []model.Visualization{
			{ID: 1, QueryID: 42, Type: model.VisualizationTable, Name: "Table"},
			{ID: 2, QueryID: 42, Type: model.VisualizationChart, Name: "Chart"},
			{ID: 3, QueryID: 42, Type: model.VisualizationCounter, Name: "Counter"},
		},
	}
}

func fullUser() model.User {
	return model.User{Name: "local", Permissions: model.AllPermissions}
}

// collect runs cmd and returns every message it produces, flattening batches.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

type updater interface {
	Update(msg tea.Msg) tea.Cmd
}

// pump feeds every message produced by cmd back into u until no command is
// left, like the Bubble Tea runtime would.
func pump(t *testing.T, u updater, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 200 {
			t.Fatalf("pump: command chain did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		for _, msg := range collect(next) {
			if c := u.Update(msg); c != nil {
				queue = append(queue, c)
			}
		}
	}
}

// controllerUpdater adapts an ExecutionController to pump.
type controllerUpdater struct{ c *ExecutionController }

func (u controllerUpdater) Update(msg tea.Msg) tea.Cmd {
	cmd, _ := u.c.Update(msg)
	return cmd
}
