package tui

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

var errNotFound = errors.New("not found")

// fakeService is an in-memory model.QueryService.
type fakeService struct {
	mu        sync.Mutex
	queries   map[int64]model.Query
	nextVis   int64
	nextJob   int
	hold      bool
	executes  []model.ExecuteRequest
	cancelled []string
	widgets   []model.Widget
}

var _ model.QueryService = (*fakeService)(nil)

func newFakeService() *fakeService {
	return &fakeService{
		nextVis: 100,
		queries: map[int64]model.Query{
			1: {
				ID:           1,
				Name:         "Daily revenue",
				QueryText:    "SELECT day, total FROM revenue WHERE n < {{ n }}",
				DataSourceID: 1,
				CanEdit:      true,
				Parameters: []model.Parameter{
					{Name: "n", Title: "Limit", Type: model.ParamNumber, Value: 3.0},
				},
				Visualizations: []model.Visualization{
					{ID: 10, QueryID: 1, Type: model.VisualizationTable, Name: "Table"},
					{ID: 11, QueryID: 1, Type: model.VisualizationChart, Name: "Chart", Options: map[string]any{"x": "day", "y": "total"}},
				},
			},
			2: {
				ID:           2,
				Name:         "Signups",
				QueryText:    "SELECT 1",
				DataSourceID: 1,
				CanEdit:      true,
			},
		},
	}
}

func (f *fakeService) ListQueries(context.Context) ([]model.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Query
	for id := int64(1); id <= int64(len(f.queries)); id++ {
		if q, ok := f.queries[id]; ok {
			out = append(out, q.Clone())
		}
	}
	return out, nil
}

func (f *fakeService) GetQuery(_ context.Context, id int64) (model.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queries[id]
	if !ok {
		return model.Query{}, errNotFound
	}
	return q.Clone(), nil
}

func (f *fakeService) GetDataSource(_ context.Context, id int64) (model.DataSource, error) {
	if id != 1 {
		return model.DataSource{}, errNotFound
	}
	return model.DataSource{ID: 1, Name: "warehouse", Type: "duckdb"}, nil
}

func (f *fakeService) Execute(_ context.Context, req model.ExecuteRequest) (model.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes = append(f.executes, req)
	f.nextJob++
	return model.QueryResult{JobID: fmt.Sprintf("job-%d", f.nextJob), QueryID: req.QueryID, Status: model.StatusWaiting}, nil
}

func (f *fakeService) PollJob(_ context.Context, jobID string) (model.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hold {
		return model.QueryResult{JobID: jobID, Status: model.StatusProcessing}, nil
	}
	return model.QueryResult{
		JobID:   jobID,
		Status:  model.StatusDone,
		Columns: []model.Column{{Name: "day", Type: "varchar"}, {Name: "total", Type: "double"}},
		Rows: []map[string]any{
			{"day": "mon", "total": 12.5},
			{"day": "tue", "total": 30.0},
		},
		Runtime:     0.25,
		RetrievedAt: time.Now(),
	}, nil
}

func (f *fakeService) CancelJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeService) UpdateQuery(_ context.Context, id int64, patch model.QueryPatch) (model.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queries[id]
	if !ok {
		return model.Query{}, errNotFound
	}
	if patch.Name != nil {
		q.Name = *patch.Name
	}
	if patch.Description != nil {
		q.Description = *patch.Description
	}
	if patch.Schedule != nil {
		s := *patch.Schedule
		q.Schedule = &s
	}
	if patch.ClearSchedule {
		q.Schedule = nil
	}
	q.Version++
	f.queries[id] = q
	return q.Clone(), nil
}

func (f *fakeService) SaveVisualization(_ context.Context, v model.Visualization) (model.Visualization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queries[v.QueryID]
	if !ok {
		return model.Visualization{}, errNotFound
	}
	if v.ID == 0 {
		f.nextVis++
		v.ID = f.nextVis
		q.Visualizations = append(q.Visualizations, v)
	} else {
		for i := range q.Visualizations {
			if q.Visualizations[i].ID == v.ID {
				q.Visualizations[i] = v
			}
		}
	}
	f.queries[v.QueryID] = q
	return v, nil
}

func (f *fakeService) DeleteVisualization(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for qid, q := range f.queries {
		kept := q.Visualizations[:0]
		for _, v := range q.Visualizations {
			if v.ID != id {
				kept = append(kept, v)
			}
		}
		q.Visualizations = kept
		f.queries[qid] = q
	}
	return nil
}

func (f *fakeService) AddWidget(_ context.Context, dashboard string, visualizationID int64) (model.Widget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := model.Widget{ID: int64(len(f.widgets) + 1), Dashboard: dashboard, VisualizationID: visualizationID}
	f.widgets = append(f.widgets, w)
	return w, nil
}

func (f *fakeService) EmbedURL(_ context.Context, queryID, visualizationID int64) (string, error) {
	return fmt.Sprintf("http://localhost:3000/embed/query/%d/visualization/%d?token=t", queryID, visualizationID), nil
}

func (f *fakeService) lastExecute() model.ExecuteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.executes) == 0 {
		return model.ExecuteRequest{}
	}
	return f.executes[len(f.executes)-1]
}

// settleTimeout bounds how long collect waits on one command. A command that
// is still blocked after it, like an idle change watch, yields nothing.
const settleTimeout = 250 * time.Millisecond

// collect runs cmd and flattens batches into their messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(settleTimeout):
		return nil
	}
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

// drive feeds every message produced by cmd back into p until the chain
// settles. Quit messages are dropped.
func drive(t *testing.T, p Page, cmd tea.Cmd) *PageNav {
	t.Helper()
	var nav *PageNav
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 500 {
			t.Fatal("drive: command chain did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		for _, msg := range collect(next) {
			if _, ok := msg.(tea.QuitMsg); ok {
				continue
			}
			c, n := p.Update(msg)
			if n != nil {
				nav = n
			}
			if c != nil {
				queue = append(queue, c)
			}
		}
	}
	return nav
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "ctrl+x":
		return tea.KeyMsg{Type: tea.KeyCtrlX}
	case "alt+f":
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f"), Alt: true}
	case "alt+enter":
		return tea.KeyMsg{Type: tea.KeyEnter, Alt: true}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends each key to p and drives the resulting commands.
func press(t *testing.T, p Page, keys ...string) *PageNav {
	t.Helper()
	var nav *PageNav
	for _, k := range keys {
		cmd, n := p.Update(keyMsg(k))
		if n != nil {
			nav = n
		}
		if got := drive(t, p, cmd); got != nil {
			nav = got
		}
	}
	return nav
}
