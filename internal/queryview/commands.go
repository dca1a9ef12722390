package queryview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tinytelemetry/queryview/internal/model"
)

// EditService is what dialog commands need from the backend.
type EditService interface {
	model.QueryLookup
	model.QueryEditor
}

// Outcome is what a completed dialog hands back to the page.
type Outcome struct {
	// Query replaces the current snapshot when non-nil.
	Query *model.Query
	// Select is the visualization to select after reconciliation (0 = keep).
	Select int64
	// Notice is shown to the user, e.g. an embed URL.
	Notice string
}

// Command is one dialog action. Run receives the query snapshot current
// at launch time.
type Command interface {
	Name() string
	Allowed(f Flags) bool
	Run(ctx context.Context, q model.Query) (Outcome, error)
}

// UpdateDescription saves a new description.
type UpdateDescription struct {
	Service     EditService
	Description string
}

func (c UpdateDescription) Name() string         { return "update description" }
func (c UpdateDescription) Allowed(f Flags) bool { return f.CanEdit }

func (c UpdateDescription) Run(ctx context.Context, q model.Query) (Outcome, error) {
	desc := c.Description
	updated, err := c.Service.UpdateQuery(ctx, q.ID, model.QueryPatch{Description: &desc})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Query: &updated}, nil
}

// EditSchedule replaces the refresh schedule. A nil Schedule clears it.
type EditSchedule struct {
	Service  EditService
	Schedule *model.Schedule
}

func (c EditSchedule) Name() string         { return "edit schedule" }
func (c EditSchedule) Allowed(f Flags) bool { return f.CanSchedule }

func (c EditSchedule) Run(ctx context.Context, q model.Query) (Outcome, error) {
	patch := model.QueryPatch{Schedule: c.Schedule, ClearSchedule: c.Schedule == nil}
	updated, err := c.Service.UpdateQuery(ctx, q.ID, patch)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Query: &updated}, nil
}

// AddVisualization creates a visualization and selects it.
type AddVisualization struct {
	Service       EditService
	Visualization model.Visualization
}

func (c AddVisualization) Name() string         { return "add visualization" }
func (c AddVisualization) Allowed(f Flags) bool { return f.CanEdit }

func (c AddVisualization) Run(ctx context.Context, q model.Query) (Outcome, error) {
	v := c.Visualization
	v.ID = 0
	v.QueryID = q.ID
	if strings.TrimSpace(v.Name) == "" {
		v.Name = defaultVisualizationName(v.Type)
	}
	saved, err := c.Service.SaveVisualization(ctx, v)
	if err != nil {
		return Outcome{}, err
	}
	updated, err := c.Service.GetQuery(ctx, q.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Query: &updated, Select: saved.ID}, nil
}

// EditVisualization saves changes to an existing visualization.
type EditVisualization struct {
	Service       EditService
	Visualization model.Visualization
}

func (c EditVisualization) Name() string         { return "edit visualization" }
func (c EditVisualization) Allowed(f Flags) bool { return f.CanEdit }

func (c EditVisualization) Run(ctx context.Context, q model.Query) (Outcome, error) {
	if _, ok := q.Visualization(c.Visualization.ID); !ok {
		return Outcome{}, fmt.Errorf("visualization %d not found", c.Visualization.ID)
	}
	v := c.Visualization
	v.QueryID = q.ID
	if _, err := c.Service.SaveVisualization(ctx, v); err != nil {
		return Outcome{}, err
	}
	updated, err := c.Service.GetQuery(ctx, q.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Query: &updated}, nil
}

// DeleteVisualization removes a visualization; the selection reconciles.
type DeleteVisualization struct {
	Service EditService
	ID      int64
}

func (c DeleteVisualization) Name() string         { return "delete visualization" }
func (c DeleteVisualization) Allowed(f Flags) bool { return f.CanEdit }

func (c DeleteVisualization) Run(ctx context.Context, q model.Query) (Outcome, error) {
	if err := c.Service.DeleteVisualization(ctx, c.ID); err != nil {
		return Outcome{}, err
	}
	updated, err := c.Service.GetQuery(ctx, q.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Query: &updated}, nil
}

// AddToDashboard places a visualization on a dashboard.
type AddToDashboard struct {
	Service         EditService
	Dashboard       string
	VisualizationID int64
}

func (c AddToDashboard) Name() string       { return "add to dashboard" }
func (c AddToDashboard) Allowed(Flags) bool { return true }

func (c AddToDashboard) Run(ctx context.Context, q model.Query) (Outcome, error) {
	dashboard := strings.TrimSpace(c.Dashboard)
	if dashboard == "" {
		return Outcome{}, errors.New("dashboard name is required")
	}
	if _, ok := q.Visualization(c.VisualizationID); !ok {
		return Outcome{}, fmt.Errorf("visualization %d not found", c.VisualizationID)
	}
	w, err := c.Service.AddWidget(ctx, dashboard, c.VisualizationID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: fmt.Sprintf("Added to dashboard %q (widget %d)", w.Dashboard, w.ID)}, nil
}

// Embed produces a shareable embed URL for a visualization.
type Embed struct {
	Service         EditService
	VisualizationID int64
}

func (c Embed) Name() string       { return "embed" }
func (c Embed) Allowed(Flags) bool { return true }

func (c Embed) Run(ctx context.Context, q model.Query) (Outcome, error) {
	url, err := c.Service.EmbedURL(ctx, q.ID, c.VisualizationID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: url}, nil
}

func defaultVisualizationName(t model.VisualizationType) string {
	switch t {
	case model.VisualizationChart:
		return "Chart"
	case model.VisualizationCounter:
		return "Counter"
	default:
		return "Table"
	}
}
