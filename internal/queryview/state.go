package queryview

import (
	"time"

	"github.com/tinytelemetry/queryview/internal/model"
)

// Footer summarizes a finished result.
type Footer struct {
	Rows        int
	Runtime     time.Duration
	RetrievedAt time.Time
}

// PageState is an immutable view of the page for renderers.
type PageState struct {
	Loaded  bool
	Loading bool
	Query   model.Query
	Title   string
	Flags   Flags

	Parameters []ParameterView
	Dirty      bool

	ExecState  ExecState
	Cancelling bool
	Result     *model.QueryResult

	SelectedVisualization int64
	HasSelection          bool

	Fullscreen          bool
	FullscreenAvailable bool
	AddingDescription   bool

	ShowAddDescription   bool
	ShowDescription      bool
	ShowParameters       bool
	ShowMetadata         bool
	ShowStatus           bool
	ShowTabs             bool
	ShowNewVisualization bool
	ShowFooter           bool
	RefreshDisabled      bool
	RefreshNowDisabled   bool
	RefreshNowLoading    bool

	Footer   Footer
	Schedule string

	DataSource       *model.DataSource
	DataSourceStatus DataSourceStatus
	DataSourceError  string

	Notice string
	Error  string
}

// SelectedVisualizationValue returns the selected visualization, if any.
func (s PageState) SelectedVisualizationValue() (model.Visualization, bool) {
	if !s.HasSelection {
		return model.Visualization{}, false
	}
	return s.Query.Visualization(s.SelectedVisualization)
}

// State returns a snapshot of the page with every derived region computed.
func (p *Page) State() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := PageState{
		Loading:    p.loading,
		Title:      "Loading",
		Parameters: p.params.Views(),
		Dirty:      p.params.Dirty(),
		ExecState:  p.exec.State(),
		Cancelling: p.exec.Cancelling(),
		Result:     p.exec.Result(),

		Fullscreen:          p.fullscreen.Enabled(),
		FullscreenAvailable: p.fullscreen.Available(),
		AddingDescription:   p.addingDescription,

		DataSourceStatus: p.dsStatus,
		Notice:           p.notice,
	}
	if p.lastErr != nil {
		st.Error = p.lastErr.Error()
	}
	if p.dsErr != nil {
		st.DataSourceError = p.dsErr.Error()
	}
	if p.dataSource != nil {
		ds := *p.dataSource
		st.DataSource = &ds
	}
	st.SelectedVisualization, st.HasSelection = p.tabs.Selected()

	if p.query == nil {
		st.RefreshDisabled = true
		st.RefreshNowDisabled = true
		return st
	}

	st.Loaded = true
	st.Query = p.query.Clone()
	st.Title = titleOf(st.Query)
	st.Flags = p.flagsLocked()
	st.Schedule = st.Query.Schedule.String()

	inFlight := p.exec.InFlight()
	hasDescription := st.Query.Description != ""
	done := st.Result != nil && st.Result.Status == model.StatusDone

	st.ShowAddDescription = !hasDescription && st.Flags.CanEdit && !st.AddingDescription && !st.Fullscreen
	st.ShowDescription = !st.Fullscreen && (hasDescription || st.AddingDescription)
	st.ShowParameters = !st.Fullscreen && p.params.Len() > 0
	st.ShowMetadata = !st.Fullscreen
	st.ShowStatus = st.Result != nil && !done
	st.ShowTabs = st.Result == nil || done
	st.ShowNewVisualization = st.Flags.CanEdit && st.Result != nil
	st.ShowFooter = done
	st.RefreshDisabled = !st.Flags.CanExecute || inFlight || st.Dirty
	st.RefreshNowDisabled = !st.Flags.CanExecute || st.Dirty
	st.RefreshNowLoading = inFlight

	if done {
		st.Footer = Footer{
			Rows:        len(st.Result.Rows),
			Runtime:     st.Result.RuntimeDuration(),
			RetrievedAt: st.Result.RetrievedAt,
		}
	}
	return st
}
