package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/queryview/internal/model"
	"github.com/tinytelemetry/queryview/internal/queryview"
)

// Page ids.
const (
	QueryPageID = "query"
	ListPageID  = "queries"
)

// QueryPageConfig wires the query page to its backend.
type QueryPageConfig struct {
	Service            model.QueryService
	User               model.User
	Location           *queryview.URLState
	PollInterval       time.Duration
	FullscreenMinWidth int
	MaxAge             int64
}

// QueryPage shows a single query: parameters, execution status, the
// selected visualization and the dialogs that edit them.
type QueryPage struct {
	ModalStack

	svc   model.QueryService
	page  *queryview.Page
	loc   *queryview.URLState
	keys  KeyMap
	table viewport.Model
	spin  spinner.Model
	now   func() time.Time

	queryID int64
	width   int
	height  int

	changes  <-chan struct{}
	unwatch  func()
	shownJob string
}

// pageChangedMsg is delivered when the page state changed. ch identifies the
// subscription it came from so pings of a released one are dropped.
type pageChangedMsg struct{ ch <-chan struct{} }

// NewQueryPage creates the page. Enter it with a query id to show a query.
func NewQueryPage(cfg QueryPageConfig) *QueryPage {
	loc := cfg.Location
	if loc == nil {
		loc, _ = queryview.ParseURLState("/")
	}
	page := queryview.NewPage(queryview.Config{
		Queries:            cfg.Service,
		DataSources:        cfg.Service,
		Results:            cfg.Service,
		User:               cfg.User,
		Location:           loc,
		PollInterval:       cfg.PollInterval,
		FullscreenMinWidth: cfg.FullscreenMinWidth,
		MaxAge:             cfg.MaxAge,
	})
	return &QueryPage{
		svc:   cfg.Service,
		page:  page,
		loc:   loc,
		keys:  DefaultKeyMap(),
		table: viewport.New(80, 10),
		spin:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(mutedStyle)),
		now:   time.Now,
	}
}

func (p *QueryPage) ID() string { return QueryPageID }

// State exposes the current page state.
func (p *QueryPage) State() queryview.PageState { return p.page.State() }

// Location returns the shareable location of the page.
func (p *QueryPage) Location() string { return p.loc.String() }

// Init subscribes to page changes, replacing any earlier subscription.
func (p *QueryPage) Init() tea.Cmd {
	p.release()
	p.changes, p.unwatch = p.page.Subscribe()
	return waitForChange(p.changes)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return pageChangedMsg{ch: ch}
	}
}

func (p *QueryPage) release() {
	if p.unwatch != nil {
		p.unwatch()
		p.unwatch, p.changes = nil, nil
	}
}

// syncView keeps view-local state in step with the page. A new result
// scrolls the table back to the top.
func (p *QueryPage) syncView() {
	job := ""
	if res := p.page.State().Result; res != nil {
		job = res.JobID
	}
	if job != p.shownJob {
		p.shownJob = job
		p.table.GotoTop()
	}
}

// Enter shows the query with the given id (int64).
func (p *QueryPage) Enter(params interface{}) tea.Cmd {
	id, ok := params.(int64)
	if !ok || id == 0 {
		return nil
	}
	return p.Open(id)
}

// Open loads a query; switching ids abandons the previous execution.
func (p *QueryPage) Open(id int64) tea.Cmd {
	p.queryID = id
	p.modals = nil
	p.table.GotoTop()
	p.loc.SetPath(fmt.Sprintf("/queries/%d", id))
	return p.page.Load(id)
}

// Close abandons any running execution and stops watching the page.
func (p *QueryPage) Close() tea.Cmd {
	p.release()
	return p.page.Close()
}

func (p *QueryPage) busy() bool {
	st := p.page.State()
	return st.Loading || st.RefreshNowLoading
}

// withSpinner starts the spinner next to cmd when the page became busy.
func (p *QueryPage) withSpinner(cmd tea.Cmd) tea.Cmd {
	if cmd == nil || !p.busy() {
		return cmd
	}
	return tea.Batch(cmd, p.spin.Tick)
}

func (p *QueryPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		p.page.SetWidth(msg.Width)
		return nil, nil

	case pageChangedMsg:
		if msg.ch == nil || msg.ch != p.changes {
			return nil, nil
		}
		p.syncView()
		return waitForChange(p.changes), nil

	case spinner.TickMsg:
		if !p.busy() {
			return nil, nil
		}
		var cmd tea.Cmd
		p.spin, cmd = p.spin.Update(msg)
		return cmd, nil

	case tea.KeyMsg:
		if key.Matches(msg, p.keys.ForceQuit) {
			return tea.Quit, nil
		}
		if p.HasModal() {
			return p.withSpinner(p.updateTopModal(msg)), nil
		}
		return p.handleKey(msg)
	}

	return p.page.Update(msg), nil
}

func (p *QueryPage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	st := p.page.State()
	k := p.keys

	switch {
	case key.Matches(msg, k.Quit):
		return tea.Quit, nil
	case key.Matches(msg, k.Help):
		p.PushModal(NewHelpModal("Query view keys", k.QueryHelp()))
	case key.Matches(msg, k.Escape):
		if st.Notice != "" || st.Error != "" {
			p.page.ClearNotice()
			return nil, nil
		}
		if st.Fullscreen {
			return p.page.ToggleFullscreen(), nil
		}
	case key.Matches(msg, k.Back):
		return p.Close(), &PageNav{PageID: ListPageID, Params: p.queryID}

	case key.Matches(msg, k.Refresh):
		return p.withSpinner(p.page.Refresh()), nil
	case key.Matches(msg, k.Cancel):
		return p.page.Cancel(), nil
	case key.Matches(msg, k.Fullscreen):
		return p.page.ToggleFullscreen(), nil
	case key.Matches(msg, k.Parameters):
		if st.ShowParameters {
			p.PushModal(NewParamsModal(st.Parameters, p.page.UpdatePending, p.page.ApplyParameters, p.page.DiscardParameters))
		}

	case key.Matches(msg, k.NextTab):
		p.selectTab(st, 1)
	case key.Matches(msg, k.PrevTab):
		p.selectTab(st, -1)
	case key.Matches(msg, k.Up):
		p.table.ScrollUp(1)
	case key.Matches(msg, k.Down):
		p.table.ScrollDown(1)
	case key.Matches(msg, k.PageUp):
		p.table.HalfPageUp()
	case key.Matches(msg, k.PageDown):
		p.table.HalfPageDown()

	case key.Matches(msg, k.Description):
		p.openDescription(st)
	case key.Matches(msg, k.Schedule):
		p.openSchedule(st)
	case key.Matches(msg, k.NewVisualization):
		if st.ShowNewVisualization {
			p.PushModal(NewVisualizationModal(model.Visualization{Type: model.VisualizationTable}, func(v model.Visualization) tea.Cmd {
				return p.page.Run(queryview.AddVisualization{Service: p.svc, Visualization: v})
			}))
		}
	case key.Matches(msg, k.EditVisualization):
		if v, ok := st.SelectedVisualizationValue(); ok && st.Flags.CanEdit {
			p.PushModal(NewVisualizationModal(v, func(v model.Visualization) tea.Cmd {
				return p.page.Run(queryview.EditVisualization{Service: p.svc, Visualization: v})
			}))
		}
	case key.Matches(msg, k.DeleteVisualization):
		if v, ok := st.SelectedVisualizationValue(); ok && st.Flags.CanEdit {
			p.PushModal(NewConfirmModal("delete-visualization", fmt.Sprintf("Delete visualization %q?", v.Name), func() tea.Cmd {
				return p.page.Run(queryview.DeleteVisualization{Service: p.svc, ID: v.ID})
			}))
		}
	case key.Matches(msg, k.AddToDashboard):
		if st.HasSelection {
			vid := st.SelectedVisualization
			p.PushModal(NewInputModal("dashboard", "Add to dashboard", "Dashboard name", "", requireText, func(name string) tea.Cmd {
				return p.page.Run(queryview.AddToDashboard{Service: p.svc, Dashboard: name, VisualizationID: vid})
			}))
		}
	case key.Matches(msg, k.Embed):
		if st.HasSelection {
			return p.page.Run(queryview.Embed{Service: p.svc, VisualizationID: st.SelectedVisualization}), nil
		}
	}
	return nil, nil
}

func (p *QueryPage) selectTab(st queryview.PageState, delta int) {
	list := st.Query.Visualizations
	if len(list) == 0 {
		return
	}
	idx := 0
	for i, v := range list {
		if v.ID == st.SelectedVisualization {
			idx = i
		}
	}
	idx = (idx + delta + len(list)) % len(list)
	if p.page.SelectVisualization(list[idx].ID) {
		p.table.GotoTop()
	}
}

func (p *QueryPage) openDescription(st queryview.PageState) {
	if !st.Flags.CanEdit || st.Fullscreen {
		return
	}
	p.page.StartAddingDescription()
	m := NewInputModal("description", "Description", "Describe this query", st.Query.Description, nil, func(text string) tea.Cmd {
		return p.page.Run(queryview.UpdateDescription{Service: p.svc, Description: strings.TrimSpace(text)})
	})
	p.PushModal(m.OnCancel(p.page.StopAddingDescription))
}

func (p *QueryPage) openSchedule(st queryview.PageState) {
	if !st.Flags.CanSchedule {
		return
	}
	current := ""
	if st.Query.Schedule != nil {
		current = strconv.FormatInt(st.Query.Schedule.Interval/60, 10)
	}
	p.PushModal(NewInputModal("schedule", "Refresh schedule", "Refresh every N minutes (0 = never)", current, validateMinutes, func(text string) tea.Cmd {
		minutes, _ := parseMinutes(text)
		var sched *model.Schedule
		if minutes > 0 {
			sched = &model.Schedule{Interval: minutes * 60}
		}
		return p.page.Run(queryview.EditSchedule{Service: p.svc, Schedule: sched})
	}))
}

func requireText(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("a value is required")
	}
	return nil
}

func parseMinutes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("enter a whole number of minutes")
	}
	return n, nil
}

func validateMinutes(s string) error {
	_, err := parseMinutes(s)
	return err
}
