package queryview

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/queryview/internal/model"
)

const (
	lookupTimeout  = 15 * time.Second
	commandTimeout = 30 * time.Second
)

// DataSourceStatus tracks the data-source lookup for the current query.
type DataSourceStatus int

const (
	DataSourceNone DataSourceStatus = iota
	DataSourcePending
	DataSourceReady
	DataSourceFailed
)

func (s DataSourceStatus) String() string {
	switch s {
	case DataSourcePending:
		return "pending"
	case DataSourceReady:
		return "ready"
	case DataSourceFailed:
		return "failed"
	default:
		return "none"
	}
}

// Config wires a Page to its collaborators.
type Config struct {
	Queries     model.QueryLookup
	DataSources model.DataSourceLookup
	Results     model.ResultSource
	User        model.User
	Location    Location

	PollInterval       time.Duration
	FullscreenMinWidth int
	// MaxAge lets the service answer with a cached result younger than this
	// many seconds. Zero always runs the query.
	MaxAge int64
}

type queryLoadedMsg struct {
	gen   uint64
	query model.Query
	err   error
}

type dataSourceLoadedMsg struct {
	gen uint64
	ds  model.DataSource
	err error
}

type commandDoneMsg struct {
	queryID int64
	cmd     Command
	outcome Outcome
	err     error
}

// Page orchestrates one query view: the query snapshot, its parameters,
// execution, the selected visualization and the fullscreen mode.
//
// Operations return a tea.Cmd to run; whatever message it produces must be
// handed back to Update.
type Page struct {
	mu  sync.Mutex
	cfg Config

	query   *model.Query
	loading bool
	loadGen uint64

	dataSource *model.DataSource
	dsStatus   DataSourceStatus
	dsErr      error
	dsGen      uint64

	params     *ParameterStore
	tabs       *TabSelector
	exec       *ExecutionController
	fullscreen *FullscreenSync

	addingDescription bool
	notice            string
	lastErr           error

	notifier *Notifier
}

// NewPage creates an empty page. Call Load or SetQuery to show a query.
func NewPage(cfg Config) *Page {
	minWidth := cfg.FullscreenMinWidth
	if minWidth == 0 {
		minWidth = model.DefaultFullscreenMinWidth
	}
	return &Page{
		cfg:        cfg,
		params:     NewParameterStore(nil),
		tabs:       NewTabSelector(nil),
		exec:       NewExecutionController(cfg.Results, cfg.PollInterval),
		fullscreen: NewFullscreenSync(cfg.Location, minWidth),
		notifier:   NewNotifier(),
	}
}

// Subscribe returns a channel pinged after every state change.
func (p *Page) Subscribe() (<-chan struct{}, func()) {
	return p.notifier.Subscribe()
}

// mutate runs fn under the page lock and notifies subscribers when it
// reports a change.
func (p *Page) mutate(fn func() (tea.Cmd, bool)) tea.Cmd {
	p.mu.Lock()
	cmd, changed := fn()
	p.mu.Unlock()
	if changed {
		p.notifier.Broadcast()
	}
	return cmd
}

// Load fetches a query by id; the snapshot arrives through Update.
func (p *Page) Load(id int64) tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		if p.cfg.Queries == nil {
			return nil, false
		}
		p.loadGen++
		p.loading = true
		gen, queries := p.loadGen, p.cfg.Queries
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
			defer cancel()
			q, err := queries.GetQuery(ctx, id)
			return queryLoadedMsg{gen: gen, query: q, err: err}
		}, true
	})
}

// SetQuery replaces the query snapshot. It never executes.
func (p *Page) SetQuery(q model.Query) tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		p.loadGen++
		p.loading = false
		return p.setQueryLocked(q), true
	})
}

func (p *Page) setQueryLocked(q model.Query) tea.Cmd {
	prev := p.query
	next := q.Clone()
	p.query = &next

	var cmds []tea.Cmd
	newID := prev == nil || prev.ID != next.ID

	if newID || prev.QueryText != next.QueryText {
		cmds = append(cmds, p.exec.Reset())
	}
	if newID {
		p.params = NewParameterStore(next.Parameters)
		p.tabs = NewTabSelector(next.Visualizations)
		p.addingDescription = false
		p.notice = ""
		p.lastErr = nil
	} else {
		p.params.Sync(next.Parameters)
		p.tabs.Reconcile(next.Visualizations)
	}
	if prev == nil || prev.Name != next.Name {
		cmds = append(cmds, tea.SetWindowTitle(titleOf(next)))
	}
	if prev == nil || prev.DataSourceID != next.DataSourceID {
		cmds = append(cmds, p.lookupDataSourceLocked(next.DataSourceID))
	}
	return tea.Batch(cmds...)
}

func (p *Page) lookupDataSourceLocked(id int64) tea.Cmd {
	p.dsGen++
	p.dataSource = nil
	p.dsErr = nil
	if id == 0 || p.cfg.DataSources == nil {
		p.dsStatus = DataSourceNone
		return nil
	}
	p.dsStatus = DataSourcePending
	gen, lookup := p.dsGen, p.cfg.DataSources
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		ds, err := lookup.GetDataSource(ctx, id)
		return dataSourceLoadedMsg{gen: gen, ds: ds, err: err}
	}
}

func (p *Page) flagsLocked() Flags {
	if p.query == nil {
		return Flags{}
	}
	return DeriveFlags(*p.query, p.dataSource, p.cfg.User)
}

func (p *Page) snapshotLocked() Snapshot {
	return Snapshot{
		QueryID:    p.query.ID,
		QueryText:  p.query.QueryText,
		Parameters: p.params.Values(),
		MaxAge:     p.cfg.MaxAge,
	}
}

// Execute starts an execution when the query is executable, nothing is in
// flight and, unless skipDirtyGuard, no parameter edit is pending. Anything
// else is a silent no-op.
func (p *Page) Execute(skipDirtyGuard bool) tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		if p.query == nil {
			return nil, false
		}
		if !p.flagsLocked().CanExecute || p.exec.InFlight() {
			return nil, false
		}
		if !skipDirtyGuard && p.params.Dirty() {
			return nil, false
		}
		cmd := p.exec.Start(p.snapshotLocked())
		return cmd, cmd != nil
	})
}

// Refresh is Execute with the dirty guard in place.
func (p *Page) Refresh() tea.Cmd { return p.Execute(false) }

// UpdatePending records parameter edits without executing.
func (p *Page) UpdatePending(values map[string]any) {
	p.mutate(func() (tea.Cmd, bool) {
		p.params.UpdatePending(values)
		return nil, true
	})
}

// ApplyParameters commits pending edits and starts exactly one execution.
// An execution already in flight is superseded.
func (p *Page) ApplyParameters() tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		if p.query == nil {
			return nil, false
		}
		p.params.Apply()
		if !p.flagsLocked().CanExecute {
			return nil, true
		}
		return p.exec.Supersede(p.snapshotLocked()), true
	})
}

// DiscardParameters drops pending edits.
func (p *Page) DiscardParameters() {
	p.mutate(func() (tea.Cmd, bool) {
		p.params.Discard()
		return nil, true
	})
}

// Cancel asks for the running execution to stop.
func (p *Page) Cancel() tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		cmd := p.exec.Cancel()
		return cmd, cmd != nil
	})
}

// SelectVisualization selects a visualization tab. Unknown ids are ignored.
func (p *Page) SelectVisualization(id int64) bool {
	var ok bool
	p.mutate(func() (tea.Cmd, bool) {
		ok = p.tabs.Select(id)
		return nil, ok
	})
	return ok
}

// ToggleFullscreen flips the view mode and returns the location write.
func (p *Page) ToggleFullscreen() tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		return p.fullscreen.Toggle(), true
	})
}

// SetWidth records the viewport width used to gate fullscreen.
func (p *Page) SetWidth(w int) {
	p.mutate(func() (tea.Cmd, bool) {
		p.fullscreen.SetWidth(w)
		return nil, true
	})
}

// StartAddingDescription opens the inline description editor.
func (p *Page) StartAddingDescription() {
	p.mutate(func() (tea.Cmd, bool) {
		if !p.flagsLocked().CanEdit {
			return nil, false
		}
		p.addingDescription = true
		return nil, true
	})
}

// StopAddingDescription closes the inline description editor.
func (p *Page) StopAddingDescription() {
	p.mutate(func() (tea.Cmd, bool) {
		changed := p.addingDescription
		p.addingDescription = false
		return nil, changed
	})
}

// ClearNotice dismisses the current notice and error.
func (p *Page) ClearNotice() {
	p.mutate(func() (tea.Cmd, bool) {
		p.notice = ""
		p.lastErr = nil
		return nil, true
	})
}

// Run launches a dialog command against the current snapshot. Commands the
// viewer may not run are ignored.
func (p *Page) Run(c Command) tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		if p.query == nil || c == nil || !c.Allowed(p.flagsLocked()) {
			return nil, false
		}
		q := p.query.Clone()
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			out, err := c.Run(ctx, q)
			return commandDoneMsg{queryID: q.ID, cmd: c, outcome: out, err: err}
		}, false
	})
}

// Close abandons any running execution.
func (p *Page) Close() tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		return p.exec.Reset(), true
	})
}

// Update folds an async completion back into the page.
func (p *Page) Update(msg tea.Msg) tea.Cmd {
	return p.mutate(func() (tea.Cmd, bool) {
		switch msg := msg.(type) {
		case queryLoadedMsg:
			if msg.gen != p.loadGen {
				return nil, false
			}
			p.loading = false
			if msg.err != nil {
				p.lastErr = fmt.Errorf("load query: %w", msg.err)
				return nil, true
			}
			return p.setQueryLocked(msg.query), true

		case dataSourceLoadedMsg:
			if msg.gen != p.dsGen {
				return nil, false
			}
			if msg.err != nil {
				log.Printf("queryview: data source lookup failed: %v", msg.err)
				p.dsStatus = DataSourceFailed
				p.dsErr = msg.err
				return nil, true
			}
			ds := msg.ds
			p.dataSource = &ds
			p.dsStatus = DataSourceReady
			return nil, true

		case commandDoneMsg:
			return p.foldCommandLocked(msg)

		case locationSyncedMsg:
			return nil, true
		}

		cmd, handled := p.exec.Update(msg)
		return cmd, handled
	})
}

func (p *Page) foldCommandLocked(msg commandDoneMsg) (tea.Cmd, bool) {
	if p.query == nil || p.query.ID != msg.queryID {
		log.Debugf("queryview: discarding %s outcome for query %d", msg.cmd.Name(), msg.queryID)
		return nil, false
	}
	if msg.err != nil {
		p.lastErr = fmt.Errorf("%s: %w", msg.cmd.Name(), msg.err)
		return nil, true
	}
	if _, ok := msg.cmd.(UpdateDescription); ok {
		p.addingDescription = false
	}

	var cmd tea.Cmd
	out := msg.outcome
	if out.Query != nil && out.Query.ID == p.query.ID {
		cmd = p.setQueryLocked(*out.Query)
	}
	if out.Select != 0 {
		p.tabs.Select(out.Select)
	}
	if out.Notice != "" {
		p.notice = out.Notice
	}
	p.lastErr = nil
	return cmd, true
}

func titleOf(q model.Query) string {
	if q.Name == "" {
		return "New Query"
	}
	return q.Name
}
