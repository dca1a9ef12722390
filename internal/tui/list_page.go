package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tinytelemetry/queryview/internal/model"
)

const listTimeout = 15 * time.Second

type queriesLoadedMsg struct {
	queries []model.Query
	err     error
}

// ListPage lists saved queries and opens the selected one.
type ListPage struct {
	queries model.QueryLister
	keys    KeyMap

	list    []model.Query
	cursor  int
	loading bool
	err     error
	// selectID is re-selected after the next load.
	selectID int64
}

func NewListPage(queries model.QueryLister) *ListPage {
	return &ListPage{queries: queries, keys: DefaultKeyMap()}
}

func (l *ListPage) ID() string { return ListPageID }

func (l *ListPage) Init() tea.Cmd { return l.load() }

// Enter re-selects the query the user came back from.
func (l *ListPage) Enter(params interface{}) tea.Cmd {
	if id, ok := params.(int64); ok {
		l.selectID = id
	}
	return nil
}

func (l *ListPage) load() tea.Cmd {
	if l.queries == nil {
		return nil
	}
	l.loading = true
	queries := l.queries
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
		defer cancel()
		list, err := queries.ListQueries(ctx)
		return queriesLoadedMsg{queries: list, err: err}
	}
}

// Selected returns the query under the cursor.
func (l *ListPage) Selected() (model.Query, bool) {
	if l.cursor < 0 || l.cursor >= len(l.list) {
		return model.Query{}, false
	}
	return l.list[l.cursor], true
}

func (l *ListPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case queriesLoadedMsg:
		l.loading = false
		l.err = msg.err
		if msg.err == nil {
			l.list = msg.queries
		}
		if l.selectID != 0 {
			for i, q := range l.list {
				if q.ID == l.selectID {
					l.cursor = i
				}
			}
			l.selectID = 0
		}
		l.cursor = min(l.cursor, max(len(l.list)-1, 0))
		return nil, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, l.keys.Quit), key.Matches(msg, l.keys.ForceQuit):
			return tea.Quit, nil
		case key.Matches(msg, l.keys.Up):
			l.cursor = max(l.cursor-1, 0)
		case key.Matches(msg, l.keys.Down):
			l.cursor = min(l.cursor+1, max(len(l.list)-1, 0))
		case key.Matches(msg, l.keys.Reload):
			return l.load(), nil
		case key.Matches(msg, l.keys.Enter):
			if q, ok := l.Selected(); ok {
				return nil, &PageNav{PageID: QueryPageID, Params: q.ID}
			}
		}
	}
	return nil, nil
}

func (l *ListPage) View(width, height int) string {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	lines := []string{titleStyle.Render("Queries"), ""}
	switch {
	case l.err != nil:
		lines = append(lines, errorStyle.Render("Failed to load queries: "+l.err.Error()))
	case l.loading && len(l.list) == 0:
		lines = append(lines, mutedStyle.Render("Loading..."))
	case len(l.list) == 0:
		lines = append(lines, mutedStyle.Render("No saved queries."))
	}

	visible := max(height-4, 1)
	start := 0
	if l.cursor >= visible {
		start = l.cursor - visible + 1
	}
	for i := start; i < len(l.list) && i < start+visible; i++ {
		q := l.list[i]
		updated := ""
		if !q.UpdatedAt.IsZero() {
			updated = humanize.Time(q.UpdatedAt)
		}
		row := fmt.Sprintf("%4d  %-40s  %-22s  %s", q.ID, truncate(q.Name, 40), truncate(q.Schedule.String(), 22), updated)
		if i == l.cursor {
			row = activeTabStyle.Render(row)
		}
		lines = append(lines, row)
	}

	content := strings.Join(lines, "\n")
	status := statusLineStyle.Width(width).Render("↑/↓: Select • Enter: Open • r: Reload • q: Quit")
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Height(height-1).Render(content),
		status,
	)
}
