package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tinytelemetry/queryview/internal/model"
	"github.com/tinytelemetry/queryview/internal/queryview"
)

func (p *QueryPage) View(width, height int) string {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	if top := p.TopModal(); top != nil {
		return top.View(width, height)
	}

	st := p.page.State()
	if !st.Loaded {
		if st.Error != "" {
			return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, errorStyle.Render(st.Error))
		}
		return renderLoadingPlaceholder(p.spin.View(), width, height)
	}

	var top []string
	top = append(top, p.renderHeader(st))
	if st.ShowDescription {
		top = append(top, renderDescription(st))
	}
	if st.ShowAddDescription {
		top = append(top, mutedStyle.Render("d: Add description"))
	}
	if st.ShowMetadata {
		top = append(top, renderMetadata(st))
	}
	if st.ShowParameters {
		top = append(top, renderParameters(st))
	}
	if st.ShowTabs {
		top = append(top, renderTabs(st))
	}

	var bottom []string
	if st.ShowFooter {
		bottom = append(bottom, renderFooter(st.Footer, p.now()))
	}
	if st.Notice != "" {
		bottom = append(bottom, noticeStyle.Render(st.Notice))
	}
	if st.Error != "" {
		bottom = append(bottom, errorStyle.Render(st.Error))
	}
	bottom = append(bottom, p.renderStatusLine(st, width))

	header := strings.Join(top, "\n")
	footer := strings.Join(bottom, "\n")
	bodyHeight := max(height-lipgloss.Height(header)-lipgloss.Height(footer)-2, 3)

	body := p.renderBody(st, width-4, bodyHeight)
	box := sectionStyle.Width(width - 2).Height(bodyHeight).Render(body)

	return lipgloss.JoinVertical(lipgloss.Left, header, box, footer)
}

func (p *QueryPage) renderHeader(st queryview.PageState) string {
	title := titleStyle.Render(st.Title)
	var badges []string
	if st.Query.IsArchived {
		badges = append(badges, "archived")
	}
	if st.Query.IsDraft {
		badges = append(badges, "draft")
	}
	if st.Loaded && !st.Flags.CanEdit {
		badges = append(badges, "view only")
	}
	if st.Fullscreen {
		badges = append(badges, "fullscreen")
	}
	for _, b := range badges {
		title += " " + badgeStyle.Render("["+b+"]")
	}
	return title
}

func renderDescription(st queryview.PageState) string {
	if st.AddingDescription {
		return mutedStyle.Render("Editing description…")
	}
	return st.Query.Description
}

func renderMetadata(st queryview.PageState) string {
	var ds string
	switch st.DataSourceStatus {
	case queryview.DataSourcePending:
		ds = "loading…"
	case queryview.DataSourceFailed:
		ds = errorStyle.Render("unavailable: " + st.DataSourceError)
	case queryview.DataSourceReady:
		ds = fmt.Sprintf("%s (%s)", st.DataSource.Name, st.DataSource.Type)
		if st.DataSource.Paused {
			reason := "paused"
			if st.DataSource.PauseReason != "" {
				reason += ": " + st.DataSource.PauseReason
			}
			ds += " " + badgeStyle.Render("["+reason+"]")
		}
	default:
		ds = "none"
	}
	parts := []string{
		"Data source: " + ds,
		"Refresh schedule: " + st.Schedule,
	}
	if !st.Query.UpdatedAt.IsZero() {
		parts = append(parts, "Updated "+humanize.Time(st.Query.UpdatedAt))
	}
	return mutedStyle.Render(strings.Join(parts, " • "))
}

func renderParameters(st queryview.PageState) string {
	var parts []string
	for _, pv := range st.Parameters {
		value := formatValue(pv.Value)
		if pv.HasPending {
			value = formatValue(pv.Pending) + "*"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", pv.Title, value))
	}
	line := strings.Join(parts, "  ")
	if st.Dirty {
		line += "  " + badgeStyle.Render("(unapplied, p then enter to apply)")
	}
	return line
}

func renderTabs(st queryview.PageState) string {
	var tabs []string
	for _, v := range st.Query.Visualizations {
		name := v.Name
		if name == "" {
			name = string(v.Type)
		}
		if st.HasSelection && v.ID == st.SelectedVisualization {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, tabStyle.Render(name))
		}
	}
	if st.ShowNewVisualization {
		tabs = append(tabs, mutedStyle.Render("n: + New visualization"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (p *QueryPage) renderBody(st queryview.PageState, width, height int) string {
	if st.ShowStatus {
		return p.renderStatus(st)
	}
	if st.Result == nil {
		if st.Flags.CanExecute {
			return mutedStyle.Render("Press alt+enter (or r) to run this query.")
		}
		return mutedStyle.Render("This query cannot be executed.")
	}

	v, ok := st.SelectedVisualizationValue()
	if !ok {
		v = model.Visualization{Type: model.VisualizationTable}
	}
	content := renderVisualization(v, st.Result, width, height)
	if v.Type == model.VisualizationChart || v.Type == model.VisualizationCounter {
		return content
	}
	p.table.Width = width
	p.table.Height = height
	p.table.SetContent(content)
	return p.table.View()
}

func (p *QueryPage) renderStatus(st queryview.PageState) string {
	res := st.Result
	var line string
	switch {
	case st.Cancelling:
		line = p.spin.View() + " Cancelling…"
	case res.Status == model.StatusWaiting:
		line = p.spin.View() + " Waiting in queue…"
	case res.Status == model.StatusProcessing:
		line = p.spin.View() + " Executing query…"
	case res.Status == model.StatusFailed:
		return errorStyle.Render("Error running query: " + res.Error)
	}
	if st.ExecState == queryview.Executing {
		line += "  " + mutedStyle.Render("x: Cancel")
	}
	return line
}

func (p *QueryPage) renderStatusLine(st queryview.PageState, width int) string {
	var hints []string
	if !st.RefreshDisabled {
		hints = append(hints, "r: Refresh")
	}
	if st.ExecState == queryview.Executing {
		hints = append(hints, "x: Cancel")
	}
	if st.ShowParameters {
		hints = append(hints, "p: Params")
	}
	if st.FullscreenAvailable {
		hints = append(hints, "f: Fullscreen")
	}
	if st.HasSelection {
		hints = append(hints, "[ ]: Tabs", "E: Embed", "a: Dashboard")
	}
	if st.Flags.CanEdit && st.HasSelection {
		hints = append(hints, "e: Edit vis")
	}
	if st.Flags.CanSchedule {
		hints = append(hints, "s: Schedule")
	}
	hints = append(hints, "b: Queries", "?: Help", "q: Quit")
	return statusLineStyle.Width(width).Render(truncate(strings.Join(hints, " • "), width))
}
