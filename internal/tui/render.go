package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tinytelemetry/queryview/internal/model"
	"github.com/tinytelemetry/queryview/internal/queryview"
)

const maxCellWidth = 40

// formatValue renders a cell or parameter value.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// toFloat converts numeric-looking values for charts and counters.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

// resultColumns returns the result's columns, deriving them from the first
// row when the result carries none.
func resultColumns(res *model.QueryResult) []string {
	if len(res.Columns) > 0 {
		names := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			names[i] = c.Name
		}
		return names
	}
	if len(res.Rows) == 0 {
		return nil
	}
	var names []string
	for k := range res.Rows[0] {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// renderTable renders every row of res as an aligned text table.
func renderTable(res *model.QueryResult) string {
	cols := resultColumns(res)
	if len(cols) == 0 {
		return mutedStyle.Render("Query returned no columns.")
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = min(lipgloss.Width(c), maxCellWidth)
	}
	for _, row := range res.Rows {
		for i, c := range cols {
			widths[i] = min(max(widths[i], lipgloss.Width(formatValue(row[c]))), maxCellWidth)
		}
	}

	var sb strings.Builder
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = headerCellStyle.Render(fmt.Sprintf("%-*s", widths[i], truncate(c, widths[i])))
	}
	sb.WriteString(strings.Join(header, "  "))
	for _, row := range res.Rows {
		sb.WriteByte('\n')
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = fmt.Sprintf("%-*s", widths[i], truncate(formatValue(row[c]), widths[i]))
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
	}
	if len(res.Rows) == 0 {
		sb.WriteString("\n" + mutedStyle.Render("No rows."))
	}
	return sb.String()
}

// chartColumns picks the label and value columns of a CHART visualization:
// the configured ones, else the first column and the first numeric column.
func chartColumns(v model.Visualization, res *model.QueryResult) (x, y string) {
	cols := resultColumns(res)
	x, y = optionString(v.Options, "x"), optionString(v.Options, "y")
	if x == "" && len(cols) > 0 {
		x = cols[0]
	}
	if y == "" {
		y = firstNumericColumn(res, cols, x)
	}
	return x, y
}

func firstNumericColumn(res *model.QueryResult, cols []string, skip string) string {
	if len(res.Rows) == 0 {
		return ""
	}
	for _, c := range cols {
		if c == skip {
			continue
		}
		if _, ok := toFloat(res.Rows[0][c]); ok {
			return c
		}
	}
	return ""
}

// renderChart draws a bar chart of the y column grouped by the x column.
func renderChart(v model.Visualization, res *model.QueryResult, width, height int) string {
	x, y := chartColumns(v, res)
	if y == "" {
		return mutedStyle.Render("No numeric column to chart.")
	}
	if len(res.Rows) == 0 {
		return mutedStyle.Render("No rows.")
	}

	width = max(width, 20)
	height = max(height, 5)

	barGap := 1
	maxBars := max(1, width/2)
	rows := res.Rows
	if len(rows) > maxBars {
		rows = rows[:maxBars]
	}
	barWidth := max(1, width/len(rows)-barGap)

	bc := barchart.New(width, height,
		barchart.WithBarGap(barGap),
		barchart.WithBarWidth(barWidth),
	)
	barStyle := lipgloss.NewStyle().Foreground(ColorBlue).Background(ColorBlue)
	for _, row := range rows {
		value, _ := toFloat(row[y])
		bc.Push(barchart.BarData{
			Label: truncate(formatValue(row[x]), barWidth),
			Values: []barchart.BarValue{
				{Name: y, Value: value, Style: barStyle},
			},
		})
	}
	bc.Draw()

	caption := mutedStyle.Render(fmt.Sprintf("%s by %s", y, x))
	if len(rows) < len(res.Rows) {
		caption += mutedStyle.Render(fmt.Sprintf(" (first %d of %d rows)", len(rows), len(res.Rows)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, bc.View(), caption)
}

// renderCounter shows the first row's value column as a big number.
func renderCounter(v model.Visualization, res *model.QueryResult) string {
	if len(res.Rows) == 0 {
		return mutedStyle.Render("No rows.")
	}
	col := optionString(v.Options, "column")
	if col == "" {
		col = firstNumericColumn(res, resultColumns(res), "")
	}
	if col == "" {
		return mutedStyle.Render("No numeric column to count.")
	}
	raw := res.Rows[0][col]
	text := formatValue(raw)
	if f, ok := toFloat(raw); ok {
		text = humanize.Commaf(f)
	}
	return lipgloss.JoinVertical(lipgloss.Left, counterStyle.Render(text), mutedStyle.Render(col))
}

// renderVisualization renders res the way v describes.
func renderVisualization(v model.Visualization, res *model.QueryResult, width, height int) string {
	switch v.Type {
	case model.VisualizationChart:
		return renderChart(v, res, width, height)
	case model.VisualizationCounter:
		return renderCounter(v, res)
	default:
		return renderTable(res)
	}
}

// formatRows renders a row count with pluralization.
func formatRows(n int) string {
	if n == 1 {
		return "1 row"
	}
	return humanize.Comma(int64(n)) + " rows"
}

// formatRuntime renders an execution runtime.
func formatRuntime(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return humanize.FtoaWithDigits(d.Seconds(), 2) + " seconds"
}

// renderFooter renders the finished-result summary.
func renderFooter(f queryview.Footer, now time.Time) string {
	parts := []string{formatRows(f.Rows), formatRuntime(f.Runtime)}
	if !f.RetrievedAt.IsZero() {
		parts = append(parts, "Refreshed "+humanize.RelTime(f.RetrievedAt, now, "ago", "from now"))
	}
	return mutedStyle.Render(strings.Join(parts, " • "))
}
