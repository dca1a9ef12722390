package queryview

import "github.com/tinytelemetry/queryview/internal/model"

// TabSelector tracks the selected visualization and keeps it pointing at a
// member of the live visualization list.
type TabSelector struct {
	ids      []int64
	selected int64
}

// NewTabSelector selects the first visualization, or none for an empty list.
func NewTabSelector(list []model.Visualization) *TabSelector {
	t := &TabSelector{}
	t.setList(list)
	if len(t.ids) > 0 {
		t.selected = t.ids[0]
	}
	return t
}

// Selected returns the selected visualization id; ok is false when none.
func (t *TabSelector) Selected() (int64, bool) {
	return t.selected, t.selected != 0
}

// Select assigns the selection. Ids outside the list are ignored.
func (t *TabSelector) Select(id int64) bool {
	if !t.contains(id) {
		return false
	}
	t.selected = id
	return true
}

// Reconcile adopts a new list. A selection that disappeared falls back to
// the first remaining visualization; list growth never moves the selection.
func (t *TabSelector) Reconcile(list []model.Visualization) {
	t.setList(list)
	if t.selected != 0 && t.contains(t.selected) {
		return
	}
	t.selected = 0
	if len(t.ids) > 0 {
		t.selected = t.ids[0]
	}
}

func (t *TabSelector) setList(list []model.Visualization) {
	t.ids = t.ids[:0]
	for _, v := range list {
		t.ids = append(t.ids, v.ID)
	}
}

func (t *TabSelector) contains(id int64) bool {
	for _, v := range t.ids {
		if v == id {
			return true
		}
	}
	return false
}
