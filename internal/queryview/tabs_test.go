package queryview

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinytelemetry/queryview/internal/model"
)

func vizList(ids ...int64) []model.Visualization {
	out := make([]model.Visualization, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Visualization{ID: id})
	}
	return out
}

func TestTabSelectorDefaultsToFirst(t *testing.T) {
	id, ok := NewTabSelector(vizList(4, 5)).Selected()
	assert.True(t, ok)
	assert.Equal(t, int64(4), id)

	_, ok = NewTabSelector(nil).Selected()
	assert.False(t, ok)
}

func TestTabSelectorIgnoresUnknownID(t *testing.T) {
	s := NewTabSelector(vizList(1, 2))
	assert.False(t, s.Select(9))
	id, _ := s.Selected()
	assert.Equal(t, int64(1), id)
}

func TestTabSelectorDeleteSelected(t *testing.T) {
	s := NewTabSelector(vizList(1, 2, 3))
	s.Select(2)

	s.Reconcile(vizList(1, 3))
	id, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestTabSelectorDeleteOther(t *testing.T) {
	s := NewTabSelector(vizList(1, 2, 3))
	s.Select(2)

	s.Reconcile(vizList(1, 2))
	id, _ := s.Selected()
	assert.Equal(t, int64(2), id)
}

func TestTabSelectorDeleteLast(t *testing.T) {
	s := NewTabSelector(vizList(1))
	s.Reconcile(nil)
	_, ok := s.Selected()
	assert.False(t, ok)

	s.Reconcile(vizList(8))
	id, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, int64(8), id)
}

func TestTabSelectorGrowthKeepsSelection(t *testing.T) {
	s := NewTabSelector(vizList(1, 2))
	s.Select(2)
	s.Reconcile(vizList(1, 2, 3))
	id, _ := s.Selected()
	assert.Equal(t, int64(2), id)
}

// Deleting any one visualization leaves a selection that is still a member.
func TestTabSelectorReconcileMembership(t *testing.T) {
	ids := []int64{10, 20, 30, 40, 50}
	for selected := range ids {
		for deleted := range ids {
			s := NewTabSelector(vizList(ids...))
			s.Select(ids[selected])

			var remaining []int64
			for i, id := range ids {
				if i != deleted {
					remaining = append(remaining, id)
				}
			}
			s.Reconcile(vizList(remaining...))

			got, ok := s.Selected()
			assert.True(t, ok)
			assert.Contains(t, remaining, got)
			if selected != deleted {
				assert.Equal(t, ids[selected], got)
			}
		}
	}
}
