package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    *Schedule
		want string
	}{
		{"nil", nil, "Never"},
		{"zero interval", &Schedule{}, "Never"},
		{"minutes", &Schedule{Interval: 300}, "Every 5 minute(s)"},
		{"hours", &Schedule{Interval: 7200}, "Every 2 hour(s)"},
		{"daily at time", &Schedule{Interval: 86400, Time: "09:30"}, "Every 1 day(s) at 09:30"},
		{"weekly with until", &Schedule{Interval: 604800, DayOfWeek: "Monday", Until: "2026-12-31"}, "Every 1 week(s) on Monday until 2026-12-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.String())
		})
	}
}

func TestQueryCloneIsDeep(t *testing.T) {
	t.Parallel()

	q := Query{
		ID:         1,
		Parameters: []Parameter{{Name: "region", Type: ParamEnum, EnumOptions: []string{"eu", "us"}}},
		Visualizations: []Visualization{
			{ID: 10, Type: VisualizationChart, Options: map[string]any{"x": "day"}},
		},
		Schedule: &Schedule{Interval: 60},
	}

	c := q.Clone()
	c.Parameters[0].EnumOptions[0] = "apac"
	c.Visualizations[0].Options["x"] = "week"
	c.Schedule.Interval = 120

	assert.Equal(t, "eu", q.Parameters[0].EnumOptions[0])
	assert.Equal(t, "day", q.Visualizations[0].Options["x"])
	assert.EqualValues(t, 60, q.Schedule.Interval)
}

func TestQueryVisualizationLookup(t *testing.T) {
	t.Parallel()

	q := Query{Visualizations: []Visualization{{ID: 3, Name: "Table"}, {ID: 7, Name: "Chart"}}}
	v, ok := q.Visualization(7)
	require.True(t, ok)
	assert.Equal(t, "Chart", v.Name)

	_, ok = q.Visualization(99)
	assert.False(t, ok)
}

func TestUserHasPermission(t *testing.T) {
	t.Parallel()

	u := User{Permissions: []string{PermViewQuery, PermExecuteQuery}}
	assert.True(t, u.HasPermission(PermExecuteQuery))
	assert.False(t, u.HasPermission(PermEditQuery))
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StatusWaiting.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
