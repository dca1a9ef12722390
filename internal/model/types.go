package model

import (
	"fmt"
	"time"
)

// ExecutionStatus is the lifecycle status reported for one query execution.
type ExecutionStatus string

const (
	StatusWaiting    ExecutionStatus = "waiting"
	StatusProcessing ExecutionStatus = "processing"
	StatusDone       ExecutionStatus = "done"
	StatusFailed     ExecutionStatus = "failed"
)

// Terminal reports whether no further status change will follow.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ParameterType is the declared type of a query parameter.
type ParameterType string

const (
	ParamText     ParameterType = "text"
	ParamNumber   ParameterType = "number"
	ParamEnum     ParameterType = "enum"
	ParamDate     ParameterType = "date"
	ParamDateTime ParameterType = "datetime"
)

// Parameter is one declared query parameter with its applied value.
type Parameter struct {
	Name        string        `json:"name" yaml:"name"`
	Title       string        `json:"title,omitempty" yaml:"title,omitempty"`
	Type        ParameterType `json:"type" yaml:"type"`
	Value       any           `json:"value" yaml:"value"`
	EnumOptions []string      `json:"enum_options,omitempty" yaml:"enum_options,omitempty"`
}

// Label returns the title, falling back to the name.
func (p Parameter) Label() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Name
}

// VisualizationType tags how a visualization renders a result.
type VisualizationType string

const (
	VisualizationTable   VisualizationType = "TABLE"
	VisualizationChart   VisualizationType = "CHART"
	VisualizationCounter VisualizationType = "COUNTER"
)

// Visualization is one rendering configuration attached to a query.
type Visualization struct {
	ID      int64             `json:"id"`
	QueryID int64             `json:"query_id"`
	Type    VisualizationType `json:"type"`
	Name    string            `json:"name"`
	Options map[string]any    `json:"options,omitempty"`
}

// Schedule describes how often a query is refreshed. A nil schedule means never.
type Schedule struct {
	Interval  int64  `json:"interval" yaml:"interval"`
	Time      string `json:"time,omitempty" yaml:"time,omitempty"`
	DayOfWeek string `json:"day_of_week,omitempty" yaml:"day_of_week,omitempty"`
	Until     string `json:"until,omitempty" yaml:"until,omitempty"`
}

// String renders the schedule the way the metadata region shows it.
func (s *Schedule) String() string {
	if s == nil || s.Interval <= 0 {
		return "Never"
	}
	d := time.Duration(s.Interval) * time.Second
	var out string
	switch {
	case d%(7*24*time.Hour) == 0:
		out = fmt.Sprintf("Every %d week(s)", d/(7*24*time.Hour))
	case d%(24*time.Hour) == 0:
		out = fmt.Sprintf("Every %d day(s)", d/(24*time.Hour))
	case d%time.Hour == 0:
		out = fmt.Sprintf("Every %d hour(s)", d/time.Hour)
	default:
		out = fmt.Sprintf("Every %d minute(s)", max(1, int64(d/time.Minute)))
	}
	if s.Time != "" {
		out += " at " + s.Time
	}
	if s.DayOfWeek != "" {
		out += " on " + s.DayOfWeek
	}
	if s.Until != "" {
		out += " until " + s.Until
	}
	return out
}

// Query is a saved, parameterized, executable report definition.
type Query struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	QueryText      string          `json:"query"`
	DataSourceID   int64           `json:"data_source_id"`
	Parameters     []Parameter     `json:"parameters"`
	Visualizations []Visualization `json:"visualizations"`
	APIKey         string          `json:"api_key"`
	Schedule       *Schedule       `json:"schedule"`
	IsSafe         bool            `json:"is_safe"`
	IsArchived     bool            `json:"is_archived"`
	IsDraft        bool            `json:"is_draft"`
	CanEdit        bool            `json:"can_edit"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HasParameters reports whether the query declares any parameter.
func (q Query) HasParameters() bool { return len(q.Parameters) > 0 }

// Visualization looks up an attached visualization by id.
func (q Query) Visualization(id int64) (Visualization, bool) {
	for _, v := range q.Visualizations {
		if v.ID == id {
			return v, true
		}
	}
	return Visualization{}, false
}

// Clone returns a deep copy so snapshots never share mutable state.
func (q Query) Clone() Query {
	out := q
	if q.Parameters != nil {
		out.Parameters = make([]Parameter, len(q.Parameters))
		for i, p := range q.Parameters {
			p.EnumOptions = append([]string(nil), p.EnumOptions...)
			out.Parameters[i] = p
		}
	}
	if q.Visualizations != nil {
		out.Visualizations = make([]Visualization, len(q.Visualizations))
		for i, v := range q.Visualizations {
			v.Options = cloneOptions(v.Options)
			out.Visualizations[i] = v
		}
	}
	if q.Schedule != nil {
		s := *q.Schedule
		out.Schedule = &s
	}
	return out
}

func cloneOptions(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// DataSource is a connection target queries run against.
type DataSource struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Syntax      string            `json:"syntax"`
	Paused      bool              `json:"paused"`
	PauseReason string            `json:"pause_reason,omitempty"`
	ViewOnly    bool              `json:"view_only"`
	Options     map[string]string `json:"-"`
}

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult is the outcome of one execution attempt.
type QueryResult struct {
	JobID       string           `json:"job_id"`
	QueryID     int64            `json:"query_id"`
	Status      ExecutionStatus  `json:"status"`
	Columns     []Column         `json:"columns,omitempty"`
	Rows        []map[string]any `json:"rows,omitempty"`
	Runtime     float64          `json:"runtime"`
	RetrievedAt time.Time        `json:"retrieved_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Error       string           `json:"error,omitempty"`
}

// RuntimeDuration converts the runtime in seconds to a duration.
func (r QueryResult) RuntimeDuration() time.Duration {
	return time.Duration(r.Runtime * float64(time.Second))
}

// User is the viewer of a page; permissions gate capability flags.
type User struct {
	Name        string   `json:"name" mapstructure:"name"`
	Permissions []string `json:"permissions" mapstructure:"permissions"`
}

// Permission names understood by capability derivation.
const (
	PermViewQuery     = "view_query"
	PermEditQuery     = "edit_query"
	PermExecuteQuery  = "execute_query"
	PermScheduleQuery = "schedule_query"
	PermViewSource    = "view_source"
)

// AllPermissions is granted to the default local user.
var AllPermissions = []string{PermViewQuery, PermEditQuery, PermExecuteQuery, PermScheduleQuery, PermViewSource}

// HasPermission reports whether the user holds perm.
func (u User) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Widget places a visualization on a dashboard.
type Widget struct {
	ID              int64     `json:"id"`
	Dashboard       string    `json:"dashboard"`
	VisualizationID int64     `json:"visualization_id"`
	QueryID         int64     `json:"query_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExecuteRequest asks the result source to run a saved query.
type ExecuteRequest struct {
	QueryID    int64          `json:"query_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
	MaxAge     int64          `json:"max_age,omitempty"`
}

// QueryPatch carries the mutable query fields; nil fields are left untouched.
type QueryPatch struct {
	Name          *string   `json:"name,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Schedule      *Schedule `json:"schedule,omitempty"`
	ClearSchedule bool      `json:"clear_schedule,omitempty"`
}
