package queryview

import (
	"strings"

	"github.com/tinytelemetry/queryview/internal/model"
)

// Flags are the capability flags gating page actions.
type Flags struct {
	IsArchived    bool
	IsDraft       bool
	CanEdit       bool
	CanExecute    bool
	CanSchedule   bool
	CanViewSource bool
}

// DeriveFlags computes capabilities from the query, the viewer and the data
// source. A nil data source (lookup pending or failed) counts as view-only.
func DeriveFlags(q model.Query, ds *model.DataSource, user model.User) Flags {
	viewOnly := ds == nil || ds.ViewOnly || ds.Paused

	canEdit := user.HasPermission(model.PermEditQuery) && q.CanEdit && !q.IsArchived
	canExecute := strings.TrimSpace(q.QueryText) != "" &&
		(q.IsSafe || (user.HasPermission(model.PermExecuteQuery) && !viewOnly))

	return Flags{
		IsArchived:    q.IsArchived,
		IsDraft:       q.IsDraft,
		CanEdit:       canEdit,
		CanExecute:    canExecute,
		CanSchedule:   canEdit && user.HasPermission(model.PermScheduleQuery),
		CanViewSource: user.HasPermission(model.PermViewSource),
	}
}
