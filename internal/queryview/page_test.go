package queryview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/queryview/internal/model"
)

type pageFixture struct {
	page *Page
	src  *fakeSource
	cat  *fakeCatalog
	loc  *memLocation
}

func newPageFixture(t *testing.T, q model.Query) *pageFixture {
	t.Helper()
	f := &pageFixture{
		src: &fakeSource{},
		cat: newFakeCatalog(q),
		loc: newMemLocation(nil),
	}
	f.page = NewPage(Config{
		Queries:      f.cat,
		DataSources:  f.cat,
		Results:      f.src,
		User:         fullUser(),
		Location:     f.loc,
		PollInterval: time.Millisecond,
	})
	return f
}

// mount shows q and resolves the data-source lookup.
func (f *pageFixture) mount(t *testing.T, q model.Query) {
	t.Helper()
	pump(t, f.page, f.page.SetQuery(q))
	require.Equal(t, DataSourceReady, f.page.State().DataSourceStatus)
}

func TestPageSetQueryNeverExecutes(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	st := f.page.State()
	assert.True(t, st.Loaded)
	assert.Equal(t, "Daily signups", st.Title)
	assert.Equal(t, Idle, st.ExecState)
	assert.Nil(t, st.Result)
	assert.Equal(t, 0, f.src.executeCount())
	assert.True(t, st.HasSelection)
	assert.Equal(t, int64(1), st.SelectedVisualization)
	assert.Equal(t, "warehouse", st.DataSource.Name)
}

func TestPageExecuteWhileExecutingIsNoop(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	first := f.page.Execute(false)
	require.NotNil(t, first)
	before := f.page.State()
	require.Equal(t, Executing, before.ExecState)

	assert.Nil(t, f.page.Execute(false))
	assert.Nil(t, f.page.Execute(true))
	after := f.page.State()
	assert.Equal(t, Executing, after.ExecState)
	assert.Equal(t, before.Result, after.Result)

	pump(t, f.page, first)
	assert.Equal(t, 1, f.src.executeCount())
	assert.Equal(t, Done, f.page.State().ExecState)
}

func TestPageDirtyGuard(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	f.page.UpdatePending(map[string]any{"limit": "5"})
	assert.Nil(t, f.page.Refresh())
	assert.Equal(t, Idle, f.page.State().ExecState)

	cmd := f.page.Execute(true)
	require.NotNil(t, cmd)
	pump(t, f.page, cmd)
	assert.Equal(t, 1, f.src.executeCount())
	assert.Nil(t, f.src.lastExecute().Parameters["limit"], "override runs with applied values")
	assert.True(t, f.page.State().Dirty)
}

func TestPageApplyScenario(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	st := f.page.State()
	require.Len(t, st.Parameters, 2)
	assert.False(t, st.Dirty)
	assert.False(t, st.RefreshNowDisabled)

	f.page.UpdatePending(map[string]any{"limit": "25"})
	st = f.page.State()
	assert.True(t, st.Dirty)
	assert.True(t, st.RefreshNowDisabled)
	assert.True(t, st.RefreshDisabled)

	cmd := f.page.ApplyParameters()
	assert.False(t, f.page.State().Dirty)
	pump(t, f.page, cmd)

	assert.Equal(t, 1, f.src.executeCount())
	assert.Equal(t, 25.0, f.src.lastExecute().Parameters["limit"])
	assert.Equal(t, Done, f.page.State().ExecState)
}

func TestPageApplyWhenCleanStillExecutesOnce(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	pump(t, f.page, f.page.ApplyParameters())
	assert.Equal(t, 1, f.src.executeCount())
}

func TestPageApplySupersedesInFlight(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.src.onExecute = func(req model.ExecuteRequest, jobID string) (model.QueryResult, error) {
		rows := 1
		if v, ok := req.Parameters["limit"].(float64); ok {
			rows = int(v)
		}
		return doneResult(jobID, rows), nil
	}
	f.mount(t, q)

	a := f.page.Execute(false)
	require.NotNil(t, a)

	f.page.UpdatePending(map[string]any{"limit": 3})
	b := f.page.ApplyParameters()
	require.NotNil(t, b)

	pump(t, f.page, b)
	st := f.page.State()
	require.Equal(t, Done, st.ExecState)
	assert.Len(t, st.Result.Rows, 3)

	// A resolves late.
	pump(t, f.page, a)
	st = f.page.State()
	assert.Equal(t, Done, st.ExecState)
	assert.Len(t, st.Result.Rows, 3)
	assert.Equal(t, 3, st.Footer.Rows)
}

func TestPageCancel(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	msgs := collect(f.page.Execute(false))
	require.Len(t, msgs, 1)
	f.page.Update(msgs[0])

	cancel := f.page.Cancel()
	require.NotNil(t, cancel)
	st := f.page.State()
	assert.True(t, st.Cancelling)
	assert.True(t, st.RefreshNowLoading)
	assert.True(t, st.ShowStatus)
	assert.False(t, st.ShowTabs)

	pump(t, f.page, cancel)
	st = f.page.State()
	assert.Equal(t, Idle, st.ExecState)
	assert.Nil(t, st.Result)
	assert.True(t, st.ShowTabs)
}

func TestPageDerivedRegionsWhenDone(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	pump(t, f.page, f.page.Execute(false))
	st := f.page.State()
	assert.True(t, st.ShowFooter)
	assert.True(t, st.ShowTabs)
	assert.False(t, st.ShowStatus)
	assert.True(t, st.ShowNewVisualization)
	assert.True(t, st.ShowAddDescription)
	assert.False(t, st.ShowDescription)
	assert.True(t, st.ShowParameters)
	assert.True(t, st.ShowMetadata)
	assert.Equal(t, 250*time.Millisecond, st.Footer.Runtime)
	assert.Equal(t, "Never", st.Schedule)
}

func TestPageDeleteSelectedVisualization(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	require.True(t, f.page.SelectVisualization(2))
	assert.False(t, f.page.SelectVisualization(99))

	pump(t, f.page, f.page.Run(DeleteVisualization{Service: f.cat, ID: 2}))

	st := f.page.State()
	assert.Len(t, st.Query.Visualizations, 2)
	assert.Equal(t, int64(1), st.SelectedVisualization)
}

func TestPageAddVisualizationSelectsIt(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)
	pump(t, f.page, f.page.Execute(false))

	pump(t, f.page, f.page.Run(AddVisualization{
		Service:       f.cat,
		Visualization: model.Visualization{Type: model.VisualizationChart, Name: "Trend"},
	}))

	st := f.page.State()
	assert.Equal(t, int64(101), st.SelectedVisualization)
	assert.Equal(t, Done, st.ExecState, "visualization edits keep the result")
}

func TestPageDescriptionFlow(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	f.page.StartAddingDescription()
	st := f.page.State()
	assert.True(t, st.AddingDescription)
	assert.False(t, st.ShowAddDescription)
	assert.True(t, st.ShowDescription)

	pump(t, f.page, f.page.Run(UpdateDescription{Service: f.cat, Description: "Signups per day"}))
	st = f.page.State()
	assert.False(t, st.AddingDescription)
	assert.Equal(t, "Signups per day", st.Query.Description)
	assert.True(t, st.ShowDescription)
	assert.False(t, st.ShowAddDescription)
}

func TestPageDisallowedCommandIgnored(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.page = NewPage(Config{
		Queries:     f.cat,
		DataSources: f.cat,
		Results:     f.src,
		User:        model.User{Permissions: []string{model.PermViewQuery}},
	})
	f.mount(t, q)

	assert.Nil(t, f.page.Run(UpdateDescription{Service: f.cat, Description: "x"}))
	f.page.StartAddingDescription()
	assert.False(t, f.page.State().AddingDescription)
	assert.NotNil(t, f.page.Run(Embed{Service: f.cat, VisualizationID: 1}))
}

func TestPageStaleCommandOutcomeDiscarded(t *testing.T) {
	q := sampleQuery()
	other := sampleQuery()
	other.ID = 43
	other.Name = "Weekly churn"
	f := newPageFixture(t, q)
	f.cat.put(other)
	f.mount(t, q)

	msgs := collect(f.page.Run(UpdateDescription{Service: f.cat, Description: "late"}))
	require.Len(t, msgs, 1)

	pump(t, f.page, f.page.SetQuery(other))
	f.page.Update(msgs[0])

	st := f.page.State()
	assert.Equal(t, int64(43), st.Query.ID)
	assert.Empty(t, st.Query.Description)
	assert.Empty(t, st.Error)
}

func TestPageCommandErrorSurfaces(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)
	f.cat.editErr = errFake

	pump(t, f.page, f.page.Run(UpdateDescription{Service: f.cat, Description: "x"}))
	assert.Equal(t, "update description: boom", f.page.State().Error)

	f.page.ClearNotice()
	assert.Empty(t, f.page.State().Error)
}

func TestPageEmbedNotice(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	pump(t, f.page, f.page.Run(Embed{Service: f.cat, VisualizationID: 3}))
	assert.Contains(t, f.page.State().Notice, "/visualization/3")
}

func TestPageIdentityChangeResetsExecution(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)
	pump(t, f.page, f.page.Execute(false))
	require.Equal(t, Done, f.page.State().ExecState)

	// Same identity: a new description keeps the result.
	edited := q
	edited.Description = "hello"
	pump(t, f.page, f.page.SetQuery(edited))
	assert.Equal(t, Done, f.page.State().ExecState)

	// New query text resets without executing.
	rewritten := edited
	rewritten.QueryText = "SELECT 1"
	pump(t, f.page, f.page.SetQuery(rewritten))
	st := f.page.State()
	assert.Equal(t, Idle, st.ExecState)
	assert.Nil(t, st.Result)
	assert.Equal(t, 1, f.src.executeCount())
}

func TestPageSupersededExecutionAfterQueryChange(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	running := f.page.Execute(false)
	require.NotNil(t, running)

	other := sampleQuery()
	other.ID = 43
	other.Visualizations = nil
	pump(t, f.page, f.page.SetQuery(other))

	pump(t, f.page, running)
	st := f.page.State()
	assert.Equal(t, Idle, st.ExecState)
	assert.Nil(t, st.Result)
	assert.False(t, st.HasSelection)
}

func TestPageLoad(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)

	cmd := f.page.Load(42)
	assert.True(t, f.page.State().Loading)
	pump(t, f.page, cmd)

	st := f.page.State()
	assert.False(t, st.Loading)
	assert.True(t, st.Loaded)
	assert.Equal(t, int64(42), st.Query.ID)
	assert.Equal(t, DataSourceReady, st.DataSourceStatus)

	pump(t, f.page, f.page.Load(404))
	assert.Contains(t, f.page.State().Error, "load query")
}

func TestPageExecuteBlockedWhileDataSourcePending(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)

	lookup := f.page.SetQuery(q)
	st := f.page.State()
	assert.Equal(t, DataSourcePending, st.DataSourceStatus)
	assert.False(t, st.Flags.CanExecute)
	assert.True(t, st.RefreshNowDisabled)
	assert.Nil(t, f.page.Execute(false))

	pump(t, f.page, lookup)
	assert.True(t, f.page.State().Flags.CanExecute)
	assert.NotNil(t, f.page.Execute(false))
}

func TestPageSafeQueryExecutesWhileDataSourcePending(t *testing.T) {
	q := sampleQuery()
	q.IsSafe = true
	f := newPageFixture(t, q)

	f.page.SetQuery(q)
	require.Equal(t, DataSourcePending, f.page.State().DataSourceStatus)
	assert.NotNil(t, f.page.Execute(false))
}

func TestPageDataSourceFailure(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.cat.dsErr = errFake

	pump(t, f.page, f.page.SetQuery(q))
	st := f.page.State()
	assert.Equal(t, DataSourceFailed, st.DataSourceStatus)
	assert.Equal(t, "boom", st.DataSourceError)
	assert.Nil(t, st.DataSource)
	assert.False(t, st.Flags.CanExecute)
	assert.Nil(t, f.page.Execute(false))
	assert.Nil(t, f.page.ApplyParameters())
}

func TestPageStaleDataSourceLookupDiscarded(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.cat.dataSources[2] = model.DataSource{ID: 2, Name: "replica", Type: "postgres"}

	first := f.page.SetQuery(q)
	moved := q
	moved.DataSourceID = 2
	pump(t, f.page, f.page.SetQuery(moved))
	pump(t, f.page, first)

	assert.Equal(t, "replica", f.page.State().DataSource.Name)
}

func TestPageFullscreen(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	f.mount(t, q)

	pump(t, f.page, f.page.ToggleFullscreen())
	st := f.page.State()
	assert.True(t, st.Fullscreen)
	assert.False(t, st.ShowParameters)
	assert.False(t, st.ShowMetadata)
	assert.False(t, st.ShowAddDescription)
	v, _ := f.loc.Read("fullscreen")
	assert.Equal(t, "true", v)

	f.page.SetWidth(60)
	st = f.page.State()
	assert.False(t, st.Fullscreen)
	assert.True(t, st.ShowParameters)

	pump(t, f.page, f.page.ToggleFullscreen())
	_, ok := f.loc.Read("fullscreen")
	assert.False(t, ok)
}

func TestPageSubscribe(t *testing.T) {
	q := sampleQuery()
	f := newPageFixture(t, q)
	ch, unsubscribe := f.page.Subscribe()
	defer unsubscribe()

	f.page.SetQuery(q)
	select {
	case <-ch:
	default:
		t.Fatal("expected a change notification")
	}
}

func TestPageWithoutQueryIgnoresActions(t *testing.T) {
	f := newPageFixture(t, sampleQuery())

	assert.Nil(t, f.page.Execute(true))
	assert.Nil(t, f.page.ApplyParameters())
	assert.Nil(t, f.page.Cancel())
	assert.Nil(t, f.page.Run(Embed{Service: f.cat}))
	st := f.page.State()
	assert.False(t, st.Loaded)
	assert.True(t, st.RefreshDisabled)
}
