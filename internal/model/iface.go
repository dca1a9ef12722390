package model

import "context"

// QueryLookup fetches one saved query snapshot.
type QueryLookup interface {
	GetQuery(ctx context.Context, id int64) (Query, error)
}

// QueryLister lists saved queries for navigation.
type QueryLister interface {
	ListQueries(ctx context.Context) ([]Query, error)
}

// DataSourceLookup fetches data-source metadata.
type DataSourceLookup interface {
	GetDataSource(ctx context.Context, id int64) (DataSource, error)
}

// ResultSource runs queries asynchronously. Execute returns the first job
// snapshot; PollJob returns later ones until the status is terminal.
type ResultSource interface {
	Execute(ctx context.Context, req ExecuteRequest) (QueryResult, error)
	PollJob(ctx context.Context, jobID string) (QueryResult, error)
	CancelJob(ctx context.Context, jobID string) error
}

// QueryEditor applies edits originating from dialogs.
type QueryEditor interface {
	UpdateQuery(ctx context.Context, id int64, patch QueryPatch) (Query, error)
	SaveVisualization(ctx context.Context, v Visualization) (Visualization, error)
	DeleteVisualization(ctx context.Context, id int64) error
	AddWidget(ctx context.Context, dashboard string, visualizationID int64) (Widget, error)
	EmbedURL(ctx context.Context, queryID, visualizationID int64) (string, error)
}

// QueryService is the unified contract for read/write surfaces (HTTP and socket RPC)
// and for the terminal client.
type QueryService interface {
	QueryLookup
	QueryLister
	DataSourceLookup
	ResultSource
	QueryEditor
}
