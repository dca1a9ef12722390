package socketrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/queryview/internal/model"
)

// stubService embeds the interface so unexercised methods panic.
type stubService struct {
	model.QueryService
	patched model.QueryPatch
}

func (s *stubService) GetQuery(ctx context.Context, id int64) (model.Query, error) {
	return model.Query{ID: id, Name: "q"}, nil
}

func (s *stubService) UpdateQuery(ctx context.Context, id int64, patch model.QueryPatch) (model.Query, error) {
	s.patched = patch
	return model.Query{ID: id}, nil
}

func (s *stubService) CancelJob(ctx context.Context, jobID string) error {
	return errors.New("jobs: job not found: " + jobID)
}

func dispatchRaw(t *testing.T, svc model.QueryService, method, params string) Response {
	t.Helper()
	srv := NewServer("", svc)
	req := Request{JSONRPC: "2.0", ID: 7, Method: method}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return srv.dispatch(context.Background(), req)
}

func TestDispatchGetQuery(t *testing.T) {
	resp := dispatchRaw(t, &stubService{}, "GetQuery", `{"ID": 5}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, 7, resp.ID)

	var q model.Query
	require.NoError(t, json.Unmarshal(resp.Result, &q))
	assert.Equal(t, int64(5), q.ID)
}

func TestDispatchUpdateQueryPatch(t *testing.T) {
	svc := &stubService{}
	resp := dispatchRaw(t, svc, "UpdateQuery", `{"ID": 5, "Patch": {"clear_schedule": true, "name": "renamed"}}`)
	require.Nil(t, resp.Error)
	assert.True(t, svc.patched.ClearSchedule)
	require.NotNil(t, svc.patched.Name)
	assert.Equal(t, "renamed", *svc.patched.Name)
	assert.Nil(t, svc.patched.Description)
}

func TestDispatchErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		params string
		code   int
	}{
		{"unknown method", "DropEverything", `{}`, codeMethodNotFound},
		{"bad params", "GetQuery", `{"ID": "five"}`, codeInvalidParams},
		{"missing params", "GetQuery", ``, codeInvalidParams},
		{"application error", "CancelJob", `{"JobID": "x"}`, codeApplication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := dispatchRaw(t, &stubService{}, tt.method, tt.params)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestDispatchNullResult(t *testing.T) {
	svc := &nullService{}
	resp := dispatchRaw(t, svc, "DeleteVisualization", `{"ID": 3}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, "null", string(resp.Result))
	assert.Equal(t, int64(3), svc.deleted)
}

type nullService struct {
	model.QueryService
	deleted int64
}

func (s *nullService) DeleteVisualization(ctx context.Context, id int64) error {
	s.deleted = id
	return nil
}

func TestDefaultSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/queryview/queryview.sock", DefaultSocketPath())
}
