package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/queryview/internal/model"
)

func newRunCmd(load configLoader) *cobra.Command {
	var (
		params []string
		format string
		maxAge int64
	)
	cmd := &cobra.Command{
		Use:   "run <query-id>",
		Short: "Execute a saved query and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid query id %q", args[0])
			}
			values, err := parseParams(params)
			if err != nil {
				return err
			}
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := executeAndWait(ctx, rt.svc, model.ExecuteRequest{
				QueryID:    id,
				Parameters: values,
				MaxAge:     maxAge,
			}, model.DefaultPollInterval/4)
			if err != nil {
				return err
			}
			return renderResult(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter value as name=value (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json, csv, md")
	cmd.Flags().Int64Var(&maxAge, "max-age", 0, "accept a cached result at most this many seconds old (-1 any)")
	return cmd
}

// parseParams turns name=value pairs into execution parameter values.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, want name=value", p)
		}
		values[name] = value
	}
	return values, nil
}

type executor interface {
	Execute(ctx context.Context, req model.ExecuteRequest) (model.QueryResult, error)
	PollJob(ctx context.Context, jobID string) (model.QueryResult, error)
}

// executeAndWait submits req and polls until the job is terminal.
func executeAndWait(ctx context.Context, svc executor, req model.ExecuteRequest, interval time.Duration) (model.QueryResult, error) {
	res, err := svc.Execute(ctx, req)
	if err != nil {
		return res, err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !res.Status.Terminal() {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
		if res, err = svc.PollJob(ctx, res.JobID); err != nil {
			return res, err
		}
	}
	if res.Status == model.StatusFailed {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// renderResult writes res in the requested format.
func renderResult(w io.Writer, res model.QueryResult, format string) error {
	cols := make([]string, 0, len(res.Columns))
	for _, c := range res.Columns {
		cols = append(cols, c.Name)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Rows)
	case "csv", "md", "markdown", "table", "":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, row := range res.Rows {
		r := make(table.Row, len(cols))
		for i, c := range cols {
			r[i] = formatCell(row[c])
		}
		t.AppendRow(r)
	}

	switch format {
	case "csv":
		t.RenderCSV()
	case "md", "markdown":
		t.RenderMarkdown()
	default:
		t.Render()
		fmt.Fprintf(w, "(%s, %s)\n", rowsLabel(len(res.Rows)), time.Duration(res.Runtime*float64(time.Second)).Round(time.Millisecond))
	}
	return nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

func rowsLabel(n int) string {
	if n == 1 {
		return "1 row"
	}
	return strconv.Itoa(n) + " rows"
}
