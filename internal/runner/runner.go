// Package runner executes saved query text against data sources.
package runner

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/queryview/internal/model"
)

// Result is the tabular output of one query run.
type Result struct {
	Columns   []model.Column
	Rows      []map[string]any
	Truncated bool
}

// Runner runs read-only SQL.
type Runner interface {
	Run(ctx context.Context, query string) (Result, error)
	Close() error
}

// SQLRunner runs queries through database/sql.
type SQLRunner struct {
	db      *sql.DB
	maxRows int
}

// NewSQLRunner wraps db. maxRows caps the rows kept per result.
func NewSQLRunner(db *sql.DB, maxRows int) *SQLRunner {
	if maxRows <= 0 {
		maxRows = model.DefaultMaxResultRows
	}
	return &SQLRunner{db: db, maxRows: maxRows}
}

// Run validates query as read-only, runs it and collects up to maxRows rows.
func (r *SQLRunner) Run(ctx context.Context, query string) (Result, error) {
	stmt, err := CheckReadOnly(query)
	if err != nil {
		return Result{}, err
	}

	rows, err := r.db.QueryContext(ctx, stmt)
	if err != nil {
		return Result{}, fmt.Errorf("runner: query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, r.maxRows)
}

// Close closes the underlying database.
func (r *SQLRunner) Close() error {
	return r.db.Close()
}

func scanRows(rows *sql.Rows, maxRows int) (Result, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return Result{}, fmt.Errorf("runner: columns: %w", err)
	}

	res := Result{Columns: make([]model.Column, len(types))}
	for i, ct := range types {
		res.Columns[i] = model.Column{Name: ct.Name(), Type: strings.ToLower(ct.DatabaseTypeName())}
	}

	for rows.Next() {
		if len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("runner: scan: %w", err)
		}

		row := make(map[string]any, len(types))
		for i, col := range res.Columns {
			row[col.Name] = normalize(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("runner: rows: %w", err)
	}
	return res, nil
}

// normalize converts driver values into JSON-friendly ones.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}
