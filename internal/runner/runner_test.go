package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/queryview/internal/model"
)

func newMockRunner(t *testing.T, maxRows int) (*SQLRunner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return NewSQLRunner(db, maxRows), mock
}

func TestSQLRunnerRun(t *testing.T) {
	r, mock := newMockRunner(t, 10)

	rows := mock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("day").OfType("VARCHAR", ""),
		sqlmock.NewColumn("signups").OfType("BIGINT", int64(0)),
	).AddRow([]byte("2026-01-01"), int64(3)).AddRow("2026-01-02", int64(5))
	mock.ExpectQuery("SELECT day, signups FROM daily").WillReturnRows(rows)

	res, err := r.Run(context.Background(), "SELECT day, signups FROM daily;")
	require.NoError(t, err)

	assert.Equal(t, []model.Column{{Name: "day", Type: "varchar"}, {Name: "signups", Type: "bigint"}}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "2026-01-01", res.Rows[0]["day"])
	assert.Equal(t, int64(5), res.Rows[1]["signups"])
	assert.False(t, res.Truncated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunnerTruncates(t *testing.T) {
	r, mock := newMockRunner(t, 2)

	rows := mock.NewRowsWithColumnDefinition(sqlmock.NewColumn("n").OfType("INTEGER", int64(0)))
	for i := 0; i < 5; i++ {
		rows.AddRow(int64(i))
	}
	mock.ExpectQuery("SELECT n FROM t").WillReturnRows(rows)

	res, err := r.Run(context.Background(), "SELECT n FROM t")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)
}

func TestSQLRunnerRejectsWrites(t *testing.T) {
	r, mock := newMockRunner(t, 10)

	_, err := r.Run(context.Background(), "DELETE FROM t")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReadOnly))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunnerQueryError(t *testing.T) {
	r, mock := newMockRunner(t, 10)
	mock.ExpectQuery("SELECT * FROM missing").WillReturnError(errors.New("no such table"))

	_, err := r.Run(context.Background(), "SELECT * FROM missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner: query: no such table")
}

func TestSQLRunnerClose(t *testing.T) {
	r, mock := newMockRunner(t, 10)
	mock.ExpectClose()

	require.NoError(t, r.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
