package sql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementKind(t *testing.T) {
	tests := []struct{ query, want string }{
		{"SELECT * FROM tags", KindSelect},
		{"  insert INTO t (a) VALUES (?)", KindInsert},
		{"UPDATE t SET a = ?", KindUpdate},
		{"DELETE FROM article_tags WHERE 1", KindDelete},
		{"CREATE TABLE t (id INTEGER)", KindOther},
		{"", KindOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatementKind(tt.query), tt.query)
	}
}

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB("sqlite", db),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM article_tags").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT \\* FROM tags").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO article_tags").WillReturnError(errors.New("duplicate"))
	mock.ExpectRollback()

	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "DELETE FROM article_tags WHERE article_id = ?", []any{1}, nil))
	var rows Rows
	require.NoError(t, tx.Query(ctx, "SELECT * FROM tags WHERE id = ?", []any{7}, &rows))
	require.NoError(t, rows.Close())
	require.Error(t, tx.Exec(ctx, "INSERT INTO article_tags (article_id, tag_id) VALUES (?, ?)", []any{1, 7}, nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), s.Deletes)
	assert.Equal(t, int64(1), s.Selects)
	assert.Equal(t, int64(1), s.Inserts)
	assert.Equal(t, int64(3), s.Total())
	assert.Equal(t, int64(3), s.Slow)
	assert.Equal(t, int64(1), s.Errors)
	assert.Len(t, slow, 3)
	assert.Contains(t, s.String(), "select=1 insert=1 update=0 delete=1 other=0")
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	drv := Debug(OpenDB("postgres", db), logger)
	ctx := context.Background()

	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, drv.Exec(ctx, "DELETE FROM article_tags", []any{}, nil))
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, "sql: exec")
	assert.Contains(t, out, "DELETE FROM article_tags")
	assert.Contains(t, out, "sql: begin")
	assert.Contains(t, out, "sql: commit")
}
