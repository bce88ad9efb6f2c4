package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, NewRunRepository(db).EnsureSchema(context.Background()))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS mailflow_runs")
}

func TestInsertBindsRecord(t *testing.T) {
	db := &fakeExecer{}
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := NewRunRepository(db).Insert(context.Background(), &RunRecord{
		RunID:          "run-1",
		Status:         "completed",
		Fetched:        3,
		Urgent:         1,
		Regular:        2,
		Attempted:      3,
		Sent:           2,
		Failed:         1,
		FailedBranches: []string{"has_attachment"},
		Duration:       1500 * time.Millisecond,
		FinishedAt:     finished,
	})
	require.NoError(t, err)

	require.Len(t, db.calls, 1)
	call := db.calls[0]
	assert.Contains(t, call.sql, "ON CONFLICT (run_id) DO NOTHING")
	require.Len(t, call.args, 18)
	assert.Equal(t, "run-1", call.args[0])
	assert.Equal(t, "completed", call.args[1])
	assert.Equal(t, 3, call.args[4])
	assert.Equal(t, []string{"has_attachment"}, call.args[14])
	assert.Equal(t, []string{}, call.args[15])
	assert.Equal(t, int64(1500), call.args[16])
	assert.Equal(t, finished, call.args[17])
}

func TestInsertWrapsError(t *testing.T) {
	boom := errors.New("connection reset")
	err := NewRunRepository(&fakeExecer{err: boom}).Insert(context.Background(), &RunRecord{RunID: "run-2"})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "run-2")
}
