package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelfmatch/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS unify_runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectRunUpsert(mock pgxmock.PgxPoolIface, res *model.RunResult) *pgxmock.ExpectedExec {
	return mock.ExpectExec(`(?s)INSERT INTO unify_runs.*ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(res.RunID, res.StartedAt, res.FinishedAt, res.Stats.Listings, len(res.Products), pgxmock.AnyArg())
}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	res := testResult("run-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	expectRunUpsert(mock, res).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM product_members WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_unified_products"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_unified_products"}, productColumns).WillReturnResult(2)
	mock.ExpectExec(`(?s)INSERT INTO "unified_products".*ON CONFLICT \("run_id", "product_id"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`DELETE FROM unified_products WHERE run_id = \$1 AND product_id > \$2`).
		WithArgs("run-1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"product_members"}, memberColumns).WillReturnResult(3)
	mock.ExpectCommit()

	require.NoError(t, s.SaveRun(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_RunInsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	res := testResult("run-1", time.Now())

	mock.ExpectBegin()
	expectRunUpsert(mock, res).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.SaveRun(context.Background(), res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert run run-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_MemberCopyFailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	res := testResult("run-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	expectRunUpsert(mock, res).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM product_members`).WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_unified_products"}, productColumns).WillReturnResult(2)
	mock.ExpectExec(`(?s)INSERT INTO "unified_products"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`DELETE FROM unified_products`).WithArgs("run-1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"product_members"}, memberColumns).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.SaveRun(context.Background(), res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: copy members")
	// No commit was issued: the earlier run and product writes are discarded.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, started_at, finished_at, stats FROM unify_runs ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "started_at", "finished_at", "stats"}).
			AddRow("run-2", t0.Add(time.Hour), t0.Add(time.Hour+time.Second), []byte(`{"listings":7,"products":5}`)).
			AddRow("run-1", t0, t0.Add(time.Second), []byte(`{"listings":3}`)))

	runs, err := s.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 5, runs[0].Stats.Products)
	assert.Equal(t, 3, runs[1].Stats.Listings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id`).WithArgs(20).WillReturnError(errors.New("boom"))

	_, err := s.ListRuns(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}

func TestMemberRows(t *testing.T) {
	rows := memberRows(testResult("r", time.Now()))

	require.Len(t, rows, 3)
	assert.Equal(t, []any{"r", 1, 0, "a1", "A", "Kellogg's Krave Choco Nut 410g", 3.99}, rows[0])
	assert.Equal(t, "B#1", rows[1][3])
	assert.Equal(t, 2, rows[2][1])
}
