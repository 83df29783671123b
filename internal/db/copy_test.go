package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pointColumns = []string{"run_id", "day", "quantity"}

func pointRows(n int) [][]any {
	day := time.Date(2011, 12, 10, 0, 0, 0, 0, time.UTC)
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{"run-1", day.AddDate(0, 0, i), float64(100 + i)}
	}
	return rows
}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "forecast_points", pointColumns, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"forecast_points"}, pointColumns).WillReturnResult(3)

	n, err := CopyFrom(context.Background(), mock, "forecast_points", pointColumns, pointRows(3))
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_ShortWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"forecast_points"}, pointColumns).WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "forecast_points", pointColumns, pointRows(3))
	require.Error(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, err.Error(), "wrote 2 of 3 rows")
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"forecast_points"}, pointColumns).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFrom(context.Background(), mock, "forecast_points", pointColumns, pointRows(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO forecast_points")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_InTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"forecast_points"}, pointColumns).WillReturnResult(2)
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	_, err = CopyFrom(ctx, tx, "forecast_points", pointColumns, pointRows(2))
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Compile-time check that the mock pool satisfies Pool.
var _ Pool = (pgxmock.PgxPoolIface)(nil)
