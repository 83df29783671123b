package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/retail-insights/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

var runColumns = []string{"id", "steps", "order_p", "order_d", "order_q", "status", "images", "error", "duration_ms", "created_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS predictions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordPrediction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO predictions`).
		WithArgs(pgxmock.AnyArg(), "WHITE METAL LANTERN", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := s.RecordPrediction(context.Background(), model.Prediction{ProductDescription: "WHITE METAL LANTERN"})
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordPrediction_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO predictions`).
		WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.RecordPrediction(context.Background(), model.Prediction{ProductDescription: "MUG"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert prediction")
}

func TestPostgresStore_RecordForecast_CopiesPoints(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	day := time.Date(2011, 12, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO forecast_runs`).
		WithArgs(pgxmock.AnyArg(), 2, 5, 1, 0, "complete", pgxmock.AnyArg(), "", int64(250), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"forecast_points"}, pointColumns).WillReturnResult(2)
	mock.ExpectCommit()

	run, err := s.RecordForecast(context.Background(), model.ForecastRun{
		Steps:    2,
		Order:    [3]int{5, 1, 0},
		Duration: 250 * time.Millisecond,
		Points:   []model.DailyPoint{{Day: day, Quantity: 10}, {Day: day.AddDate(0, 0, 1), Quantity: 11}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ForecastStatusComplete, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordForecast_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO forecast_runs`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"forecast_points"}, pointColumns).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err := s.RecordForecast(context.Background(), model.ForecastRun{
		Steps:  1,
		Points: []model.DailyPoint{{Day: time.Now(), Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy forecast points")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListForecasts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rows := mock.NewRows(runColumns).
		AddRow("run-1", 30, 5, 1, 0, "failed", []byte(`[]`), "forecast: fit", int64(12), created)

	mock.ExpectQuery(`SELECT id, steps, .* FROM forecast_runs WHERE true AND status = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("failed", DefaultListLimit).
		WillReturnRows(rows)

	runs, err := s.ListForecasts(context.Background(), ForecastFilter{Status: model.ForecastStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, [3]int{5, 1, 0}, runs[0].Order)
	assert.Equal(t, model.ForecastStatusFailed, runs[0].Status)
	assert.Equal(t, "forecast: fit", runs[0].Error)
	assert.Equal(t, 12*time.Millisecond, runs[0].Duration)
	assert.Empty(t, runs[0].Images)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetForecast(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	day := time.Date(2011, 12, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM forecast_runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows(runColumns).
			AddRow("run-1", 2, 5, 1, 0, "complete", []byte(`["sales_forecast.png"]`), "", int64(900), created))
	mock.ExpectQuery(`SELECT day, quantity FROM forecast_points WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows([]string{"day", "quantity"}).
			AddRow(day, 10.5).
			AddRow(day.AddDate(0, 0, 1), 11.25))

	run, err := s.GetForecast(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sales_forecast.png"}, run.Images)
	require.Len(t, run.Points, 2)
	assert.InDelta(t, 11.25, run.Points[1].Quantity, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetForecast_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM forecast_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetForecast(context.Background(), "nonexistent-run")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
