package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/db"
	"github.com/sells-group/retail-insights/internal/model"
	"github.com/sells-group/retail-insights/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var pointColumns = []string{"run_id", "day", "quantity"}

// NewPostgres creates a PostgresStore with a connection pool. The initial
// connection is retried while the server reports a transient failure, which
// covers a database container that is still starting.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 5
	retry.OnRetry = resilience.LogRetries("store", "postgres connect")

	pool, err := resilience.Retry(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: create pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "postgres: ping")
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("store: connected to postgres",
		zap.String("host", pgxCfg.ConnConfig.Host),
		zap.String("database", pgxCfg.ConnConfig.Database),
		zap.Int32("max_conns", maxConns),
	)
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS predictions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	description TEXT NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS forecast_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	steps       INTEGER NOT NULL,
	order_p     INTEGER NOT NULL,
	order_d     INTEGER NOT NULL,
	order_q     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	images      JSONB NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS forecast_points (
	run_id   TEXT NOT NULL REFERENCES forecast_runs(id) ON DELETE CASCADE,
	day      DATE NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, day)
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_forecast_runs_created_at ON forecast_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_forecast_runs_status ON forecast_runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) RecordPrediction(ctx context.Context, p model.Prediction) (*model.PredictionRecord, error) {
	rec := &model.PredictionRecord{ID: uuid.New().String(), Prediction: p, CreatedAt: time.Now().UTC()}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal prediction")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (id, description, payload, created_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, p.ProductDescription, payload, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert prediction")
	}
	return rec, nil
}

func (s *PostgresStore) ListPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, payload, created_at FROM predictions ORDER BY created_at DESC LIMIT $1`,
		ForecastFilter{Limit: limit}.limit(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	out := []model.PredictionRecord{}
	for rows.Next() {
		var rec model.PredictionRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &payload, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prediction")
		}
		if err := json.Unmarshal(payload, &rec.Prediction); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal prediction")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list predictions iterate")
}

// RecordForecast inserts the run and COPYs its points in one transaction.
func (s *PostgresStore) RecordForecast(ctx context.Context, run model.ForecastRun) (*model.ForecastRun, error) {
	prepareRun(&run)
	images, err := json.Marshal(run.Images)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal images")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	fail := func(err error) (*model.ForecastRun, error) {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO forecast_runs (id, steps, order_p, order_d, order_q, status, images, error, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Steps, run.Order[0], run.Order[1], run.Order[2], string(run.Status),
		images, run.Error, run.Duration.Milliseconds(), run.CreatedAt,
	)
	if err != nil {
		return fail(eris.Wrap(err, "postgres: insert forecast run"))
	}

	rows := make([][]any, len(run.Points))
	for i, p := range run.Points {
		rows[i] = []any{run.ID, p.Day, p.Quantity}
	}
	if _, err := db.CopyFrom(ctx, tx, "forecast_points", pointColumns, rows); err != nil {
		return fail(eris.Wrap(err, "postgres: copy forecast points"))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit forecast run")
	}
	return &run, nil
}

const postgresRunColumns = `id, steps, order_p, order_d, order_q, status, images, error, duration_ms, created_at`

func (s *PostgresStore) ListForecasts(ctx context.Context, filter ForecastFilter) ([]model.ForecastRun, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM forecast_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list forecasts")
	}
	defer rows.Close()

	runs := []model.ForecastRun{}
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list forecasts iterate")
}

func (s *PostgresStore) GetForecast(ctx context.Context, id string) (*model.ForecastRun, error) {
	run, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM forecast_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: forecast run %s", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT day, quantity FROM forecast_points WHERE run_id = $1 ORDER BY day`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get forecast points")
	}
	defer rows.Close()
	for rows.Next() {
		var p model.DailyPoint
		if err := rows.Scan(&p.Day, &p.Quantity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan forecast point")
		}
		run.Points = append(run.Points, p)
	}
	return run, eris.Wrap(rows.Err(), "postgres: forecast points iterate")
}

func scanPostgresRun(row pgx.Row) (*model.ForecastRun, error) {
	var r model.ForecastRun
	var status string
	var images []byte
	var durationMS int64

	err := row.Scan(&r.ID, &r.Steps, &r.Order[0], &r.Order[1], &r.Order[2],
		&status, &images, &r.Error, &durationMS, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan forecast run")
	}

	r.Status = model.ForecastStatus(status)
	r.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal(images, &r.Images); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal images")
	}
	return &r, nil
}
