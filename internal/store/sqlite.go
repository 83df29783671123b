package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/retail-insights/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS predictions (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_runs (
	id          TEXT PRIMARY KEY,
	steps       INTEGER NOT NULL,
	order_p     INTEGER NOT NULL,
	order_d     INTEGER NOT NULL,
	order_q     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	images      TEXT NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_points (
	run_id   TEXT NOT NULL REFERENCES forecast_runs(id) ON DELETE CASCADE,
	day      DATETIME NOT NULL,
	quantity REAL NOT NULL,
	PRIMARY KEY (run_id, day)
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
CREATE INDEX IF NOT EXISTS idx_forecast_runs_created_at ON forecast_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_forecast_runs_status ON forecast_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordPrediction(ctx context.Context, p model.Prediction) (*model.PredictionRecord, error) {
	rec := &model.PredictionRecord{ID: uuid.New().String(), Prediction: p, CreatedAt: time.Now().UTC()}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal prediction")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, description, payload, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, p.ProductDescription, string(payload), rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert prediction")
	}
	return rec, nil
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, created_at FROM predictions ORDER BY created_at DESC LIMIT ?`,
		ForecastFilter{Limit: limit}.limit(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.PredictionRecord{}
	for rows.Next() {
		var rec model.PredictionRecord
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		if err := json.Unmarshal([]byte(payload), &rec.Prediction); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal prediction")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list predictions iterate")
}

func (s *SQLiteStore) RecordForecast(ctx context.Context, run model.ForecastRun) (*model.ForecastRun, error) {
	prepareRun(&run)
	images, err := json.Marshal(run.Images)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal images")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO forecast_runs (id, steps, order_p, order_d, order_q, status, images, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Steps, run.Order[0], run.Order[1], run.Order[2], string(run.Status),
		string(images), run.Error, run.Duration.Milliseconds(), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert forecast run")
	}

	if len(run.Points) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO forecast_points (run_id, day, quantity) VALUES (?, ?, ?)`)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: prepare forecast points")
		}
		defer stmt.Close() //nolint:errcheck
		for _, p := range run.Points {
			if _, err := stmt.ExecContext(ctx, run.ID, p.Day.UTC(), p.Quantity); err != nil {
				return nil, eris.Wrap(err, "sqlite: insert forecast point")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit forecast run")
	}
	return &run, nil
}

const sqliteRunColumns = `id, steps, order_p, order_d, order_q, status, images, error, duration_ms, created_at`

func (s *SQLiteStore) ListForecasts(ctx context.Context, filter ForecastFilter) ([]model.ForecastRun, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM forecast_runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list forecasts")
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.ForecastRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list forecasts iterate")
}

func (s *SQLiteStore) GetForecast(ctx context.Context, id string) (*model.ForecastRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM forecast_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: forecast run %s", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT day, quantity FROM forecast_points WHERE run_id = ? ORDER BY day`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get forecast points")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var p model.DailyPoint
		if err := rows.Scan(&p.Day, &p.Quantity); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan forecast point")
		}
		p.Day = p.Day.UTC()
		run.Points = append(run.Points, p)
	}
	return run, eris.Wrap(rows.Err(), "sqlite: forecast points iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.ForecastRun, error) {
	var r model.ForecastRun
	var status, images string
	var durationMS int64

	err := row.Scan(&r.ID, &r.Steps, &r.Order[0], &r.Order[1], &r.Order[2],
		&status, &images, &r.Error, &durationMS, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan forecast run")
	}

	r.Status = model.ForecastStatus(status)
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.CreatedAt = r.CreatedAt.UTC()
	if err := json.Unmarshal([]byte(images), &r.Images); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal images")
	}
	return &r, nil
}

// prepareRun fills the ID and timestamp of a run about to be recorded.
func prepareRun(run *model.ForecastRun) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.ForecastStatusComplete
	}
}
