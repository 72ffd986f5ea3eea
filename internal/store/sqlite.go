package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"factorlab/internal/domain"
)

// Compile-time interface checks.
var _ UserStore = (*SQLiteStore)(nil)
var _ FactorStore = (*SQLiteStore)(nil)
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements UserStore, FactorStore, and ResultStore backed by a
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	avatar     TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	last_login TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alpha_factors (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	name           TEXT NOT NULL,
	formula        TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	intuition      TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT 'Custom',
	sources        TEXT NOT NULL DEFAULT '[]',
	last_benchmark TEXT NOT NULL DEFAULT '',
	buy_threshold  TEXT NOT NULL DEFAULT '',
	sell_threshold TEXT NOT NULL DEFAULT '',
	factor_code    TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_factors_user ON alpha_factors(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS backtest_results (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT NOT NULL,
	factor_id         TEXT NOT NULL,
	benchmark_name    TEXT NOT NULL,
	sharpe_ratio      REAL NOT NULL,
	annualized_return REAL NOT NULL,
	max_drawdown      REAL NOT NULL,
	volatility        REAL NOT NULL,
	win_rate          REAL NOT NULL,
	ic                REAL,
	data              TEXT NOT NULL,
	trades            TEXT NOT NULL,
	generated_code    TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_factor ON backtest_results(factor_id, created_at DESC);
`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// UserStore implementation
// ---------------------------------------------------------------------------

// SaveUser upserts a user record and refreshes the last-login timestamp.
func (s *SQLiteStore) SaveUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, name, email, avatar, provider, last_login)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	email = excluded.email,
	avatar = excluded.avatar,
	provider = excluded.provider,
	last_login = excluded.last_login`,
		user.ID, user.Name, user.Email, user.Avatar, user.Provider,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ---------------------------------------------------------------------------
// FactorStore implementation
// ---------------------------------------------------------------------------

// SaveFactor upserts one factor for the owner.
func (s *SQLiteStore) SaveFactor(ctx context.Context, userID string, f *domain.AlphaFactor) error {
	sources, err := json.Marshal(f.Sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO alpha_factors
	(id, user_id, name, formula, description, intuition, category, sources,
	 last_benchmark, buy_threshold, sell_threshold, factor_code, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	user_id = excluded.user_id,
	name = excluded.name,
	formula = excluded.formula,
	description = excluded.description,
	intuition = excluded.intuition,
	category = excluded.category,
	sources = excluded.sources,
	last_benchmark = excluded.last_benchmark,
	buy_threshold = excluded.buy_threshold,
	sell_threshold = excluded.sell_threshold,
	factor_code = excluded.factor_code`,
		f.ID, userID, f.Name, f.Formula, f.Description, f.Intuition, f.Category,
		string(sources), f.LastBenchmark, f.BuyThreshold, f.SellThreshold,
		f.FactorCode, f.CreatedAt,
	)
	return err
}

// SyncFactors upserts the owner's full factor list inside one transaction.
func (s *SQLiteStore) SyncFactors(ctx context.Context, userID string, factors []domain.AlphaFactor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range factors {
		f := &factors[i]
		sources, err := json.Marshal(f.Sources)
		if err != nil {
			return fmt.Errorf("encoding sources for %s: %w", f.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO alpha_factors
	(id, user_id, name, formula, description, intuition, category, sources,
	 last_benchmark, buy_threshold, sell_threshold, factor_code, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	user_id = excluded.user_id,
	name = excluded.name,
	formula = excluded.formula,
	description = excluded.description,
	intuition = excluded.intuition,
	category = excluded.category,
	sources = excluded.sources,
	last_benchmark = excluded.last_benchmark,
	buy_threshold = excluded.buy_threshold,
	sell_threshold = excluded.sell_threshold,
	factor_code = excluded.factor_code`,
			f.ID, userID, f.Name, f.Formula, f.Description, f.Intuition, f.Category,
			string(sources), f.LastBenchmark, f.BuyThreshold, f.SellThreshold,
			f.FactorCode, f.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteFactor removes one factor scoped to the owner.
func (s *SQLiteStore) DeleteFactor(ctx context.Context, userID, factorID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM alpha_factors WHERE id = ? AND user_id = ?`, factorID, userID)
	return err
}

// ListFactors returns the owner's factors, newest first.
func (s *SQLiteStore) ListFactors(ctx context.Context, userID string) ([]domain.AlphaFactor, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, name, formula, description, intuition, category, sources,
       last_benchmark, buy_threshold, sell_threshold, factor_code, created_at
FROM alpha_factors WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []domain.AlphaFactor
	for rows.Next() {
		var f domain.AlphaFactor
		var sources string
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.Formula, &f.Description,
			&f.Intuition, &f.Category, &sources, &f.LastBenchmark,
			&f.BuyThreshold, &f.SellThreshold, &f.FactorCode, &f.CreatedAt); err != nil {
			return nil, err
		}
		if sources != "" && sources != "null" {
			if err := json.Unmarshal([]byte(sources), &f.Sources); err != nil {
				return nil, fmt.Errorf("decoding sources for %s: %w", f.ID, err)
			}
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

// ---------------------------------------------------------------------------
// ResultStore implementation
// ---------------------------------------------------------------------------

// SaveResult appends a backtest result for the given owner and factor. The
// SignalPoint sequence and trade ledger are stored as JSON columns.
func (s *SQLiteStore) SaveResult(ctx context.Context, userID, factorID string, result *domain.BacktestResult) error {
	data, err := json.Marshal(result.Data)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}
	trades, err := json.Marshal(result.Trades)
	if err != nil {
		return fmt.Errorf("encoding trades: %w", err)
	}

	var ic any
	if result.Metrics.IC != nil {
		ic = *result.Metrics.IC
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO backtest_results
	(user_id, factor_id, benchmark_name, sharpe_ratio, annualized_return,
	 max_drawdown, volatility, win_rate, ic, data, trades, generated_code, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, factorID, result.Metrics.BenchmarkName,
		result.Metrics.SharpeRatio, result.Metrics.AnnualizedReturn,
		result.Metrics.MaxDrawdown, result.Metrics.Volatility,
		result.Metrics.WinRate, ic, string(data), string(trades),
		result.GeneratedCode, time.Now().UnixMilli(),
	)
	return err
}

// ListResults returns the results stored for a factor, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, factorID string) ([]domain.BacktestResult, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT benchmark_name, sharpe_ratio, annualized_return, max_drawdown,
       volatility, win_rate, ic, data, trades, generated_code
FROM backtest_results WHERE factor_id = ? ORDER BY created_at DESC`, factorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.BacktestResult
	for rows.Next() {
		var r domain.BacktestResult
		var ic sql.NullFloat64
		var data, trades string
		if err := rows.Scan(&r.Metrics.BenchmarkName, &r.Metrics.SharpeRatio,
			&r.Metrics.AnnualizedReturn, &r.Metrics.MaxDrawdown,
			&r.Metrics.Volatility, &r.Metrics.WinRate, &ic,
			&data, &trades, &r.GeneratedCode); err != nil {
			return nil, err
		}
		if ic.Valid {
			v := ic.Float64
			r.Metrics.IC = &v
		}
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return nil, fmt.Errorf("decoding data: %w", err)
		}
		if err := json.Unmarshal([]byte(trades), &r.Trades); err != nil {
			return nil, fmt.Errorf("decoding trades: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
