package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/shelfmatch/internal/model"
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
CREATE TABLE IF NOT EXISTS unify_runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	listings    INTEGER NOT NULL,
	products    INTEGER NOT NULL,
	stats       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS unified_products (
	run_id       TEXT NOT NULL REFERENCES unify_runs(id) ON DELETE CASCADE,
	product_id   INTEGER NOT NULL,
	name         TEXT NOT NULL,
	brand        TEXT NOT NULL,
	size         TEXT NOT NULL,
	package      TEXT NOT NULL,
	min_price    REAL NOT NULL,
	max_price    REAL NOT NULL,
	shop_count   INTEGER NOT NULL,
	member_count INTEGER NOT NULL,
	PRIMARY KEY (run_id, product_id)
);

CREATE TABLE IF NOT EXISTS product_members (
	run_id      TEXT NOT NULL,
	product_id  INTEGER NOT NULL,
	position    INTEGER NOT NULL,
	listing_ref TEXT NOT NULL,
	shop_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	price       REAL NOT NULL,
	PRIMARY KEY (run_id, product_id, position),
	FOREIGN KEY (run_id, product_id) REFERENCES unified_products(run_id, product_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_unify_runs_started_at ON unify_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_unified_products_key ON unified_products(brand, size, package);
CREATE INDEX IF NOT EXISTS idx_product_members_listing ON product_members(listing_ref);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun implements Store.
func (s *SQLiteStore) SaveRun(ctx context.Context, result *model.RunResult) error {
	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM unify_runs WHERE id = ?`, result.RunID); err != nil {
		return eris.Wrapf(err, "sqlite: clear run %s", result.RunID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO unify_runs (id, started_at, finished_at, listings, products, stats) VALUES (?, ?, ?, ?, ?, ?)`,
		result.RunID, result.StartedAt.UTC(), result.FinishedAt.UTC(), result.Stats.Listings, len(result.Products), string(stats),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", result.RunID)
	}

	if err := insertRows(ctx, tx, "unified_products", productColumns, productRows(result)); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, "product_members", memberColumns, memberRows(result)); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" ("+strings.Join(columns, ", ")+") VALUES ("+marks+")")
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	return nil
}

// ListRuns implements Store.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, stats FROM unify_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var stats string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// members returns the listing refs of one stored product in member order.
func (s *SQLiteStore) members(ctx context.Context, runID string, productID int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT listing_ref FROM product_members WHERE run_id = ? AND product_id = ? ORDER BY position`,
		runID, productID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query members")
	}
	defer rows.Close() //nolint:errcheck

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan member")
		}
		refs = append(refs, ref)
	}
	return refs, eris.Wrap(rows.Err(), "sqlite: iterate members")
}
