package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shelfmatch/internal/db"
	"github.com/sells-group/shelfmatch/internal/model"
)

// PostgresStore implements Store on a pgx pool. Products are upserted and
// members bulk-loaded with COPY.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, db.PoolConfig{})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS unify_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	listings    INTEGER NOT NULL,
	products    INTEGER NOT NULL,
	stats       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS unified_products (
	run_id       TEXT NOT NULL REFERENCES unify_runs(id) ON DELETE CASCADE,
	product_id   INTEGER NOT NULL,
	name         TEXT NOT NULL,
	brand        TEXT NOT NULL,
	size         TEXT NOT NULL,
	package      TEXT NOT NULL,
	min_price    DOUBLE PRECISION NOT NULL,
	max_price    DOUBLE PRECISION NOT NULL,
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
	price       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, product_id, position),
	FOREIGN KEY (run_id, product_id) REFERENCES unified_products(run_id, product_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_unify_runs_started_at ON unify_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_unified_products_key ON unified_products(brand, size, package);
CREATE INDEX IF NOT EXISTS idx_product_members_listing ON product_members(listing_ref);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveRun implements Store. All writes share one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, result *model.RunResult) error {
	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO unify_runs (id, started_at, finished_at, listings, products, stats)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at,
				listings = EXCLUDED.listings, products = EXCLUDED.products, stats = EXCLUDED.stats`,
			result.RunID, result.StartedAt, result.FinishedAt, result.Stats.Listings, len(result.Products), string(stats),
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert run %s", result.RunID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM product_members WHERE run_id = $1`, result.RunID); err != nil {
			return eris.Wrapf(err, "postgres: clear members of run %s", result.RunID)
		}

		if _, err := db.Merge(ctx, tx, db.MergeSpec{
			Table:   "unified_products",
			Columns: productColumns,
			Keys:    []string{"run_id", "product_id"},
		}, productRows(result)); err != nil {
			return eris.Wrap(err, "postgres: upsert products")
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM unified_products WHERE run_id = $1 AND product_id > $2`,
			result.RunID, maxProductID(result),
		); err != nil {
			return eris.Wrapf(err, "postgres: prune products of run %s", result.RunID)
		}

		if _, err := db.CopyFrom(ctx, tx, "product_members", memberColumns, memberRows(result)); err != nil {
			return eris.Wrap(err, "postgres: copy members")
		}
		return nil
	})
}

func maxProductID(result *model.RunResult) int {
	hi := 0
	for _, p := range result.Products {
		hi = max(hi, p.ID)
	}
	return hi
}

// ListRuns implements Store.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, finished_at, stats FROM unify_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var stats []byte
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &stats); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(stats, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
