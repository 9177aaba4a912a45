package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// Conn is the write surface shared by pools and transactions.
type Conn interface {
	Copier
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise.
func InTx(ctx context.Context, b Beginner, fn func(tx pgx.Tx) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return eris.Wrapf(err, "db: rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit tx")
	}
	return nil
}

// MergeSpec describes rows merged into a table keyed by a unique constraint.
type MergeSpec struct {
	Table   string   // optionally schema-qualified
	Columns []string // column order of each row
	Keys    []string // unique constraint columns
	// Update lists columns overwritten on conflict. Nil means every
	// non-key column; an empty slice keeps existing rows untouched.
	Update []string
}

func (s MergeSpec) updateColumns() []string {
	if s.Update != nil {
		return s.Update
	}
	keys := make(map[string]bool, len(s.Keys))
	for _, k := range s.Keys {
		keys[k] = true
	}
	var cols []string
	for _, c := range s.Columns {
		if !keys[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// stagingTable names the temp table a merge into table loads through.
func stagingTable(table string) pgx.Identifier {
	return pgx.Identifier{"_stage_" + strings.ReplaceAll(table, ".", "_")}
}

// Merge stages rows with COPY in a temp table dropped at commit, then merges
// them with INSERT ... ON CONFLICT. tx must be an open transaction.
func Merge(ctx context.Context, tx Conn, spec MergeSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, eris.Errorf("db: merge %s: no columns", spec.Table)
	}
	if len(spec.Keys) == 0 {
		return 0, eris.Errorf("db: merge %s: no key columns", spec.Table)
	}

	target := identifier(spec.Table).Sanitize()
	stage := stagingTable(spec.Table)

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", stage.Sanitize(), target,
	)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: create staging table", spec.Table)
	}

	if _, err := tx.CopyFrom(ctx, stage, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: stage rows", spec.Table)
	}

	onConflict := "DO NOTHING"
	if update := spec.updateColumns(); len(update) > 0 {
		set := make([]string, len(update))
		for i, col := range update {
			q := pgx.Identifier{col}.Sanitize()
			set[i] = q + " = EXCLUDED." + q
		}
		onConflict = "DO UPDATE SET " + strings.Join(set, ", ")
	}

	cols := quoteAndJoin(spec.Columns)
	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, stage.Sanitize(), quoteAndJoin(spec.Keys), onConflict,
	))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: insert", spec.Table)
	}
	return tag.RowsAffected(), nil
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
