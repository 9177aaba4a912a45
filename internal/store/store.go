// Package store persists unification runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shelfmatch/internal/model"
)

// RunRecord is a persisted run summary.
type RunRecord struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stats      model.RunStats `json:"stats"`
}

// Store persists run results.
type Store interface {
	Migrate(ctx context.Context) error
	// SaveRun writes a run with its products and members. Saving the same
	// run again replaces it.
	SaveRun(ctx context.Context, result *model.RunResult) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// Supported drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the store named by driver and runs migrations. The none
// driver returns a nil Store.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		st, err = NewSQLite(dsn)
	case DriverPostgres:
		st, err = NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

var productColumns = []string{
	"run_id", "product_id", "name", "brand", "size", "package",
	"min_price", "max_price", "shop_count", "member_count",
}

var memberColumns = []string{
	"run_id", "product_id", "position", "listing_ref", "shop_id", "title", "price",
}

func productRows(result *model.RunResult) [][]any {
	rows := make([][]any, len(result.Products))
	for i, p := range result.Products {
		rows[i] = []any{
			result.RunID, p.ID, p.Name, p.Key.Brand, p.Key.Size, p.Key.Package,
			p.MinPrice, p.MaxPrice, p.ShopCount, len(p.Members),
		}
	}
	return rows
}

func memberRows(result *model.RunResult) [][]any {
	var rows [][]any
	for _, p := range result.Products {
		for pos, m := range p.Members {
			rows = append(rows, []any{
				result.RunID, p.ID, pos, m.Listing.Ref(m.Index), m.Listing.ShopID, m.Listing.Title, m.Listing.Price,
			})
		}
	}
	return rows
}
