// Package ingest reads shop listings from CSV, TSV, XLSX and JSON files.
package ingest

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelfmatch/internal/model"
)

// Format is an input file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadListings loads every listing in path. Listings without an id get
// "<shop>#<position>". Unparseable prices and timestamps are kept as zero
// values and logged; rows are never dropped.
func ReadListings(ctx context.Context, path string) ([]model.RawListing, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	if format == FormatXLSX {
		rows, err := ReadXLSX(path, "")
		if err != nil {
			return nil, err
		}
		return FromRows(rows)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch format {
	case FormatJSON:
		return ReadJSON(ctx, f)
	case FormatTSV:
		return ReadDelimited(ctx, f, '\t')
	default:
		return ReadDelimited(ctx, f, ',')
	}
}

// ReadDelimited reads a header-mapped delimited stream.
func ReadDelimited(ctx context.Context, r io.Reader, comma rune) ([]model.RawListing, error) {
	rowCh, errCh := StreamCSV(ctx, r, comma)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return FromRows(rows)
}

// headerAliases maps accepted column names to record fields.
var headerAliases = map[string]string{
	"id": "id", "listing_id": "id", "sku": "id",
	"shop_id": "shop", "shop": "shop", "store": "shop", "retailer": "shop",
	"title": "title", "name": "title", "product": "title", "product_name": "title",
	"price": "price",
	"currency": "currency",
	"observed_at": "observed_at", "scraped_at": "observed_at", "timestamp": "observed_at",
}

// FromRows maps tabular rows to listings. The first row is the header; it
// must name a shop and a title column. Entirely blank rows are skipped.
func FromRows(rows [][]string) ([]model.RawListing, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := headerAliases[name]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	for _, required := range []string{"shop", "title"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("ingest: header has no %s column", required)
		}
	}

	get := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var recs []record
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		recs = append(recs, record{
			ID:         get(row, "id"),
			Shop:       get(row, "shop"),
			Title:      get(row, "title"),
			Price:      get(row, "price"),
			Currency:   get(row, "currency"),
			ObservedAt: get(row, "observed_at"),
		})
	}
	return toListings(recs), nil
}

// ReadJSON reads a JSON array of listing objects. Numeric ids and prices are
// accepted as well as strings.
func ReadJSON(ctx context.Context, r io.Reader) ([]model.RawListing, error) {
	ch, errCh := DecodeJSONArray[jsonListing](ctx, r)
	var recs []record
	for item := range ch {
		recs = append(recs, record{
			ID:         string(item.ID),
			Shop:       string(item.ShopID),
			Title:      string(item.Title),
			Price:      string(item.Price),
			Currency:   string(item.Currency),
			ObservedAt: string(item.ObservedAt),
		})
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return toListings(recs), nil
}

type jsonListing struct {
	ID         flexString `json:"id"`
	ShopID     flexString `json:"shop_id"`
	Title      flexString `json:"title"`
	Price      flexString `json:"price"`
	Currency   flexString `json:"currency"`
	ObservedAt flexString `json:"observed_at"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}

type record struct {
	ID, Shop, Title, Price, Currency, ObservedAt string
}

func toListings(recs []record) []model.RawListing {
	out := make([]model.RawListing, len(recs))
	for i, r := range recs {
		l := model.RawListing{
			ID:       strings.TrimSpace(r.ID),
			ShopID:   strings.TrimSpace(r.Shop),
			Title:    r.Title,
			Currency: strings.ToUpper(strings.TrimSpace(r.Currency)),
		}
		var ok bool
		if l.Price, ok = ParsePrice(r.Price); !ok {
			zap.L().Warn("ingest: unparseable price", zap.Int("row", i), zap.String("price", r.Price))
		}
		if l.ObservedAt, ok = ParseTime(r.ObservedAt); !ok {
			zap.L().Warn("ingest: unparseable timestamp", zap.Int("row", i), zap.String("observed_at", r.ObservedAt))
		}
		l.ID = l.Ref(i)
		out[i] = l
	}
	return out
}

// ParsePrice reads prices such as "3.99", "3,99", "€ 1.234,50" or
// "1,234.50". The last separator is the decimal point. Empty input is zero
// and not an error.
func ParsePrice(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return 0, strings.TrimSpace(s) == ""
	}

	dot, comma := strings.LastIndex(clean, "."), strings.LastIndex(clean, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		clean = strings.ReplaceAll(clean, ",", "")
	case comma >= 0:
		clean = strings.Replace(clean, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// ParseTime accepts RFC 3339 and common date layouts; day-first for slashed
// dates. Empty input is the zero time and not an error.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
