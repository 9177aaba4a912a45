package model

import (
	"fmt"
	"time"
)

// RawListing is one product offer as delivered by a shop scraper. It is
// treated as immutable once ingested.
type RawListing struct {
	ID         string    `json:"id"`
	ShopID     string    `json:"shop_id"`
	Title      string    `json:"title"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Ref returns the listing reference, falling back to shop and input position
// when the source did not supply an id.
func (l RawListing) Ref(index int) string {
	if l.ID != "" {
		return l.ID
	}
	return fmt.Sprintf("%s#%d", l.ShopID, index)
}

// NormalizedTitle is a lowercase, diacritic-free, whitespace-collapsed title.
type NormalizedTitle string

// String implements fmt.Stringer.
func (t NormalizedTitle) String() string { return string(t) }
