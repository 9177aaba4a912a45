// Package assemble turns per-bucket clusters into unified products.
package assemble

import (
	"strings"

	"github.com/sells-group/shelfmatch/internal/model"
)

// Assembler assigns product ids from a counter scoped to one run. It is not
// safe for concurrent use; the pipeline calls it from a single goroutine.
type Assembler struct {
	next int
}

// NewAssembler returns an Assembler whose first product id is start.
func NewAssembler(start int) *Assembler {
	return &Assembler{next: start}
}

// Add builds one UnifiedProduct per cluster. Clusters index into members and
// are consumed in order, so ids follow cluster order and members keep their
// first-seen order.
func (a *Assembler) Add(key model.ConstraintKey, members []model.ProductComponents, clusters [][]int) []model.UnifiedProduct {
	out := make([]model.UnifiedProduct, 0, len(clusters))
	for _, c := range clusters {
		if len(c) == 0 {
			continue
		}
		p := model.UnifiedProduct{
			ID:      a.next,
			Key:     key,
			Members: make([]model.ProductComponents, len(c)),
		}
		a.next++
		for i, idx := range c {
			p.Members[i] = members[idx]
		}
		p.Name = Name(p.Members)
		p.MinPrice, p.MaxPrice = PriceRange(p.Members)
		p.ShopCount = ShopCount(p.Members)
		out = append(out, p)
	}
	return out
}

// Name picks the representative name: the first member's raw title with
// whitespace collapsed, or its normalized title when the raw one is blank.
func Name(members []model.ProductComponents) string {
	if len(members) == 0 {
		return ""
	}
	if name := strings.Join(strings.Fields(members[0].Listing.Title), " "); name != "" {
		return name
	}
	return members[0].Normalized.String()
}

// PriceRange returns the lowest and highest positive price among members.
// Zero prices mark unparseable input and are ignored; both bounds are zero
// when no member has a price.
func PriceRange(members []model.ProductComponents) (lo, hi float64) {
	seen := false
	for _, m := range members {
		p := m.Listing.Price
		if p <= 0 {
			continue
		}
		if !seen || p < lo {
			lo = p
		}
		if !seen || p > hi {
			hi = p
		}
		seen = true
	}
	return lo, hi
}

// ShopCount returns the number of distinct shops among members.
func ShopCount(members []model.ProductComponents) int {
	shops := make(map[string]struct{}, len(members))
	for _, m := range members {
		shops[m.Listing.ShopID] = struct{}{}
	}
	return len(shops)
}
