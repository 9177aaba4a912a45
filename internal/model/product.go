package model

import (
	"strconv"
	"strings"
)

// Sentinels used when a component is recognized as absent.
const (
	UnknownBrand = "unknown"
	NoSize       = "no_size"
	NoPackage    = "no_package"
)

// NoiseLabel is the cluster label density-based clustering assigns to points
// that belong to no cluster.
const NoiseLabel = -1

// ProductComponents is the structured view of one listing title.
type ProductComponents struct {
	Brand       string          `json:"brand"`
	BaseProduct string          `json:"base_product"`
	SizeValue   *float64        `json:"size_value,omitempty"`
	SizeUnit    string          `json:"size_unit,omitempty"`
	Package     string          `json:"package"`
	Variants    []string        `json:"variants,omitempty"`
	Normalized  NormalizedTitle `json:"normalized"`
	Listing     RawListing      `json:"listing"`
	Index       int             `json:"index"`
}

// HasBrand reports whether a brand was recognized.
func (pc ProductComponents) HasBrand() bool {
	return pc.Brand != "" && pc.Brand != UnknownBrand
}

// HasSize reports whether a size was extracted.
func (pc ProductComponents) HasSize() bool {
	return pc.SizeValue != nil && pc.SizeUnit != ""
}

// HasPackage reports whether a package type was recognized.
func (pc ProductComponents) HasPackage() bool {
	return pc.Package != "" && pc.Package != NoPackage
}

// SizeString renders the size as "<value><unit>" or the NoSize sentinel.
func (pc ProductComponents) SizeString() string {
	if !pc.HasSize() {
		return NoSize
	}
	return strconv.FormatFloat(*pc.SizeValue, 'f', -1, 64) + pc.SizeUnit
}

// EmbeddingText is the text handed to the embedding backend: base product
// followed by the variants in order.
func (pc ProductComponents) EmbeddingText() string {
	parts := make([]string, 0, len(pc.Variants)+1)
	if pc.BaseProduct != "" {
		parts = append(parts, pc.BaseProduct)
	}
	parts = append(parts, pc.Variants...)
	return strings.Join(parts, " ")
}

// ConstraintKey is the exact-match bucket key used before clustering.
type ConstraintKey struct {
	Brand   string `json:"brand"`
	Size    string `json:"size"`
	Package string `json:"package"`
}

// String renders the key as "brand|size|package".
func (k ConstraintKey) String() string {
	return k.Brand + "|" + k.Size + "|" + k.Package
}

// Underspecified reports whether the key carries neither brand nor size, in
// which case unrelated products share the bucket.
func (k ConstraintKey) Underspecified() bool {
	return k.Brand == UnknownBrand && k.Size == NoSize
}

// UnifiedProduct is one physical product across shops.
type UnifiedProduct struct {
	ID        int                 `json:"id"`
	Name      string              `json:"name"`
	Key       ConstraintKey       `json:"key"`
	Members   []ProductComponents `json:"members"`
	MinPrice  float64             `json:"min_price"`
	MaxPrice  float64             `json:"max_price"`
	ShopCount int                 `json:"shop_count"`
}

// ListingRefs returns the member listing references in member order.
func (u UnifiedProduct) ListingRefs() []string {
	refs := make([]string, len(u.Members))
	for i, m := range u.Members {
		refs[i] = m.Listing.Ref(m.Index)
	}
	return refs
}
