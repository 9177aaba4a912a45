package parse

import (
	"math"
	"sort"
	"strings"
)

// Canonical size units.
const (
	UnitGram  = "g"
	UnitMilli = "ml"
	UnitPiece = "pcs"
)

type unitConv struct {
	canonical string
	factor    float64
}

// unitTable maps normalized unit spellings to their canonical unit.
var unitTable = map[string]unitConv{
	// mass
	"g": {UnitGram, 1}, "gr": {UnitGram, 1}, "grs": {UnitGram, 1}, "gram": {UnitGram, 1},
	"grams": {UnitGram, 1}, "γρ": {UnitGram, 1}, "γρα": {UnitGram, 1}, "γραμ": {UnitGram, 1},
	"kg": {UnitGram, 1000}, "kgr": {UnitGram, 1000}, "kilo": {UnitGram, 1000},
	"κιλ": {UnitGram, 1000}, "κιλο": {UnitGram, 1000}, "κιλα": {UnitGram, 1000}, "κγ": {UnitGram, 1000},
	"mg": {UnitGram, 0.001},

	// volume
	"ml": {UnitMilli, 1}, "μλ": {UnitMilli, 1},
	"cl": {UnitMilli, 10},
	"l": {UnitMilli, 1000}, "lt": {UnitMilli, 1000}, "ltr": {UnitMilli, 1000}, "lit": {UnitMilli, 1000},
	"litre": {UnitMilli, 1000}, "liter": {UnitMilli, 1000}, "λ": {UnitMilli, 1000}, "λτ": {UnitMilli, 1000},
	"λιτ": {UnitMilli, 1000}, "λιτρο": {UnitMilli, 1000}, "λιτρα": {UnitMilli, 1000},

	// count
	"pcs": {UnitPiece, 1}, "pc": {UnitPiece, 1}, "τεμ": {UnitPiece, 1}, "τμχ": {UnitPiece, 1},
	"τεμαχια": {UnitPiece, 1}, "τεμαχιο": {UnitPiece, 1},
}

// Canonicalize converts value in unit to the canonical unit. ok is false for
// unknown units.
func Canonicalize(value float64, unit string) (float64, string, bool) {
	c, ok := unitTable[unit]
	if !ok {
		return 0, "", false
	}
	// Round away float noise such as 0.33*1000.
	return math.Round(value*c.factor*1e6) / 1e6, c.canonical, true
}

// unitAlternation renders the unit spellings as a regexp alternation, longest
// first.
func unitAlternation() string {
	units := make([]string, 0, len(unitTable))
	for u := range unitTable {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		if len(units[i]) != len(units[j]) {
			return len(units[i]) > len(units[j])
		}
		return units[i] < units[j]
	})
	return strings.Join(units, "|")
}
