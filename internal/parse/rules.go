package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/shelfmatch/internal/model"
)

// Rule is one declarative extraction step. Pattern must capture the span to
// consume as group 1; further groups are passed to Extract. Extract records
// what it found in pc and reports whether the span is consumed. Max bounds
// the number of consumed matches; zero means no bound.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Extract func(groups []string, pc *model.ProductComponents) bool
	Max     int
}

// word wraps p so it only matches whole space-delimited tokens.
func word(p string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^| )(` + p + `)(?: |$)`)
}

// SizeRule extracts the first "[N x] value unit" mention. A multipack count
// is kept as a variant such as "6x".
func SizeRule() Rule {
	return Rule{
		Name:    "size",
		Pattern: word(`(?:(\d+) ?x ?)?(\d+(?:\.\d+)?) ?(` + unitAlternation() + `)`),
		Max:     1,
		Extract: func(g []string, pc *model.ProductComponents) bool {
			v, err := strconv.ParseFloat(g[3], 64)
			if err != nil {
				return false
			}
			val, unit, ok := Canonicalize(v, g[4])
			if !ok || val <= 0 {
				return false
			}
			pc.SizeValue = &val
			pc.SizeUnit = unit
			if g[2] != "" && g[2] != "1" {
				pc.Variants = append(pc.Variants, g[2]+"x")
			}
			return true
		},
	}
}

// packageWords maps package spellings to the canonical package type.
var packageWords = map[string]string{
	"bottle": "bottle", "bottles": "bottle", "pet": "bottle", "φιαλη": "bottle", "μπουκαλι": "bottle",
	"can": "can", "cans": "can", "tin": "can", "κουτακι": "can", "κουτακια": "can",
	"box": "box", "κουτι": "box", "κουτια": "box",
	"pack": "pack", "pk": "pack", "multipack": "pack", "πακετο": "pack", "συσκευασια": "pack",
	"jar": "jar", "βαζο": "jar", "βαζακι": "jar",
	"bag": "bag", "σακουλα": "bag", "σακουλακι": "bag",
	"tube": "tube", "σωληναριο": "tube",
	"carton": "carton", "tetra": "carton", "tetrapak": "carton", "χαρτοκουτι": "carton",
	"pouch": "pouch", "doypack": "pouch", "φακελακι": "pouch",
	"cup": "cup", "κυπελλο": "cup", "κεσεδακι": "cup",
}

// PackageRule extracts the first package keyword.
func PackageRule() Rule {
	return Rule{
		Name:    "package",
		Pattern: word(`\S+`),
		Max:     1,
		Extract: func(g []string, pc *model.ProductComponents) bool {
			p, ok := packageWords[g[1]]
			if !ok {
				return false
			}
			pc.Package = p
			return true
		},
	}
}

// descriptors are tokens that describe a variant of a base product.
var descriptors = map[string]bool{
	// flavours
	"choco": true, "chocolate": true, "σοκολατα": true, "cocoa": true, "κακαο": true,
	"nut": true, "nuts": true, "hazelnut": true, "φουντουκι": true, "φουντουκιου": true, "πραλινα": true,
	"vanilla": true, "βανιλια": true, "strawberry": true, "φραουλα": true,
	"lemon": true, "λεμονι": true, "orange": true, "πορτοκαλι": true,
	"apple": true, "μηλο": true, "caramel": true, "καραμελα": true,
	"honey": true, "μελι": true, "mint": true, "μεντα": true,
	"peach": true, "ροδακινο": true, "cherry": true, "κερασι": true,
	// descriptors
	"light": true, "ελαφρυ": true, "zero": true, "diet": true, "bio": true, "organic": true,
	"βιολογικο": true, "classic": true, "original": true, "extra": true, "strong": true,
	"mild": true, "spicy": true, "πικαντικο": true, "salted": true, "unsalted": true,
	"πληρεσ": true, "αποβουτυρωμενο": true, "crunchy": true, "smooth": true,
}

var numericRe = regexp.MustCompile(`\d`)

// VariantRule consumes numeric-bearing tokens and descriptor words.
func VariantRule() Rule {
	return Rule{
		Name:    "variant",
		Pattern: word(`\S+`),
		Extract: func(g []string, pc *model.ProductComponents) bool {
			tok := g[1]
			if !descriptors[tok] && !numericRe.MatchString(tok) {
				return false
			}
			pc.Variants = append(pc.Variants, tok)
			return true
		},
	}
}

// DefaultRules returns the standard rule order: size, package, variant.
func DefaultRules() []Rule {
	return []Rule{SizeRule(), PackageRule(), VariantRule()}
}

// Describe lists rule names in application order.
func Describe(rules []Rule) string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return strings.Join(names, " > ")
}
