// Package normalize canonicalizes free-text listing titles so that later
// stages can match them deterministically.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/shelfmatch/internal/model"
)

// apostrophes are removed without leaving a gap so "kellogg's" == "kelloggs".
var apostrophes = map[rune]bool{
	'\'': true, '’': true, '‘': true, '`': true, 'ʼ': true, '´': true,
}

// legalMarks are dropped before compatibility decomposition, which would
// otherwise spell ™ and ℠ as letters glued to the preceding word.
var legalMarks = runes.Predicate(func(r rune) bool {
	return r == '™' || r == '℠' || r == '®' || r == '©'
})

// kept are punctuation runes that carry meaning in product titles.
var kept = map[rune]bool{
	'%': true, '&': true, '+': true,
}

// Title normalizes a raw listing title.
func Title(raw string) model.NormalizedTitle {
	return model.NormalizedTitle(Text(raw))
}

// Text lowercases s, strips diacritics, drops punctuation noise and collapses
// whitespace. Empty input yields an empty string.
func Text(s string) string {
	if s == "" {
		return ""
	}

	// Transformers and casers keep internal state, so they are built per call.
	t := transform.Chain(runes.Remove(legalMarks), norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = cases.Lower(language.Und).String(folded)

	src := []rune(folded)
	var b strings.Builder
	b.Grow(len(folded))
	for i, r := range src {
		switch {
		case r == 'ς':
			b.WriteRune('σ')
		case r == '×':
			b.WriteRune('x')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case apostrophes[r]:
			// dropped
		case (r == '.' || r == ',') && betweenDigits(src, i):
			b.WriteRune('.')
		case kept[r]:
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func betweenDigits(src []rune, i int) bool {
	return i > 0 && i < len(src)-1 && unicode.IsDigit(src[i-1]) && unicode.IsDigit(src[i+1])
}
