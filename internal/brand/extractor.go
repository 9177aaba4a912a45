package brand

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/shelfmatch/internal/model"
	"github.com/sells-group/shelfmatch/internal/normalize"
)

// Source records how a brand was decided.
type Source string

// Brand sources.
const (
	SourceDictionary Source = "dictionary"
	SourceLeadingCap Source = "leading_caps"
	SourceMark       Source = "trademark"
	SourceNone       Source = "none"
)

// Result is the outcome of brand extraction for one title.
type Result struct {
	Brand    string
	Residual model.NormalizedTitle
	Source   Source
}

var (
	// A leading upper-case Latin token followed by a word that is not.
	leadingCapsRe = regexp.MustCompile(`^\s*([A-Z][A-Z0-9&'’]{2,})\s+(\S+)`)
	// The token right before a registered or trademark sign.
	markRe = regexp.MustCompile(`([\p{L}\p{N}][\p{L}\p{N}&'’-]*)\s*[®™]`)
)

// Words that are commonly capitalized in titles but are never brands.
var capsStopWords = map[string]bool{
	"NEW": true, "BIO": true, "ECO": true, "MAXI": true, "MINI": true,
	"SUPER": true, "PROMO": true, "OFFER": true, "PACK": true, "FAMILY": true,
	"EXTRA": true, "LIGHT": true, "ZERO": true, "FREE": true,
}

// Extractor finds the brand in a title. It holds only immutable state and is
// safe for concurrent use.
type Extractor struct {
	dict *Dictionary
}

// NewExtractor returns an extractor backed by dict.
func NewExtractor(dict *Dictionary) *Extractor {
	return &Extractor{dict: dict}
}

// Extract returns the brand of a listing. raw is the untouched title, used
// only by the fallbacks; title is its normalized form. Extraction never
// fails: when nothing is found the brand is model.UnknownBrand and the
// residual is the whole title.
func (e *Extractor) Extract(raw string, title model.NormalizedTitle) Result {
	text := string(title)

	if m, ok := e.bestMatch(text); ok {
		return Result{
			Brand:    e.dict.canonical(m.Pattern),
			Residual: cut(text, m.Start, m.End),
			Source:   SourceDictionary,
		}
	}

	if b := leadingCaps(raw); b != "" {
		return fallback(text, b, SourceLeadingCap)
	}
	if b := beforeMark(raw); b != "" {
		return fallback(text, b, SourceMark)
	}

	return Result{Brand: model.UnknownBrand, Residual: title, Source: SourceNone}
}

// bestMatch picks the longest whole-word dictionary hit, earliest first on
// ties.
func (e *Extractor) bestMatch(text string) (Match, bool) {
	var best Match
	found := false
	for _, m := range e.dict.Automaton().FindAll(text) {
		if !wholeWord(text, m.Start, m.End) {
			continue
		}
		if !found || m.Len() > best.Len() || (m.Len() == best.Len() && m.Start < best.Start) {
			best = m
			found = true
		}
	}
	return best, found
}

func wholeWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// cut removes text[start:end] and re-collapses whitespace.
func cut(text string, start, end int) model.NormalizedTitle {
	return model.NormalizedTitle(strings.Join(strings.Fields(text[:start]+" "+text[end:]), " "))
}

func leadingCaps(raw string) string {
	m := leadingCapsRe.FindStringSubmatch(raw)
	if m == nil || capsStopWords[m[1]] {
		return ""
	}
	// Fully upper-case titles carry no signal.
	if strings.ToUpper(m[2]) == m[2] {
		return ""
	}
	return normalize.Text(m[1])
}

func beforeMark(raw string) string {
	m := markRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return normalize.Text(m[1])
}

// fallback removes the first whole-word occurrence of brand from text.
func fallback(text, brand string, src Source) Result {
	res := Result{Brand: brand, Residual: model.NormalizedTitle(text), Source: src}
	from := 0
	for {
		i := strings.Index(text[from:], brand)
		if i < 0 {
			return res
		}
		start := from + i
		end := start + len(brand)
		if wholeWord(text, start, end) {
			res.Residual = cut(text, start, end)
			return res
		}
		from = start + 1
	}
}
