package brand

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelfmatch/internal/model"
	"github.com/sells-group/shelfmatch/internal/normalize"
)

func testExtractor(t *testing.T, entries ...Entry) *Extractor {
	t.Helper()
	d, err := NewDictionary(entries)
	require.NoError(t, err)
	return NewExtractor(d)
}

func extract(e *Extractor, raw string) Result {
	return e.Extract(raw, normalize.Title(raw))
}

func TestExtract_KelloggsBothSpellings(t *testing.T) {
	d, err := DefaultDictionary()
	require.NoError(t, err)
	e := NewExtractor(d)

	a := extract(e, "Kellogg's Krave Choco Nut 410gr")
	b := extract(e, "KELLOGGS Δημητριακά Krave Πραλίνα Φουντουκιού 410g")

	assert.Equal(t, "kelloggs", a.Brand)
	assert.Equal(t, "kelloggs", b.Brand)
	assert.Equal(t, SourceDictionary, a.Source)
	assert.Equal(t, model.NormalizedTitle("krave choco nut 410gr"), a.Residual)
	assert.Equal(t, model.NormalizedTitle("δημητριακα krave πραλινα φουντουκιου 410g"), b.Residual)
}

func TestExtract_LongestMatchWins(t *testing.T) {
	e := testExtractor(t,
		Entry{Name: "Barba"},
		Entry{Name: "Barba Stathis"},
	)

	r := extract(e, "Barba Stathis Αρακάς 450g")

	assert.Equal(t, "barba stathis", r.Brand)
	assert.Equal(t, model.NormalizedTitle("αρακασ 450g"), r.Residual)
}

func TestExtract_EarliestOnTie(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Lion"}, Entry{Name: "Oreo"})

	r := extract(e, "Oreo Lion Cookies 156g")

	assert.Equal(t, "oreo", r.Brand)
	assert.Equal(t, model.NormalizedTitle("lion cookies 156g"), r.Residual)
}

func TestExtract_WholeWordOnly(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Ion"})

	r := extract(e, "Lotion Body Milk 250ml")

	assert.Equal(t, model.UnknownBrand, r.Brand)
	assert.Equal(t, SourceNone, r.Source)
	assert.Equal(t, model.NormalizedTitle("lotion body milk 250ml"), r.Residual)
}

func TestExtract_GreekAlias(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Delta", Aliases: []string{"ΔΕΛΤΑ"}})

	r := extract(e, "Γάλα ΔΕΛΤΑ Πλήρες 1L")

	assert.Equal(t, "delta", r.Brand)
	assert.Equal(t, model.NormalizedTitle("γαλα πληρεσ 1l"), r.Residual)
}

func TestExtract_LeadingCapsFallback(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Nothing Here"})

	r := extract(e, "ZANAE Spaghetti No5 500g")

	assert.Equal(t, "zanae", r.Brand)
	assert.Equal(t, SourceLeadingCap, r.Source)
	assert.Equal(t, model.NormalizedTitle("spaghetti no5 500g"), r.Residual)
}

func TestExtract_LeadingCapsIgnoresShoutedTitles(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Nothing Here"})

	r := extract(e, "ΓΑΛΑ ΠΛΗΡΕΣ 1L")
	assert.Equal(t, model.UnknownBrand, r.Brand)

	r = extract(e, "SPAGHETTI NO5 500G")
	assert.Equal(t, model.UnknownBrand, r.Brand)
}

func TestExtract_LeadingCapsStopWord(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Nothing Here"})

	r := extract(e, "NEW Crunchy Bar 40g")

	assert.Equal(t, model.UnknownBrand, r.Brand)
}

func TestExtract_TrademarkFallback(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Nothing Here"})

	r := extract(e, "Σοκολάτα Zorbas® Υγείας 100g")

	assert.Equal(t, "zorbas", r.Brand)
	assert.Equal(t, SourceMark, r.Source)
	assert.Equal(t, model.NormalizedTitle("σοκολατα υγειασ 100g"), r.Residual)
}

func TestExtract_EmptyTitle(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Delta"})

	r := extract(e, "")

	assert.Equal(t, model.UnknownBrand, r.Brand)
	assert.Empty(t, r.Residual)
}

func TestExtract_ConcurrentUse(t *testing.T) {
	t.Parallel()

	d, err := DefaultDictionary()
	require.NoError(t, err)
	e := NewExtractor(d)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "fage", extract(e, "ΦΑΓΕ Total Γιαούρτι 2% 3x200g").Brand)
		}()
	}
	wg.Wait()
}

func TestNewDictionary_Errors(t *testing.T) {
	_, err := NewDictionary(nil)
	assert.Error(t, err)

	_, err = NewDictionary([]Entry{{Name: "  ®  "}})
	assert.Error(t, err)
}

func TestNewDictionary_Duplicates(t *testing.T) {
	d, err := NewDictionary([]Entry{
		{Name: "Alpha", Aliases: []string{"shared"}},
		{Name: "Beta", Aliases: []string{"Shared", "beta"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 3, d.Patterns())
	require.Len(t, d.Duplicates(), 1)
	assert.Equal(t, Duplicate{Pattern: "shared", Brands: []string{"alpha", "beta"}}, d.Duplicates()[0])

	// First brand keeps a contested spelling.
	r := NewExtractor(d).Extract("Shared Thing", normalize.Title("Shared Thing"))
	assert.Equal(t, "alpha", r.Brand)
}

func TestLoadDictionary_YAMLAndPlain(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "brands.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("brands:\n  - name: Delta\n    aliases: [δέλτα]\n  - name: Fage\n"), 0o600))
	d, err := LoadDictionary(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"delta", "fage"}, d.Brands())
	assert.Equal(t, 3, d.Patterns())

	txtPath := filepath.Join(dir, "brands.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("# comment\nMelissa\n\nMisko\n"), 0o600))
	d, err = LoadDictionary(txtPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"melissa", "misko"}, d.Brands())
}

func TestLoadDictionary_Failures(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadDictionary(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("brands: [unclosed"), 0o600))
	_, err = LoadDictionary(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n# nothing\n"), 0o600))
	_, err = LoadDictionary(empty)
	assert.Error(t, err)
}

func TestDefaultDictionary(t *testing.T) {
	d, err := DefaultDictionary()
	require.NoError(t, err)
	assert.Greater(t, d.Len(), 50)
	assert.Empty(t, d.Duplicates())
}

func TestExtract_LegalMarksKeepDictionaryBrand(t *testing.T) {
	e := testExtractor(t, Entry{Name: "Kellogg's"})

	plain := extract(e, "Kellogg's Krave 410g")
	marked := extract(e, "Krave™ by Kellogg's™ 410g")

	assert.Equal(t, "kelloggs", marked.Brand)
	assert.Equal(t, plain.Brand, marked.Brand)
	assert.Equal(t, SourceDictionary, marked.Source)
	assert.Equal(t, model.NormalizedTitle("krave by 410g"), marked.Residual)
}

// syntheticEntries returns n distinct six-letter brands built from
// consonant-vowel syllables. Every seventh brand also gets a longer
// "<name> gold" line extension.
func syntheticEntries(n int) ([]Entry, []string) {
	syl := []string{"ba", "ke", "lo", "mi", "nu", "ra", "so", "ti", "vo", "ze", "pa", "du"}
	names := make([]string, 0, n)
	entries := make([]Entry, 0, n+n/7+1)
	for i := 0; len(names) < n; i++ {
		name := syl[i%12] + syl[(i/12)%12] + syl[(i/144)%12]
		names = append(names, name)
		entries = append(entries, Entry{Name: name})
		if i%7 == 0 {
			entries = append(entries, Entry{Name: name + " gold"})
		}
	}
	return entries, names
}

func TestExtract_LargeDictionary(t *testing.T) {
	entries, names := syntheticEntries(1500)
	d, err := NewDictionary(entries)
	require.NoError(t, err)
	require.Greater(t, d.Len(), 1000)
	e := NewExtractor(d)

	for i, name := range names {
		r := extract(e, name+" cereal 500g")
		require.Equal(t, name, r.Brand, "title %d", i)
		assert.Equal(t, model.NormalizedTitle("cereal 500g"), r.Residual)

		if i%7 == 0 {
			r = extract(e, "cereal "+name+" gold 500g")
			require.Equal(t, name+" gold", r.Brand, "longest match for %s", name)
			assert.Equal(t, model.NormalizedTitle("cereal 500g"), r.Residual)
		}

		// Brands glued to other letters are not whole words.
		r = extract(e, "x"+name+" cereal 500g")
		assert.Equal(t, model.UnknownBrand, r.Brand, "prefixed %s", name)
		r = extract(e, name+"s cereal 500g")
		assert.Equal(t, model.UnknownBrand, r.Brand, "suffixed %s", name)
	}

	// Equal lengths resolve to the earliest occurrence.
	r := extract(e, "cereal "+names[1499]+" "+names[3]+" 500g")
	assert.Equal(t, names[1499], r.Brand)
}
