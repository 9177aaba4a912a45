// Package brand recognizes brand names in normalized listing titles using a
// dictionary-backed Aho-Corasick automaton with regex fallbacks.
package brand

import (
	"bufio"
	_ "embed"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/shelfmatch/internal/normalize"
)

//go:embed brands.yaml
var defaultBrands []byte

// Entry is one canonical brand and the spellings that refer to it.
type Entry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Duplicate is a normalized spelling claimed by more than one brand. The
// first brand in dictionary order keeps it.
type Duplicate struct {
	Pattern string
	Brands  []string
}

// Dictionary is an immutable set of canonical brands. Every name and alias is
// normalized before indexing so matching sees the same text as titles do.
type Dictionary struct {
	brands     []string
	patterns   []string
	owner      []int
	duplicates []Duplicate
	automaton  *Automaton
}

// NewDictionary indexes entries and builds the automaton.
func NewDictionary(entries []Entry) (*Dictionary, error) {
	if len(entries) == 0 {
		return nil, eris.New("brand: dictionary has no entries")
	}

	d := &Dictionary{}
	seen := make(map[string]int)
	claims := make(map[string][]string)
	var order []string

	for i, e := range entries {
		canonical := normalize.Text(e.Name)
		if canonical == "" {
			return nil, eris.Errorf("brand: entry %d has an empty name", i)
		}
		d.brands = append(d.brands, canonical)
		brandIdx := len(d.brands) - 1

		spellings := append([]string{e.Name}, e.Aliases...)
		for _, s := range spellings {
			p := normalize.Text(s)
			if p == "" {
				continue
			}
			if _, ok := claims[p]; !ok {
				order = append(order, p)
			}
			if !contains(claims[p], canonical) {
				claims[p] = append(claims[p], canonical)
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = brandIdx
			d.patterns = append(d.patterns, p)
			d.owner = append(d.owner, brandIdx)
		}
	}

	for _, p := range order {
		if len(claims[p]) > 1 {
			d.duplicates = append(d.duplicates, Duplicate{Pattern: p, Brands: claims[p]})
		}
	}

	d.automaton = NewAutomaton(d.patterns)
	return d, nil
}

// LoadDictionary reads a dictionary file. Files ending in .yaml or .yml use
// the structured format; anything else is read as one brand per line.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "brand: read dictionary %s", path)
	}

	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = parseYAML(data)
	default:
		entries, err = parsePlain(data)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "brand: parse dictionary %s", path)
	}

	return NewDictionary(entries)
}

// DefaultDictionary returns the dictionary compiled into the binary.
func DefaultDictionary() (*Dictionary, error) {
	entries, err := parseYAML(defaultBrands)
	if err != nil {
		return nil, eris.Wrap(err, "brand: parse embedded dictionary")
	}
	return NewDictionary(entries)
}

func parseYAML(data []byte) ([]Entry, error) {
	var file struct {
		Brands []Entry `yaml:"brands"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "brand: unmarshal yaml")
	}
	return file.Brands, nil
}

func parsePlain(data []byte) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, Entry{Name: line})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "brand: scan plain list")
	}
	return entries, nil
}

// Len returns the number of canonical brands.
func (d *Dictionary) Len() int { return len(d.brands) }

// Patterns returns the number of distinct normalized spellings indexed.
func (d *Dictionary) Patterns() int { return len(d.patterns) }

// Brands returns the canonical brand names, sorted.
func (d *Dictionary) Brands() []string {
	out := append([]string(nil), d.brands...)
	sort.Strings(out)
	return out
}

// Duplicates returns spellings claimed by more than one brand.
func (d *Dictionary) Duplicates() []Duplicate {
	return d.duplicates
}

// Automaton returns the shared matcher over all spellings.
func (d *Dictionary) Automaton() *Automaton { return d.automaton }

// canonical maps an automaton pattern index to its canonical brand.
func (d *Dictionary) canonical(pattern int) string {
	return d.brands[d.owner[pattern]]
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
