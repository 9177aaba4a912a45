// Package parse splits a brand-less normalized title into size, package,
// variants and base product using ordered declarative rules.
package parse

import (
	"strings"

	"github.com/sells-group/shelfmatch/internal/model"
)

// Parser applies its rules in order. Each consumed span is hidden from later
// rules; whatever no rule consumed becomes the base product. A Parser holds
// no mutable state and is safe for concurrent use.
type Parser struct {
	rules []Rule
}

// New returns a parser over rules, applied first to last. With no rules it
// uses DefaultRules.
func New(rules ...Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Parser{rules: rules}
}

// Rules returns the parser's rules in application order.
func (p *Parser) Rules() []Rule { return p.rules }

// Parse extracts components from residual, the normalized title with the
// brand already removed. Brand, listing and index are left for the caller.
func (p *Parser) Parse(residual model.NormalizedTitle) model.ProductComponents {
	pc := model.ProductComponents{Package: model.NoPackage}
	work := []byte(residual)

	for _, r := range p.rules {
		applyRule(r, work, &pc)
	}

	pc.BaseProduct = strings.Join(strings.Fields(string(work)), " ")
	return pc
}

func applyRule(r Rule, work []byte, pc *model.ProductComponents) {
	consumed := 0
	from := 0
	for from <= len(work) {
		if r.Max > 0 && consumed >= r.Max {
			return
		}
		loc := r.Pattern.FindSubmatchIndex(work[from:])
		if loc == nil || loc[2] < 0 {
			return
		}
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = string(work[from+loc[2*i] : from+loc[2*i+1]])
			}
		}

		start, end := from+loc[2], from+loc[3]
		if r.Extract(groups, pc) {
			for i := start; i < end; i++ {
				work[i] = ' '
			}
			consumed++
		}
		// Resume at the end of the span; the following separator stays
		// available as the next match's leading boundary.
		if end == from {
			end++
		}
		from = end
	}
}
