package brand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patternsOf(a *Automaton, ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = a.Pattern(m.Pattern)
	}
	return out
}

func TestAutomaton_ClassicExample(t *testing.T) {
	a := NewAutomaton([]string{"he", "she", "his", "hers"})

	ms := a.FindAll("ushers")

	assert.Equal(t, []string{"she", "he", "hers"}, patternsOf(a, ms))
	assert.Equal(t, Match{Pattern: 1, Start: 1, End: 4}, ms[0])
	assert.Equal(t, Match{Pattern: 0, Start: 2, End: 4}, ms[1])
	assert.Equal(t, Match{Pattern: 3, Start: 2, End: 6}, ms[2])
}

func TestAutomaton_OverlappingAndRepeated(t *testing.T) {
	a := NewAutomaton([]string{"aa", "a"})

	ms := a.FindAll("aaa")

	// "a" at 0, then "aa"+"a" ending at 2, then "aa"+"a" ending at 3.
	assert.Len(t, ms, 5)
	for _, m := range ms {
		assert.Equal(t, a.Pattern(m.Pattern), "aaa"[m.Start:m.End])
	}
}

func TestAutomaton_MultibyteOffsets(t *testing.T) {
	a := NewAutomaton([]string{"δελτα", "γαλα"})

	text := "γαλα δελτα 1l"
	ms := a.FindAll(text)

	assert.Len(t, ms, 2)
	for _, m := range ms {
		assert.Equal(t, a.Pattern(m.Pattern), text[m.Start:m.End])
	}
}

func TestAutomaton_NoPatterns(t *testing.T) {
	a := NewAutomaton(nil)
	assert.Empty(t, a.FindAll("anything"))
	assert.Equal(t, 0, a.Patterns())
}

func TestAutomaton_EmptyPatternIgnored(t *testing.T) {
	a := NewAutomaton([]string{"", "ab"})
	ms := a.FindAll("xab")
	assert.Equal(t, []Match{{Pattern: 1, Start: 1, End: 3}}, ms)
}

func TestAutomaton_ManyPatterns(t *testing.T) {
	entries, names := syntheticEntries(1500)
	patterns := make([]string, len(entries))
	for i, e := range entries {
		patterns[i] = e.Name
	}
	a := NewAutomaton(patterns)
	require.Equal(t, len(patterns), a.Patterns())

	text := strings.Join(names[:200], " ")
	ms := a.FindAll(text)

	require.Len(t, ms, 200)
	for i, m := range ms {
		assert.Equal(t, names[i], text[m.Start:m.End])
		assert.Equal(t, a.Pattern(m.Pattern), text[m.Start:m.End])
	}
}
