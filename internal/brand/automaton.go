package brand

// Match is one occurrence of a pattern in the searched text. Start and End
// are byte offsets, End exclusive.
type Match struct {
	Pattern int
	Start   int
	End     int
}

// Len returns the match length in bytes.
func (m Match) Len() int { return m.End - m.Start }

// Automaton is an Aho-Corasick automaton over a fixed set of byte patterns.
// It is immutable after NewAutomaton returns and may be searched from any
// number of goroutines.
type Automaton struct {
	patterns []string
	next     []map[byte]int32
	fail     []int32
	// out lists the pattern indexes that end at each state, including the
	// ones inherited through the failure chain.
	out [][]int32
}

// NewAutomaton builds the goto, failure and output functions for patterns.
// Empty patterns are ignored.
func NewAutomaton(patterns []string) *Automaton {
	a := &Automaton{
		patterns: append([]string(nil), patterns...),
		next:     []map[byte]int32{{}},
		fail:     []int32{0},
		out:      [][]int32{nil},
	}

	for i, p := range a.patterns {
		if p == "" {
			continue
		}
		state := int32(0)
		for j := 0; j < len(p); j++ {
			nxt, ok := a.next[state][p[j]]
			if !ok {
				nxt = int32(len(a.next))
				a.next = append(a.next, map[byte]int32{})
				a.fail = append(a.fail, 0)
				a.out = append(a.out, nil)
				a.next[state][p[j]] = nxt
			}
			state = nxt
		}
		a.out[state] = append(a.out[state], int32(i))
	}

	// Breadth-first over the trie so every failure target is final before
	// it is used.
	queue := make([]int32, 0, len(a.next))
	for _, s := range a.next[0] {
		queue = append(queue, s)
	}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for c, s := range a.next[r] {
			queue = append(queue, s)
			f := a.fail[r]
			for {
				if t, ok := a.next[f][c]; ok && t != s {
					a.fail[s] = t
					break
				}
				if f == 0 {
					a.fail[s] = 0
					break
				}
				f = a.fail[f]
			}
			a.out[s] = append(a.out[s], a.out[a.fail[s]]...)
		}
	}

	return a
}

// Patterns returns the number of patterns the automaton was built from.
func (a *Automaton) Patterns() int { return len(a.patterns) }

// Pattern returns the pattern at index i.
func (a *Automaton) Pattern(i int) string { return a.patterns[i] }

// FindAll reports every occurrence of every pattern in text, overlapping
// occurrences included, ordered by end offset.
func (a *Automaton) FindAll(text string) []Match {
	var matches []Match
	state := int32(0)
	for i := 0; i < len(text); i++ {
		c := text[i]
		for {
			if nxt, ok := a.next[state][c]; ok {
				state = nxt
				break
			}
			if state == 0 {
				break
			}
			state = a.fail[state]
		}
		for _, p := range a.out[state] {
			n := len(a.patterns[p])
			matches = append(matches, Match{Pattern: int(p), Start: i + 1 - n, End: i + 1})
		}
	}
	return matches
}
