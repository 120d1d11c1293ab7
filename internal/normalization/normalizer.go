package normalization

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

const punctuation = ".,-_/\\()[]{}!?@#$%^&*+=|~`\"'<>"

var ErrEmptyVariant = errors.New("normalization: variant and canonical must be non-empty after cleaning")

// Normalizer canonicalizes product names for comparison. The zero value is
// not usable; construct with New or NewDefault. Safe for concurrent use.
type Normalizer struct {
	mu       sync.RWMutex
	variants map[string]string
	index    map[rune][]string
	maxKey   int
	version  uint64
}

func New() *Normalizer {
	return &Normalizer{
		variants: map[string]string{},
		index:    map[rune][]string{},
	}
}

// Normalize collapses whitespace, lower-cases ASCII, strips punctuation and
// rewrites known variants to their canonical spelling. The result is a fixed
// point: Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(text string) string {
	out := clean(text)
	if out == "" {
		return ""
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.variants) == 0 {
		return out
	}
	// A table whose rewrites feed each other can cycle; the smallest string
	// of the cycle is returned so a second call lands on the same answer.
	seen := map[string]bool{out: true}
	for {
		next := collapse(n.substitute(out))
		if next == out {
			return out
		}
		if seen[next] {
			return smallestInCycle(next, func(s string) string { return collapse(n.substitute(s)) })
		}
		seen[next] = true
		out = next
	}
}

func smallestInCycle(start string, step func(string) string) string {
	best := start
	for s := step(start); s != start; s = step(s) {
		if s < best {
			best = s
		}
	}
	return best
}

// RegisterVariant maps variant onto canonical. Both sides are cleaned first.
// The canonical spelling is itself registered as a root so that rewriting
// never grows an already-canonical name.
func (n *Normalizer) RegisterVariant(variant, canonical string) error {
	v, c := clean(variant), clean(canonical)
	if v == "" || c == "" {
		return ErrEmptyVariant
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.variants[c] = c
	n.variants[v] = c
	n.reindex()
	n.version++
	return nil
}

func (n *Normalizer) RegisterGroups(groups []VariantGroup) error {
	for _, g := range groups {
		if len(g.Aliases) == 0 {
			if err := n.RegisterVariant(g.Canonical, g.Canonical); err != nil {
				return err
			}
			continue
		}
		for _, alias := range g.Aliases {
			if err := n.RegisterVariant(alias, g.Canonical); err != nil {
				return err
			}
		}
	}
	return nil
}

// Variants returns a copy of the current table.
func (n *Normalizer) Variants() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]string, len(n.variants))
	for k, v := range n.variants {
		out[k] = v
	}
	return out
}

// Version increases on every registration. Callers caching normalized text
// can compare versions to detect a table change.
func (n *Normalizer) Version() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.version
}

func (n *Normalizer) reindex() {
	idx := make(map[rune][]string, len(n.variants))
	maxKey := 0
	for k := range n.variants {
		r, _ := utf8.DecodeRuneInString(k)
		idx[r] = append(idx[r], k)
		if len(k) > maxKey {
			maxKey = len(k)
		}
	}
	n.maxKey = maxKey
	for r, keys := range idx {
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		idx[r] = keys
	}
	n.index = idx
}

// substitute does one leftmost-longest rewrite pass over s. After a rewrite
// the scan resumes early enough to catch any key overlapping the new text, so
// an alias that re-forms next to its own replacement is rewritten in the same
// pass.
func (n *Normalizer) substitute(s string) string {
	budget := 4*len(s) + 64
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		matched := false
		for _, key := range n.index[r] {
			if !strings.HasPrefix(s[i:], key) {
				continue
			}
			matched = true
			val := n.variants[key]
			if val == key || budget == 0 {
				i += len(key)
				break
			}
			budget--
			s = s[:i] + val + s[i+len(key):]
			i = n.rescanFrom(s, i)
			break
		}
		if !matched {
			i += size
		}
	}
	return s
}

// rescanFrom steps back from i to the earliest rune start at which a key
// could still overlap position i.
func (n *Normalizer) rescanFrom(s string, i int) int {
	j := i - (n.maxKey - 1)
	if j <= 0 {
		return 0
	}
	for j < i && !utf8.RuneStart(s[j]) {
		j++
	}
	return j
}

func clean(s string) string {
	s = collapse(s)
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)
	return collapse(s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
