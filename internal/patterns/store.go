// Package patterns holds the tiered allow/ask/block regex lists that drive
// command classification, with validation against catastrophic patterns.
package patterns

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
)

// maxPatternLen bounds the source length of an accepted pattern.
const maxPatternLen = 100

// Set is an immutable compiled pattern set. Replace the whole Set via
// Store.Replace; never mutate a published one.
type Set struct {
	Block []*regexp.Regexp
	Ask   []*regexp.Regexp
	Allow []*regexp.Regexp
}

// Store publishes the active pattern Set. Reads are lock-free after the
// pointer copy; writers swap the whole set.
type Store struct {
	mu  sync.RWMutex
	set *Set
}

var (
	cacheMu      sync.Mutex
	compileCache = map[string]*regexp.Regexp{}
)

// NewStore compiles the built-in tiers and returns a ready store.
func NewStore() *Store {
	return &Store{set: CompileSet(blockSources, askSources, allowSources)}
}

// Active returns the current pattern set.
func (s *Store) Active() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Replace atomically swaps in a new pattern set.
func (s *Store) Replace(set *Set) {
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
}

// CompileSet validates and compiles three tiers of pattern sources.
// Rejected patterns are logged and skipped.
func CompileSet(block, ask, allow []string) *Set {
	return &Set{
		Block: compileAll("block", block),
		Ask:   compileAll("ask", ask),
		Allow: compileAll("allow", allow),
	}
}

func compileAll(tier string, sources []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := Compile(src)
		if err != nil {
			slog.Warn("pattern rejected", "tier", tier, "pattern", src, "error", err)
			continue
		}
		out = append(out, re)
	}
	return out
}

// Compile validates a pattern source and returns a cached compiled regex.
// A source is rejected when it is longer than 100 characters or contains
// adjacent unbounded quantifiers (a proxy for catastrophic backtracking in
// rule sets that may be evaluated by non-RE2 engines downstream).
func Compile(source string) (*regexp.Regexp, error) {
	if len(source) > maxPatternLen {
		return nil, fmt.Errorf("pattern longer than %d chars", maxPatternLen)
	}
	if hasAdjacentUnboundedQuantifiers(source) {
		return nil, fmt.Errorf("adjacent unbounded quantifiers")
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if re, ok := compileCache[source]; ok {
		return re, nil
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, err
	}
	compileCache[source] = re
	return re, nil
}

// hasAdjacentUnboundedQuantifiers reports whether two unbounded quantifier
// constructs stack or repeat back-to-back: `a*+`, `(a+)+`, `.*.*`.
func hasAdjacentUnboundedQuantifiers(source string) bool {
	// Flatten escapes so `\*` is not read as a quantifier and `\s` keeps
	// its identity for the same-atom comparison below.
	b := make([]byte, 0, len(source))
	esc := make([]bool, 0, len(source))
	for i := 0; i < len(source); i++ {
		if source[i] == '\\' && i+1 < len(source) {
			b = append(b, source[i+1])
			esc = append(esc, true)
			i++
			continue
		}
		b = append(b, source[i])
		esc = append(esc, false)
	}

	isQuant := func(i int) bool {
		return !esc[i] && (b[i] == '*' || b[i] == '+')
	}

	for i := range b {
		if !isQuant(i) {
			continue
		}
		// Quantifier stacked directly on another: `a*+`.
		if i+1 < len(b) && isQuant(i+1) {
			return true
		}
		// Quantifier on a group that itself ends in one: `(a+)+`.
		if i > 0 && b[i-1] == ')' && !esc[i-1] {
			for j := i - 2; j >= 0 && !(b[j] == '(' && !esc[j]); j-- {
				if isQuant(j) {
					return true
				}
			}
		}
		// Identically-atomed unbounded units back to back: `.*.*`, `\s+\s*`.
		if i >= 1 && i+2 < len(b) && isQuant(i+2) && b[i+1] == b[i-1] && esc[i+1] == esc[i-1] {
			return true
		}
	}
	return false
}
