// Package secrets detects and redacts credential-shaped substrings in
// command output before it is returned to agents or persisted.
package secrets

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Detection modes.
const (
	ModeWarn   = "warn"
	ModeRedact = "redact"
	ModeBlock  = "block"
)

// Match is one detected secret.
type Match struct {
	Type          string `json:"type"`
	PatternSource string `json:"pattern_source"`
	MatchedText   string `json:"matched_text"`
	RedactedText  string `json:"redacted_text"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	LineNumber    int    `json:"line_number"`
}

// Config controls scan_output behavior. Readers dereference an atomic
// snapshot; writers publish a new one via Scanner.Configure.
type Config struct {
	Mode              string `json:"mode"`
	EnableLineNumbers bool   `json:"enable_line_numbers"`
	MaxSecretsPerType int    `json:"max_secrets_per_type"`
}

// ScanResult is the outcome of scan_output.
type ScanResult struct {
	HasSecrets   bool           `json:"has_secrets"`
	Count        int            `json:"count"`
	Matches      []Match        `json:"matches"`
	ByType       map[string]int `json:"by_type"`
	RedactedText string         `json:"redacted_text,omitempty"`
}

// Scanner runs the built-in catalog against text.
type Scanner struct {
	cfg atomic.Pointer[Config]
}

// NewScanner returns a scanner with the given initial config.
func NewScanner(cfg Config) *Scanner {
	normalize(&cfg)
	s := &Scanner{}
	s.cfg.Store(&cfg)
	return s
}

func normalize(cfg *Config) {
	switch cfg.Mode {
	case ModeWarn, ModeRedact, ModeBlock:
	default:
		cfg.Mode = ModeRedact
	}
	if cfg.MaxSecretsPerType <= 0 {
		cfg.MaxSecretsPerType = 10
	}
}

// Configure publishes a new config snapshot and returns it.
func (s *Scanner) Configure(patch func(Config) Config) Config {
	for {
		old := s.cfg.Load()
		next := patch(*old)
		normalize(&next)
		if s.cfg.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// Current returns the active config snapshot.
func (s *Scanner) Current() Config { return *s.cfg.Load() }

// Scan runs every catalog pattern against the text and returns matches
// sorted ascending by start offset, deduplicated by (start, length) span.
func (s *Scanner) Scan(text string) []Match {
	if text == "" {
		return nil
	}

	seen := make(map[[2]int]bool)
	var matches []Match

	for _, p := range catalog {
		for _, loc := range p.Re.FindAllStringIndex(text, -1) {
			key := [2]int{loc[0], loc[1] - loc[0]}
			if seen[key] {
				continue
			}
			seen[key] = true

			matched := text[loc[0]:loc[1]]
			matches = append(matches, Match{
				Type:          p.Type,
				PatternSource: p.Re.String(),
				MatchedText:   matched,
				RedactedText:  replacement(matched, p.Type),
				StartOffset:   loc[0],
				EndOffset:     loc[1],
				LineNumber:    strings.Count(text[:loc[0]], "\n") + 1,
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].StartOffset != matches[j].StartOffset {
			return matches[i].StartOffset < matches[j].StartOffset
		}
		return matches[i].EndOffset > matches[j].EndOffset
	})
	return dropOverlaps(matches)
}

// dropOverlaps keeps the earliest-starting match of any overlapping pair so
// redaction offsets stay consistent.
func dropOverlaps(matches []Match) []Match {
	out := matches[:0]
	end := -1
	for _, m := range matches {
		if m.StartOffset < end {
			continue
		}
		out = append(out, m)
		end = m.EndOffset
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// replacement builds the redacted form of one match. Short matches are fully
// masked; longer ones keep the first and last four characters so operators
// can still correlate which credential leaked.
func replacement(matched, typ string) string {
	if len(matched) <= 8 {
		return "[REDACTED]"
	}
	return matched[:4] + "...[REDACTED:" + typ + "]..." + matched[len(matched)-4:]
}

// Redact replaces every match in the text. Replacement runs in reverse
// offset order so earlier offsets stay valid. Redact is idempotent.
func (s *Scanner) Redact(text string) string {
	matches := s.Scan(text)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		text = text[:m.StartOffset] + m.RedactedText + text[m.EndOffset:]
	}
	return text
}

// ScanOutput scans tool output and, when the active mode is redact or
// block, also produces the redacted text. MaxSecretsPerType caps only what
// is reported upward — detection itself is never skipped.
func (s *Scanner) ScanOutput(text string) ScanResult {
	cfg := s.Current()
	matches := s.Scan(text)

	byType := make(map[string]int, len(matches))
	reported := make([]Match, 0, len(matches))
	for _, m := range matches {
		byType[m.Type]++
		if byType[m.Type] <= cfg.MaxSecretsPerType {
			if !cfg.EnableLineNumbers {
				m.LineNumber = 0
			}
			reported = append(reported, m)
		}
	}

	result := ScanResult{
		HasSecrets: len(matches) > 0,
		Count:      len(matches),
		Matches:    reported,
		ByType:     byType,
	}
	if result.HasSecrets && cfg.Mode != ModeWarn {
		redacted := text
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			redacted = redacted[:m.StartOffset] + m.RedactedText + redacted[m.EndOffset:]
		}
		result.RedactedText = redacted
	}
	return result
}
