// Package injection classifies input text as benign or a prompt
// manipulation attempt using a fixed weighted rule set.
package injection

import (
	"regexp"
	"strings"
)

// Sensitivity thresholds.
const (
	SensitivityLow    = "low"
	SensitivityMedium = "medium"
	SensitivityHigh   = "high"
)

// PatternHit is one matched injection rule.
type PatternHit struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	MatchedSpan string `json:"matched_span"`
}

// Detection is the detector output.
type Detection struct {
	Detected   bool         `json:"detected"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
	Patterns   []PatternHit `json:"patterns"`
}

type rule struct {
	re       *regexp.Regexp
	typ      string
	severity string
	weight   float64
}

// Pre-compiled rules — compiled once at startup, never during a request.
var rules = []rule{
	// "ignore previous instructions" family
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|prompts)`), "instruction_override", "high", 0.6},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|guidelines)`), "instruction_override", "high", 0.6},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions|context|rules)`), "instruction_override", "high", 0.5},

	// Role-override phrases
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\b`), "role_override", "medium", 0.4},
	{regexp.MustCompile(`(?i)from\s+now\s+on\s+you\s+(are|will|must|should)`), "role_override", "medium", 0.4},
	{regexp.MustCompile(`(?i)your\s+new\s+(role|identity|persona|instructions)\s+(is|are)`), "role_override", "medium", 0.4},
	{regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`), "role_override", "low", 0.25},

	// System-prompt impersonation
	{regexp.MustCompile(`(?i)\[SYSTEM\]|<\|im_start\|>\s*system`), "system_impersonation", "high", 0.55},
	{regexp.MustCompile(`(?i)###\s*(SYSTEM|INSTRUCTION|NEW\s+INSTRUCTION)`), "system_impersonation", "high", 0.5},
	{regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system|initial|original|hidden)\s+(prompt|instructions)`), "system_impersonation", "medium", 0.4},

	// Safety bypass
	{regexp.MustCompile(`(?i)bypass\s+(the\s+)?(safety|security|content)\s+(filter|check|policy|rules)`), "safety_bypass", "high", 0.6},
	{regexp.MustCompile(`(?i)override\s+(system|safety|security)\s+(prompt|instructions|rules|policy)`), "safety_bypass", "high", 0.6},
	{regexp.MustCompile(`(?i)do\s+not\s+follow\s+(your|the|any)\s+(rules|guidelines|instructions|safety)`), "safety_bypass", "high", 0.5},

	// Attempted tool-name injection
	{regexp.MustCompile(`(?i)<tool_(call|use|result)>`), "tool_injection", "medium", 0.4},
	{regexp.MustCompile(`(?i)invoke\s+the\s+\w+\s+tool\s+with`), "tool_injection", "low", 0.25},
}

// sanitizeMarker replaces matched spans during sanitization.
const sanitizeMarker = "[FILTERED]"

// Detector evaluates text against the rule set at a configured sensitivity.
type Detector struct {
	threshold float64
}

// New creates a detector. Unknown sensitivity falls back to medium.
func New(sensitivity string) *Detector {
	return &Detector{threshold: Threshold(sensitivity)}
}

// Threshold maps a sensitivity name to its confidence threshold.
func Threshold(sensitivity string) float64 {
	switch sensitivity {
	case SensitivityLow:
		return 0.3
	case SensitivityHigh:
		return 0.7
	default:
		return 0.5
	}
}

// Detect scans the text and accumulates weighted evidence.
// Confidence is min(1, sum of matched rule weights).
func (d *Detector) Detect(text string) Detection {
	return d.DetectAt(text, d.threshold)
}

// DetectAt is Detect with an explicit threshold (for per-request sensitivity).
func (d *Detector) DetectAt(text string, threshold float64) Detection {
	var (
		confidence float64
		hits       []PatternHit
		reasons    []string
	)

	for _, r := range rules {
		loc := r.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		confidence += r.weight
		hits = append(hits, PatternHit{
			Type:        r.typ,
			Severity:    r.severity,
			MatchedSpan: text[loc[0]:loc[1]],
		})
		reasons = append(reasons, r.typ)
	}

	if confidence > 1 {
		confidence = 1
	}

	det := Detection{
		Confidence: confidence,
		Patterns:   hits,
	}
	if confidence >= threshold && len(hits) > 0 {
		det.Detected = true
		det.Reason = "Prompt injection detected: " + strings.Join(dedupe(reasons), ", ")
	} else {
		det.Reason = "No manipulation patterns detected"
	}
	return det
}

// Sanitize returns a copy of the text with every matched span replaced by a
// neutral marker. It never fails; unmatched text passes through untouched.
func (d *Detector) Sanitize(text string) (sanitized string, modified bool) {
	out := text
	for _, r := range rules {
		if r.re.MatchString(out) {
			out = r.re.ReplaceAllString(out, sanitizeMarker)
			modified = true
		}
	}
	return out, modified
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
