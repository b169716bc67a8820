// Package classifier maps a shell command to a (tier, action, reason)
// decision using layered custom rules and the tiered pattern store.
package classifier

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/clawgate/internal/patterns"
)

// Command tiers.
const (
	TierGreen  = "green"
	TierYellow = "yellow"
	TierRed    = "red"
)

// Pipeline actions.
const (
	ActionAllow = "allow"
	ActionAsk   = "ask"
	ActionBlock = "block"
)

// maxEvalLen bounds regex evaluation; longer commands are classified on a
// prefix so a pathological input cannot stall the pipeline.
const maxEvalLen = 10000

// Classification is the classifier output.
type Classification struct {
	Command          string `json:"command"`
	Tier             string `json:"tier"`
	Action           string `json:"action"`
	Reason           string `json:"reason"`
	MatchedPattern   string `json:"matched_pattern,omitempty"`
	RequiresApproval bool   `json:"requires_approval"`
}

// CustomRules is an optional per-caller rule set layered above the built-in
// patterns. Blocked lists take precedence over allowed lists.
type CustomRules struct {
	AllowedCommands     []string `json:"allowed_commands,omitempty"`
	BlockedCommands     []string `json:"blocked_commands,omitempty"`
	AllowedDomains      []string `json:"allowed_domains,omitempty"`
	BlockedDomains      []string `json:"blocked_domains,omitempty"`
	AutoApprovePatterns []string `json:"auto_approve_patterns,omitempty"`
}

// Classifier evaluates commands against a pattern store.
type Classifier struct {
	store *patterns.Store
}

// New creates a classifier over the given pattern store.
func New(store *patterns.Store) *Classifier {
	return &Classifier{store: store}
}

// Classify evaluates the command with no custom rules.
func (c *Classifier) Classify(command string) Classification {
	return c.ClassifyWithRules(command, nil)
}

// ClassifyWithRules runs the full precedence chain. The first matching step
// wins and stops evaluation.
func (c *Classifier) ClassifyWithRules(command string, rules *CustomRules) Classification {
	if strings.TrimSpace(command) == "" {
		return Classification{
			Command: command,
			Tier:    TierGreen,
			Action:  ActionAllow,
			Reason:  "Empty command",
		}
	}

	eval := command
	if len(eval) > maxEvalLen {
		eval = eval[:maxEvalLen]
	}

	if rules != nil {
		if src, ok := matchAny(eval, rules.BlockedCommands); ok {
			return Classification{
				Command:        command,
				Tier:           TierRed,
				Action:         ActionBlock,
				Reason:         "Command matched a blocked custom rule",
				MatchedPattern: src,
			}
		}
		if src, ok := matchAny(eval, rules.AllowedCommands); ok {
			return Classification{
				Command:        command,
				Tier:           TierGreen,
				Action:         ActionAllow,
				Reason:         "Command matched an allowed custom rule",
				MatchedPattern: src,
			}
		}

		if domains := ExtractDomains(eval); len(domains) > 0 {
			for _, d := range domains {
				if matchDomain(d, rules.BlockedDomains) {
					return Classification{
						Command:        command,
						Tier:           TierRed,
						Action:         ActionBlock,
						Reason:         "Domain blocked by policy: " + d,
						MatchedPattern: d,
					}
				}
			}
			if len(rules.AllowedDomains) > 0 {
				for _, d := range domains {
					if !matchDomain(d, rules.AllowedDomains) {
						return Classification{
							Command:        command,
							Tier:           TierRed,
							Action:         ActionBlock,
							Reason:         "Domain not in allowed list: " + d,
							MatchedPattern: d,
						}
					}
				}
			}
		}

		if src, ok := matchAny(eval, rules.AutoApprovePatterns); ok {
			return Classification{
				Command:        command,
				Tier:           TierGreen,
				Action:         ActionAllow,
				Reason:         "Command matched an auto-approve rule",
				MatchedPattern: src,
			}
		}
	}

	set := c.store.Active()
	if re := matchList(eval, set.Block); re != nil {
		return Classification{
			Command:          command,
			Tier:             TierRed,
			Action:           ActionBlock,
			Reason:           "Command matched dangerous operation patterns",
			MatchedPattern:   re.String(),
			RequiresApproval: false,
		}
	}
	if re := matchList(eval, set.Ask); re != nil {
		return Classification{
			Command:          command,
			Tier:             TierYellow,
			Action:           ActionAsk,
			Reason:           "Command requires approval",
			MatchedPattern:   re.String(),
			RequiresApproval: true,
		}
	}
	if re := matchList(eval, set.Allow); re != nil {
		return Classification{
			Command:        command,
			Tier:           TierGreen,
			Action:         ActionAllow,
			Reason:         "Command matched safe operation patterns",
			MatchedPattern: re.String(),
		}
	}

	return Classification{
		Command:          command,
		Tier:             TierYellow,
		Action:           ActionAsk,
		Reason:           "Unknown command — requires approval for safety",
		RequiresApproval: true,
	}
}

func matchList(command string, list []*regexp.Regexp) *regexp.Regexp {
	for _, re := range list {
		if re.MatchString(command) {
			return re
		}
	}
	return nil
}

// matchAny compiles custom rule sources through the validated pattern cache
// and returns the first matching source. Invalid sources are skipped.
func matchAny(command string, sources []string) (string, bool) {
	for _, src := range sources {
		re, err := patterns.Compile(src)
		if err != nil {
			continue
		}
		if re.MatchString(command) {
			return src, true
		}
	}
	return "", false
}

// matchDomain reports whether the domain is an exact match or a dot-suffix
// match of any entry: api.example.com matches example.com.
func matchDomain(domain string, entries []string) bool {
	domain = strings.ToLower(domain)
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if domain == e || strings.HasSuffix(domain, "."+e) {
			return true
		}
	}
	return false
}
