package classifier

import (
	"regexp"
	"strings"
)

// Host extraction patterns. Compiled once; each yields the host in capture
// group 1.
var (
	urlHostRe = regexp.MustCompile(`https?://([^\s/:'"]+)`)
	curlArgRe = regexp.MustCompile(`\b(?:curl|wget|fetch)\s+(?:-[A-Za-z-]+\s+(?:[A-Z]+\s+)?)*['"]?(?:https?://)?([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
	ncRe      = regexp.MustCompile(`\bnc\s+([A-Za-z0-9.-]+\.[A-Za-z]{2,})\s+\d+`)
	// user@host form anywhere in an ssh/scp invocation. scp targets are only
	// recognized in this form, so local filenames are never mistaken for hosts.
	sshUserHostRe = regexp.MustCompile(`\b(?:ssh|scp)\b[^|;&]*?\b[A-Za-z0-9._-]+@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
	sshDirectRe   = regexp.MustCompile(`\bssh\s+(?:-[A-Za-z]+\s+)*([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
)

// ExtractDomains parses hostnames out of a shell command: curl/wget/fetch
// arguments, nc targets, ssh/scp destinations, and any embedded URLs.
// Results are deduplicated, lowercase, in first-seen order.
func ExtractDomains(command string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(host string) {
		host = strings.ToLower(strings.TrimSuffix(host, "."))
		// Strip any trailing path or port residue.
		if i := strings.IndexAny(host, ":/"); i >= 0 {
			host = host[:i]
		}
		if host == "" || !strings.Contains(host, ".") || seen[host] {
			return
		}
		seen[host] = true
		out = append(out, host)
	}

	for _, re := range []*regexp.Regexp{urlHostRe, curlArgRe, ncRe, sshUserHostRe, sshDirectRe} {
		for _, m := range re.FindAllStringSubmatch(command, -1) {
			add(m[1])
		}
	}
	return out
}
