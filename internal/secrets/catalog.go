package secrets

import "regexp"

// pattern is one named detector in the built-in catalog.
// Order matters: when two patterns match the identical span, the
// first-listed type wins.
type pattern struct {
	Type string
	Re   *regexp.Regexp
}

// Pre-compiled catalog — compiled once at startup, never during a scan.
var catalog = []pattern{
	{"AWS Access Key", regexp.MustCompile(`\b(A3T[A-Z0-9]|AKIA|ASIA|ABIA|ACCA)[A-Z0-9]{16}\b`)},
	{"AWS Secret Key", regexp.MustCompile(`(?i)aws.{0,20}?['"][0-9a-zA-Z/+]{40}['"]`)},
	{"GitHub Personal Access Token", regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`)},
	{"GitHub Fine-Grained Token", regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{82}\b`)},
	{"GitHub OAuth Token", regexp.MustCompile(`\bgho_[A-Za-z0-9]{36}\b`)},
	{"Slack Token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,72}\b`)},
	{"Stripe Secret Key", regexp.MustCompile(`\b[sr]k_live_[A-Za-z0-9]{24,99}\b`)},
	{"Google API Key", regexp.MustCompile(`\bAIza[A-Za-z0-9_-]{35}\b`)},
	{"Private Key Block", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY( BLOCK)?-----`)},
	{"Database Connection String", regexp.MustCompile(`\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s:@/]+:[^\s@/]+@[^\s/]+`)},
	{"JSON Web Token", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)},
	{"Labeled Secret", regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|token|password|passwd|credential)s?\s*[=:]\s*['"]?[A-Za-z0-9_\-./+]{8,}['"]?`)},
	{"Bearer Token", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.=]{16,}`)},
}
