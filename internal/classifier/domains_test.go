package classifier

import (
	"reflect"
	"testing"
)

func TestExtractDomains(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{
			"curl url",
			"curl https://api.example.com/v1/data",
			[]string{"api.example.com"},
		},
		{
			"wget bare host",
			"wget example.org/file.tar.gz",
			[]string{"example.org"},
		},
		{
			"curl with method flag",
			"curl -s -X GET https://api.example.com/health",
			[]string{"api.example.com"},
		},
		{
			"nc target",
			"nc attacker.evil.net 4444",
			[]string{"attacker.evil.net"},
		},
		{
			"ssh target",
			"ssh root@bastion.corp.io",
			[]string{"bastion.corp.io"},
		},
		{
			"scp target",
			"scp file.txt deploy@files.corp.io",
			[]string{"files.corp.io"},
		},
		{
			"embedded url",
			"echo 'see http://docs.example.com/page' > note.txt",
			[]string{"docs.example.com"},
		},
		{
			"deduplicated",
			"curl https://a.example.com && curl https://a.example.com",
			[]string{"a.example.com"},
		},
		{
			"no domains",
			"ls -la /etc",
			nil,
		},
		{
			"port stripped",
			"curl http://api.example.com:8443/x",
			[]string{"api.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDomains(tt.command)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractDomains(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestMatchDomain(t *testing.T) {
	entries := []string{"example.com", "Corp.IO"}

	tests := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"api.example.com", true},
		{"deep.api.example.com", true},
		{"notexample.com", false},
		{"example.com.evil.net", false},
		{"corp.io", true},
		{"git.corp.io", true},
	}

	for _, tt := range tests {
		if got := matchDomain(tt.domain, entries); got != tt.want {
			t.Errorf("matchDomain(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}
