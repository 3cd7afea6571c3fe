package repository

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"urlguard/internal/config"
)

func collect(t *testing.T, raw string, src config.SourceConfig) []string {
	t.Helper()
	outChan := make(chan BlockedDomain, 10)

	// Run in background
	go ParseAndStream(strings.NewReader(raw), outChan, src)

	var hosts []string
	for item := range outChan {
		if item.Source != src.Name || item.Action != ActionBlock {
			t.Errorf("unexpected item %+v", item)
		}
		hosts = append(hosts, item.Domain)
	}
	return hosts
}

func TestParseAndStream(t *testing.T) {
	tests := []struct {
		name string
		src  config.SourceConfig
		raw  string
		want []string
	}{
		{
			name: "hosts",
			src:  config.SourceConfig{Name: "test", Format: "hosts"},
			raw: `
# This is a comment
127.0.0.1   localhost
0.0.0.0     adserver.com

# Another comment
0.0.0.0     malware.xyz
`,
			want: []string{"adserver.com", "malware.xyz"},
		},
		{
			name: "openphish text",
			src:  config.SourceConfig{Name: "openphish", Format: "text"},
			raw: `https://secure-login.example.net/verify/index.php
http://PAYPAL-update.example.org:8080/
bare-host.example.com/path
# comment`,
			want: []string{"secure-login.example.net", "paypal-update.example.org", "bare-host.example.com"},
		},
		{
			name: "csv",
			src:  config.SourceConfig{Name: "feed", Format: "csv", TargetColumn: "URL"},
			raw:  "id,url,verified\n1,http://a.example/x,yes\n2,b.example,no\n3\n",
			want: []string{"a.example", "b.example"},
		},
		{
			name: "json objects",
			src:  config.SourceConfig{Name: "phishtank", Format: "json"},
			raw:  `[{"phish_id":1,"url":"http://c.example/login"},{"phish_id":2},{"url":"https://d.example"}]`,
			want: []string{"c.example", "d.example"},
		},
		{
			name: "json strings",
			src:  config.SourceConfig{Name: "list", Format: "json"},
			raw:  `["e.example", "http://f.example/"]`,
			want: []string{"e.example", "f.example"},
		},
		{
			name: "json not an array",
			src:  config.SourceConfig{Name: "list", Format: "json"},
			raw:  `{"url":"g.example"}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, tt.raw, tt.src)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("hosts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeEntry(t *testing.T) {
	for in, want := range map[string]string{
		"Example.COM.":               "example.com",
		"https://x.example/a?b=c":    "x.example",
		"y.example:443":              "y.example",
		"localhost":                  "",
		"   ":                        "",
		"http://[2001:db8::1]:8080/": "2001:db8::1",
		"evil.example#frag":          "evil.example",
	} {
		if got := NormalizeEntry(in); got != want {
			t.Errorf("NormalizeEntry(%q) = %q, want %q", in, got, want)
		}
	}
}
