package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"urlguard/internal/urlnorm"
)

var errDown = errors.New("source unavailable")

type fakeFetcher struct {
	page *Page
	err  error
}

func (f fakeFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	return f.page, f.err
}

type fakeResolver struct {
	ok  bool
	err error
}

func (f fakeResolver) HasA(ctx context.Context, host string) (bool, error) {
	return f.ok, f.err
}

type fakeWhois struct {
	record *WhoisRecord
	err    error
}

func (f fakeWhois) Lookup(ctx context.Context, host string) (*WhoisRecord, error) {
	return f.record, f.err
}

type fakeCerts struct {
	info *CertInfo
	err  error
}

func (f fakeCerts) Inspect(ctx context.Context, host string) (*CertInfo, error) {
	return f.info, f.err
}

type fakeRanker struct {
	rank int
	ok   bool
	err  error
}

func (f fakeRanker) Rank(ctx context.Context, host string) (int, bool, error) {
	return f.rank, f.ok, f.err
}

type fakeIndex struct {
	indexed bool
	err     error
}

func (f fakeIndex) Indexed(ctx context.Context, host string) (bool, error) {
	return f.indexed, f.err
}

type fakeBlockList struct {
	listed map[string]bool
	err    error
}

func (f fakeBlockList) Listed(ctx context.Context, host string) (bool, error) {
	return f.listed[host], f.err
}

// blockingSource never answers until its context is done.
type blockingSource struct{}

func (blockingSource) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingSource) HasA(ctx context.Context, host string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (blockingSource) Lookup(ctx context.Context, host string) (*WhoisRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingSource) Rank(ctx context.Context, host string) (int, bool, error) {
	<-ctx.Done()
	return 0, false, ctx.Err()
}

func (blockingSource) Indexed(ctx context.Context, host string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := fixedNow.Add(-time.Duration(n) * day)
	return &t
}

func healthyExtractor() *Extractor {
	return &Extractor{
		Fetcher:  fakeFetcher{page: &Page{StatusCode: 200, Body: mockBenignHTML}},
		Resolver: fakeResolver{ok: true},
		Whois: fakeWhois{record: &WhoisRecord{
			CreationDate:   daysAgo(4000),
			ExpirationDate: daysAgo(-400),
		}},
		Ranker:    fakeRanker{rank: 50000, ok: true},
		Index:     fakeIndex{indexed: true},
		BlockList: fakeBlockList{},
		Now:       func() time.Time { return fixedNow },
	}
}

// failureVector is what every request yields when no external source answers.
func failureVector() map[Name]Value {
	return map[Name]Value{
		HavingIPAddress:          Legitimate,
		URLLength:                Legitimate,
		ShorteningService:        Legitimate,
		HavingAtSymbol:           Legitimate,
		DoubleSlashRedirecting:   Legitimate,
		PrefixSuffix:             Legitimate,
		HavingSubDomain:          Legitimate,
		SSLFinalState:            Phishing,
		DomainRegistrationLength: Phishing,
		Favicon:                  Suspicious,
		Port:                     Legitimate,
		HTTPSToken:               Legitimate,
		RequestURL:               Suspicious,
		URLOfAnchor:              Suspicious,
		LinksInTags:              Suspicious,
		SFH:                      Suspicious,
		SubmittingToEmail:        Suspicious,
		AbnormalURL:              Legitimate,
		Redirect:                 Suspicious,
		OnMouseover:              Suspicious,
		RightClick:               Suspicious,
		PopUpWindow:              Suspicious,
		Iframe:                   Suspicious,
		AgeOfDomain:              Phishing,
		DNSRecord:                Phishing,
		WebTraffic:               Phishing,
		PageRank:                 Phishing,
		GoogleIndex:              Legitimate,
		LinksPointingToPage:      Phishing,
		StatisticalReport:        Legitimate,
	}
}

func TestExtract_AllSourcesFail(t *testing.T) {
	e := &Extractor{
		Fetcher:   fakeFetcher{err: errDown},
		Resolver:  fakeResolver{err: errDown},
		Whois:     fakeWhois{err: errDown},
		Certs:     fakeCerts{err: errDown},
		Ranker:    fakeRanker{err: errDown},
		Index:     fakeIndex{err: errDown},
		BlockList: fakeBlockList{err: errDown},
	}

	x, err := e.Extract(context.Background(), "http://doesnotexist.invalid")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if diff := cmp.Diff(failureVector(), x.Features.Map()); diff != "" {
		t.Errorf("fallback vector mismatch (-want +got):\n%s", diff)
	}

	// Every network feature except SSLfinal_State (plain http) is a fallback.
	if len(x.Fallbacks) != 19 {
		t.Errorf("got %d fallbacks, want 19: %v", len(x.Fallbacks), x.Fallbacks)
	}
	for _, f := range x.Fallbacks {
		if f.Reason == nil {
			t.Errorf("fallback %s has no reason", f.Feature)
		}
	}
}

func TestExtract_NoSourcesConfigured(t *testing.T) {
	var e Extractor
	vec, err := e.ExtractFeatures(context.Background(), "doesnotexist.invalid")
	if err != nil {
		t.Fatalf("ExtractFeatures failed: %v", err)
	}
	if diff := cmp.Diff(failureVector(), vec.Map()); diff != "" {
		t.Errorf("vector mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_TimeoutsBoundLatency(t *testing.T) {
	var b blockingSource
	e := &Extractor{
		Fetcher:  b,
		Resolver: b,
		Whois:    b,
		Ranker:   b,
		Index:    b,
		Options: Options{
			DNSTimeout:   50 * time.Millisecond,
			WhoisTimeout: 50 * time.Millisecond,
			FetchTimeout: 50 * time.Millisecond,
			ProbeTimeout: 50 * time.Millisecond,
		},
	}

	start := time.Now()
	vec, err := e.ExtractFeatures(context.Background(), "http://doesnotexist.invalid")
	if err != nil {
		t.Fatalf("ExtractFeatures failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("extraction took %v, timeouts not honoured", elapsed)
	}
	if diff := cmp.Diff(failureVector(), vec.Map()); diff != "" {
		t.Errorf("vector mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_InvalidInput(t *testing.T) {
	e := healthyExtractor()
	for _, raw := range []string{"", "   ", "\t\n"} {
		_, err := e.Extract(context.Background(), raw)
		if !errors.Is(err, urlnorm.ErrInvalidInput) {
			t.Errorf("Extract(%q) error = %v, want ErrInvalidInput", raw, err)
		}
	}
}

func TestExtract_Idempotent(t *testing.T) {
	e := healthyExtractor()
	ctx := context.Background()

	first, err := e.ExtractFeatures(ctx, "https://www.example.com/")
	if err != nil {
		t.Fatalf("first extraction: %v", err)
	}
	second, err := e.ExtractFeatures(ctx, "https://www.example.com/")
	if err != nil {
		t.Fatalf("second extraction: %v", err)
	}
	if diff := cmp.Diff(first.Values(), second.Values()); diff != "" {
		t.Errorf("repeated extraction differs (-first +second):\n%s", diff)
	}
}

func TestExtract_HealthySources(t *testing.T) {
	e := healthyExtractor()
	x, err := e.Extract(context.Background(), "https://www.example.com/")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	expected := map[Name]Value{
		SSLFinalState:            Legitimate,
		DomainRegistrationLength: Legitimate,
		AgeOfDomain:              Legitimate,
		DNSRecord:                Legitimate,
		WebTraffic:               Legitimate,
		PageRank:                 Suspicious,
		LinksPointingToPage:      Suspicious,
		GoogleIndex:              Legitimate,
		StatisticalReport:        Legitimate,
		Favicon:                  Legitimate,
		Redirect:                 Legitimate,
	}
	for name, want := range expected {
		if got, _ := x.Features.Get(name); got != want {
			t.Errorf("Feature '%s': got %d, want %d", name, got, want)
		}
	}
	if len(x.Fallbacks) != 0 {
		t.Errorf("unexpected fallbacks: %v", x.Fallbacks)
	}
}

func TestExtract_LexicalIndependentOfNetwork(t *testing.T) {
	online, err := healthyExtractor().ExtractFeatures(context.Background(), "http://a.b-c.example.com@evil.com:8080/x//y")
	if err != nil {
		t.Fatal(err)
	}
	var offline Extractor
	cut, err := offline.ExtractFeatures(context.Background(), "http://a.b-c.example.com@evil.com:8080/x//y")
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []Name{
		HavingIPAddress, URLLength, ShorteningService, HavingAtSymbol,
		DoubleSlashRedirecting, PrefixSuffix, HavingSubDomain, Port, HTTPSToken,
	} {
		a, _ := online.Get(name)
		b, _ := cut.Get(name)
		if a != b {
			t.Errorf("%s differs: online %d, offline %d", name, a, b)
		}
	}
}

func FuzzExtract(f *testing.F) {
	seeds := []string{
		"http://example.com",
		"https://a.b.example.com:8443/path?q=1",
		"192.168.1.1/login",
		"http://example.com@evil.com",
		"bücher.example/über",
		"http://[::1]:80/",
		"::not-a-url::",
		"",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	var e Extractor
	f.Fuzz(func(t *testing.T, raw string) {
		vec, err := e.ExtractFeatures(context.Background(), raw)
		if err != nil {
			if !errors.Is(err, urlnorm.ErrInvalidInput) {
				t.Fatalf("unexpected error class for %q: %v", raw, err)
			}
			return
		}
		values := vec.Values()
		if len(values) != len(Names) {
			t.Fatalf("vector has %d values", len(values))
		}
		for i, v := range values {
			if v < Phishing || v > Legitimate {
				t.Fatalf("%s = %d out of range for %q", Names[i], v, raw)
			}
		}
	})
}

// Benchmark: go test -bench=Extract ./internal/features
func BenchmarkExtract(b *testing.B) {
	e := healthyExtractor()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Extract(ctx, "https://www.example.com/login")
	}
}
