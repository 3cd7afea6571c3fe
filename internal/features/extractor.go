package features

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"urlguard/internal/urlnorm"
)

// Options tunes thresholds and per-call timeouts. Start from DefaultOptions.
type Options struct {
	Shorteners []string
	SSLMode    SSLMode
	// IndexOnFailure is Google_Index when the search probe fails. Nil means
	// Legitimate.
	IndexOnFailure *Value

	TrafficThreshold  int
	PageRankHigh      int
	BacklinkThreshold int

	DNSTimeout   time.Duration
	WhoisTimeout time.Duration
	FetchTimeout time.Duration
	ProbeTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Shorteners:        DefaultShorteners,
		SSLMode:           SSLWhoisAge,
		IndexOnFailure:    valuePtr(Legitimate),
		TrafficThreshold:  100000,
		PageRankHigh:      10000,
		BacklinkThreshold: 50000,
		DNSTimeout:        5 * time.Second,
		WhoisTimeout:      10 * time.Second,
		FetchTimeout:      6 * time.Second,
		ProbeTimeout:      5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Shorteners == nil {
		o.Shorteners = d.Shorteners
	}
	if o.IndexOnFailure == nil {
		o.IndexOnFailure = d.IndexOnFailure
	}
	if o.SSLMode == "" {
		o.SSLMode = d.SSLMode
	}
	if o.TrafficThreshold <= 0 {
		o.TrafficThreshold = d.TrafficThreshold
	}
	if o.PageRankHigh <= 0 {
		o.PageRankHigh = d.PageRankHigh
	}
	if o.BacklinkThreshold <= 0 {
		o.BacklinkThreshold = d.BacklinkThreshold
	}
	if o.DNSTimeout <= 0 {
		o.DNSTimeout = d.DNSTimeout
	}
	if o.WhoisTimeout <= 0 {
		o.WhoisTimeout = d.WhoisTimeout
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = d.ProbeTimeout
	}
	return o
}

// Extractor turns a URL into the 30-feature vector. Any source left nil is
// treated as failing and its features take their defaults. An Extractor is
// safe for concurrent use; it keeps no per-request state.
type Extractor struct {
	Fetcher   PageFetcher
	Resolver  Resolver
	Whois     WhoisSource
	Certs     CertInspector
	Ranker    TrafficRanker
	Index     IndexChecker
	BlockList BlockList

	Options Options
	Now     func() time.Time
}

// Extraction is the outcome of one request.
type Extraction struct {
	URL       urlnorm.ParsedURL `json:"-"`
	Features  Vector            `json:"features"`
	Fallbacks []Fallback        `json:"fallbacks,omitempty"`
}

// ExtractFeatures returns only the vector.
func (e *Extractor) ExtractFeatures(ctx context.Context, raw string) (Vector, error) {
	x, err := e.Extract(ctx, raw)
	if err != nil {
		return Vector{}, err
	}
	return x.Features, nil
}

// Extract normalizes raw and runs the four analyzers concurrently. The only
// errors are urlnorm.ErrInvalidInput and ErrInternalConsistency; lookup
// failures become fallbacks.
func (e *Extractor) Extract(ctx context.Context, raw string) (*Extraction, error) {
	u, err := urlnorm.Normalize(raw)
	if err != nil {
		return nil, err
	}

	x := *e
	x.Options = e.Options.withDefaults()

	var lexical, domain, content, reputation *Partial
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = AnalyzeLexical(u, x.Options.Shorteners)
		return nil
	})
	g.Go(func() error {
		domain = x.analyzeDomain(gctx, u)
		return nil
	})
	g.Go(func() error {
		page, fetchErr := x.fetch(gctx, u)
		content = AnalyzeContent(u, page, fetchErr)
		return nil
	})
	g.Go(func() error {
		reputation = x.analyzeReputation(gctx, u)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vec, err := Assemble(lexical, domain, content, reputation)
	if err != nil {
		return nil, err
	}

	var fallbacks []Fallback
	for _, p := range []*Partial{lexical, domain, content, reputation} {
		fallbacks = append(fallbacks, p.Fallbacks()...)
	}
	for _, f := range fallbacks {
		log.WithFields(log.Fields{
			"url":     u.Raw,
			"feature": f.Feature,
			"value":   f.Value,
		}).Debugf("feature fallback: %v", f.Reason)
	}

	return &Extraction{URL: u, Features: vec, Fallbacks: fallbacks}, nil
}

func (e *Extractor) fetch(ctx context.Context, u urlnorm.ParsedURL) (*Page, error) {
	if e.Fetcher == nil {
		return nil, errSourceDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.Options.FetchTimeout)
	defer cancel()
	return e.Fetcher.Fetch(ctx, u.Raw)
}

func valuePtr(v Value) *Value {
	return &v
}

func (e *Extractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
