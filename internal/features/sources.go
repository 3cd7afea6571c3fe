package features

import (
	"context"
	"time"
)

// Page is the single HTTP fetch shared by the content analyzer.
type Page struct {
	StatusCode    int
	Body          string
	RedirectCount int
	FinalURL      string
}

// WhoisRecord is the subset of registration data the domain analyzer reads.
// Either date may be nil when the registry omits it.
type WhoisRecord struct {
	CreationDate   *time.Time
	ExpirationDate *time.Time
}

// CertInfo describes the leaf certificate presented for a host.
type CertInfo struct {
	Issuer        string
	TrustedIssuer bool
	NotBefore     time.Time
	NotAfter      time.Time
}

// PageFetcher downloads a page, following redirects.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Resolver answers whether a host has an A record.
type Resolver interface {
	HasA(ctx context.Context, host string) (bool, error)
}

// WhoisSource returns registration data for a host.
type WhoisSource interface {
	Lookup(ctx context.Context, host string) (*WhoisRecord, error)
}

// CertInspector returns the certificate served on host:443.
type CertInspector interface {
	Inspect(ctx context.Context, host string) (*CertInfo, error)
}

// TrafficRanker estimates a popularity rank; ok is false when unknown.
type TrafficRanker interface {
	Rank(ctx context.Context, host string) (rank int, ok bool, err error)
}

// IndexChecker reports whether a search engine knows the host.
type IndexChecker interface {
	Indexed(ctx context.Context, host string) (bool, error)
}

// BlockList reports whether a host is a known phishing host.
type BlockList interface {
	Listed(ctx context.Context, host string) (bool, error)
}
