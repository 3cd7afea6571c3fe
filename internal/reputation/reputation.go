// Package reputation holds the placeholder popularity and search-index
// signals. Each sits behind a single-method interface from package features,
// so a real data source can replace it without touching the pipeline.
package reputation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"urlguard/internal/features"
)

const (
	// DefaultPlaceholderRank is the rank reported for any reachable host.
	DefaultPlaceholderRank = 50000
	DefaultSearchEndpoint  = "https://html.duckduckgo.com/html/"
)

// Phrases the search page shows when a site: query returns nothing.
var noResultMarkers = []string{"no results", "did not match any results"}

// Prober returns the final HTTP status for a URL.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (int, error)
}

// Reachability stands in for a traffic-rank service: a host whose https root
// answers 200 gets PlaceholderRank, anything else is unknown.
type Reachability struct {
	Prober          Prober
	PlaceholderRank int
}

func (r *Reachability) Rank(ctx context.Context, host string) (int, bool, error) {
	status, err := r.Prober.Probe(ctx, "https://"+host+"/")
	if err != nil {
		return 0, false, err
	}
	if status != http.StatusOK {
		return 0, false, nil
	}
	rank := r.PlaceholderRank
	if rank <= 0 {
		rank = DefaultPlaceholderRank
	}
	return rank, true, nil
}

// SearchIndex asks an HTML search page for "site:host" results.
type SearchIndex struct {
	Fetcher  features.PageFetcher
	Endpoint string
}

func (s *SearchIndex) Indexed(ctx context.Context, host string) (bool, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	target := endpoint + "?" + url.Values{"q": {"site:" + host}}.Encode()

	page, err := s.Fetcher.Fetch(ctx, target)
	if err != nil {
		return false, fmt.Errorf("search probe: %w", err)
	}
	if page.StatusCode != http.StatusOK {
		return false, fmt.Errorf("search probe: status %d", page.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return false, fmt.Errorf("search probe: parse results: %w", err)
	}
	if doc.Find(".no-results").Length() > 0 {
		return false, nil
	}
	text := strings.ToLower(doc.Find("body").Text())
	for _, marker := range noResultMarkers {
		if strings.Contains(text, marker) {
			return false, nil
		}
	}
	return true, nil
}
