package features

import (
	"context"
	"errors"

	"urlguard/internal/urlnorm"
)

var errRankUnknown = errors.New("traffic rank unknown")

// analyzeReputation reads the placeholder popularity rank once and derives
// web_traffic, Page_Rank and Links_pointing_to_page from it.
func (e *Extractor) analyzeReputation(ctx context.Context, u urlnorm.ParsedURL) *Partial {
	p := NewPartial()
	o := e.Options

	rank, known, err := e.rank(ctx, u.ASCIIHost)
	switch {
	case err != nil:
		p.SetFallback(WebTraffic, Phishing, err)
		p.SetFallback(PageRank, Phishing, err)
		p.SetFallback(LinksPointingToPage, Phishing, err)
	case !known:
		p.SetFallback(WebTraffic, Phishing, errRankUnknown)
		p.SetFallback(PageRank, Phishing, errRankUnknown)
		p.SetFallback(LinksPointingToPage, Phishing, errRankUnknown)
	default:
		p.Set(WebTraffic, boolToValue(rank < o.TrafficThreshold))
		p.Set(PageRank, bucketPageRank(rank, o.PageRankHigh, o.TrafficThreshold))
		if rank < o.BacklinkThreshold {
			p.Set(LinksPointingToPage, Legitimate)
		} else {
			p.Set(LinksPointingToPage, Suspicious)
		}
	}

	indexed, err := e.indexed(ctx, u.ASCIIHost)
	if err != nil {
		p.SetFallback(GoogleIndex, *o.IndexOnFailure, err)
	} else {
		p.Set(GoogleIndex, boolToValue(indexed))
	}

	if e.BlockList == nil {
		p.SetFallback(StatisticalReport, Legitimate, errSourceDisabled)
	} else if listed, err := e.BlockList.Listed(ctx, u.ASCIIHost); err != nil {
		p.SetFallback(StatisticalReport, Legitimate, err)
	} else {
		p.Set(StatisticalReport, boolToValue(!listed))
	}

	return p
}

func (e *Extractor) rank(ctx context.Context, host string) (int, bool, error) {
	if e.Ranker == nil {
		return 0, false, errSourceDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.Options.ProbeTimeout)
	defer cancel()
	return e.Ranker.Rank(ctx, host)
}

func (e *Extractor) indexed(ctx context.Context, host string) (bool, error) {
	if e.Index == nil {
		return false, errSourceDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.Options.ProbeTimeout)
	defer cancel()
	return e.Index.Indexed(ctx, host)
}

func bucketPageRank(rank, high, moderate int) Value {
	switch {
	case rank < high:
		return Legitimate
	case rank < moderate:
		return Suspicious
	default:
		return Phishing
	}
}
