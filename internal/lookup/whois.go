package lookup

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"

	"urlguard/internal/features"
)

var reCompactDate = regexp.MustCompile(`(\d{8})`)

// Registries disagree on date formats; these cover the common ones.
var whoisLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02",
	"02-Jan-2006",
	"2006/01/02",
	"2006.01.02",
	"02.01.2006",
	"Mon Jan 2 15:04:05 MST 2006",
	time.RFC1123,
}

// WhoisClient queries WHOIS for the registrable domain of a host.
type WhoisClient struct {
	client *whois.Client
}

func NewWhoisClient(timeout time.Duration) *WhoisClient {
	c := whois.NewClient()
	c.SetTimeout(timeout)
	return &WhoisClient{client: c}
}

type rawResult struct {
	text string
	err  error
}

// Lookup returns the creation and expiration dates of host's apex domain.
func (w *WhoisClient) Lookup(ctx context.Context, host string) (*features.WhoisRecord, error) {
	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return nil, wrap("whois", host, fmt.Errorf("apex domain: %w", err))
	}

	resultChan := make(chan rawResult, 1)
	go func() {
		text, err := w.client.Whois(apex)
		resultChan <- rawResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, wrap("whois", apex, ctx.Err())
	case res := <-resultChan:
		if res.err != nil {
			return nil, wrap("whois", apex, res.err)
		}
		record, err := parseWhois(res.text)
		if err != nil {
			return nil, wrap("whois", apex, err)
		}
		return record, nil
	}
}

// parseWhois recovers from panics inside the parser, which some malformed
// registry responses trigger.
func parseWhois(text string) (record *features.WhoisRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("whois parser panic: %v", r)
		}
	}()

	info, err := whoisparser.Parse(text)
	if err != nil {
		return nil, err
	}
	if info.Domain == nil {
		return nil, fmt.Errorf("whois response has no domain section")
	}
	// Registries answer unknown names with free text the parser accepts.
	if info.Domain.Domain == "" && info.Domain.CreatedDate == "" && info.Domain.ExpirationDate == "" {
		return nil, whoisparser.ErrNotFoundDomain
	}

	record = &features.WhoisRecord{}
	if t, ok := ParseDate(info.Domain.CreatedDate); ok {
		record.CreationDate = &t
	}
	if t, ok := ParseDate(info.Domain.ExpirationDate); ok {
		record.ExpirationDate = &t
	}
	return record, nil
}

// ParseDate tries the known layouts, then any 8-digit YYYYMMDD run.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range whoisLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	if m := reCompactDate.FindStringSubmatch(raw); len(m) > 1 {
		if t, err := time.Parse("20060102", m[1]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
