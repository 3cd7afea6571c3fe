package features

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"urlguard/internal/urlnorm"
)

// SSLMode selects how SSLfinal_State is judged for https URLs.
type SSLMode string

const (
	// SSLWhoisAge treats a domain registered for at least a year as trusted.
	SSLWhoisAge SSLMode = "whois_age"
	// SSLCertificate inspects the served certificate and falls back to
	// SSLWhoisAge when the handshake fails.
	SSLCertificate SSLMode = "certificate"
)

const (
	day             = 24 * time.Hour
	minDomainAge    = 180 * day
	minTrustAge     = 365 * day
	minRegistration = 365 * day
)

var (
	errSourceDisabled = errors.New("lookup source not configured")
	errIPLiteral      = errors.New("host is an IP literal")
	errNoCreation     = errors.New("whois record has no creation date")
	errNoExpiration   = errors.New("whois record has no expiration date")
)

type whoisResult struct {
	record *WhoisRecord
	err    error
}

// analyzeDomain runs the WHOIS and DNS lookups in parallel; WHOIS is queried
// once and shared by the three features that read it.
func (e *Extractor) analyzeDomain(ctx context.Context, u urlnorm.ParsedURL) *Partial {
	p := NewPartial()

	var (
		wg     sync.WaitGroup
		whois  whoisResult
		hasA   bool
		dnsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		whois.record, whois.err = e.lookupWhois(ctx, u.ASCIIHost)
	}()
	go func() {
		defer wg.Done()
		hasA, dnsErr = e.resolveA(ctx, u.ASCIIHost)
	}()
	wg.Wait()

	switch {
	case dnsErr != nil:
		p.SetFallback(DNSRecord, Phishing, dnsErr)
	default:
		p.Set(DNSRecord, boolToValue(hasA))
	}

	now := e.now()
	e.setAge(p, whois, now)
	e.setRegistration(p, whois)
	e.setSSL(ctx, p, u, whois, now)

	return p
}

func (e *Extractor) lookupWhois(ctx context.Context, host string) (*WhoisRecord, error) {
	if e.Whois == nil {
		return nil, errSourceDisabled
	}
	if net.ParseIP(host) != nil {
		return nil, errIPLiteral
	}
	ctx, cancel := context.WithTimeout(ctx, e.Options.WhoisTimeout)
	defer cancel()
	record, err := e.Whois.Lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("whois %s: empty record", host)
	}
	return record, nil
}

func (e *Extractor) resolveA(ctx context.Context, host string) (bool, error) {
	if e.Resolver == nil {
		return false, errSourceDisabled
	}
	if net.ParseIP(host) != nil {
		return false, errIPLiteral
	}
	ctx, cancel := context.WithTimeout(ctx, e.Options.DNSTimeout)
	defer cancel()
	return e.Resolver.HasA(ctx, host)
}

func (e *Extractor) setAge(p *Partial, w whoisResult, now time.Time) {
	if w.err != nil {
		p.SetFallback(AgeOfDomain, Phishing, w.err)
		return
	}
	if w.record.CreationDate == nil {
		p.SetFallback(AgeOfDomain, Phishing, errNoCreation)
		return
	}
	p.Set(AgeOfDomain, boolToValue(now.Sub(*w.record.CreationDate) >= minDomainAge))
}

func (e *Extractor) setRegistration(p *Partial, w whoisResult) {
	if w.err != nil {
		p.SetFallback(DomainRegistrationLength, Phishing, w.err)
		return
	}
	if w.record.CreationDate == nil {
		p.SetFallback(DomainRegistrationLength, Phishing, errNoCreation)
		return
	}
	if w.record.ExpirationDate == nil {
		p.SetFallback(DomainRegistrationLength, Phishing, errNoExpiration)
		return
	}
	span := w.record.ExpirationDate.Sub(*w.record.CreationDate)
	p.Set(DomainRegistrationLength, boolToValue(span >= minRegistration))
}

func (e *Extractor) setSSL(ctx context.Context, p *Partial, u urlnorm.ParsedURL, w whoisResult, now time.Time) {
	if !u.IsHTTPS() {
		p.Set(SSLFinalState, Phishing)
		return
	}

	if e.Options.SSLMode == SSLCertificate {
		cert, err := e.inspectCert(ctx, u.ASCIIHost)
		if err == nil {
			p.Set(SSLFinalState, certValue(cert, now))
			return
		}
		// Handshake failed: use the registration-age proxy and say so.
		v, _ := whoisTrust(w, now)
		p.SetFallback(SSLFinalState, v, fmt.Errorf("certificate unavailable, used domain age: %w", err))
		return
	}

	v, err := whoisTrust(w, now)
	if err != nil {
		p.SetFallback(SSLFinalState, v, err)
		return
	}
	p.Set(SSLFinalState, v)
}

func (e *Extractor) inspectCert(ctx context.Context, host string) (*CertInfo, error) {
	if e.Certs == nil {
		return nil, errSourceDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, e.Options.FetchTimeout)
	defer cancel()
	return e.Certs.Inspect(ctx, host)
}

// whoisTrust is the registration-age stand-in for certificate trust.
func whoisTrust(w whoisResult, now time.Time) (Value, error) {
	if w.err != nil {
		return Suspicious, w.err
	}
	if w.record.CreationDate == nil {
		return Suspicious, errNoCreation
	}
	if now.Sub(*w.record.CreationDate) >= minTrustAge {
		return Legitimate, nil
	}
	return Suspicious, nil
}

func certValue(c *CertInfo, now time.Time) Value {
	if c.TrustedIssuer && now.After(c.NotBefore) && now.Before(c.NotAfter) {
		return Legitimate
	}
	return Suspicious
}
