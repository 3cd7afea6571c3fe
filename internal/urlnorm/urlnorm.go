package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidInput is returned for input that cannot be turned into a URL with a host.
var ErrInvalidInput = errors.New("invalid input")

// ParsedURL is the canonical view of a submitted URL. Raw is the string every
// lexical feature measures.
type ParsedURL struct {
	Raw       string
	Scheme    string
	Host      string
	ASCIIHost string
	Port      string
	Path      string
}

// Normalize prepends http:// to scheme-less input and splits the result into
// its components. It never touches the network.
func Normalize(raw string) (ParsedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParsedURL{}, fmt.Errorf("%w: empty url", ErrInvalidInput)
	}

	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ParsedURL{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ParsedURL{}, fmt.Errorf("%w: no host in %q", ErrInvalidInput, raw)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return ParsedURL{
		Raw:       raw,
		Scheme:    strings.ToLower(u.Scheme),
		Host:      host,
		ASCIIHost: toASCII(host),
		Port:      u.Port(),
		Path:      path,
	}, nil
}

// IsHTTPS reports whether the URL was submitted with the https scheme.
func (p ParsedURL) IsHTTPS() bool {
	return p.Scheme == "https"
}

// toASCII returns the punycode form of host, or host itself when it is
// already ASCII or not a valid IDN.
func toASCII(host string) string {
	a, err := idna.Lookup.ToASCII(host)
	if err != nil || a == "" {
		return host
	}
	return a
}
