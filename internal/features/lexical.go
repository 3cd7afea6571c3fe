package features

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"

	"urlguard/internal/urlnorm"
)

var (
	reDottedQuad = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
	reHexOctet   = regexp.MustCompile(`0x[0-9a-f]+`)
)

// DefaultShorteners is used when the configuration does not list any.
var DefaultShorteners = []string{"bit.ly", "tinyurl.com", "goo.gl", "ow.ly", "t.co", "is.gd"}

// AnalyzeLexical derives the features computable from the URL string alone.
// It performs no I/O and cannot fail.
func AnalyzeLexical(u urlnorm.ParsedURL, shorteners []string) *Partial {
	p := NewPartial()
	full := u.Raw
	host := u.Host

	p.Set(HavingIPAddress, boolToValue(!isIPHost(host)))
	p.Set(URLLength, bucketLength(len(full)))
	p.Set(ShorteningService, boolToValue(!isShortener(host, shorteners)))
	p.Set(HavingAtSymbol, boolToValue(!strings.Contains(full, "@")))
	p.Set(DoubleSlashRedirecting, boolToValue(strings.LastIndex(full, "//") <= 7))
	p.Set(PrefixSuffix, boolToValue(!strings.Contains(host, "-")))
	p.Set(HavingSubDomain, bucketSubdomains(subdomainDots(host)))
	p.Set(Port, boolToValue(standardPort(u.Port)))
	p.Set(HTTPSToken, boolToValue(!strings.Contains(host, "https")))

	return p
}

// standardPort accepts an absent port or 80/443 in any spelling, e.g. "0080".
func standardPort(port string) bool {
	if port == "" {
		return true
	}
	n, err := strconv.Atoi(port)
	return err == nil && (n == 80 || n == 443)
}

func isIPHost(host string) bool {
	if reDottedQuad.MatchString(host) || reHexOctet.MatchString(host) {
		return true
	}
	return net.ParseIP(host) != nil
}

func bucketLength(n int) Value {
	switch {
	case n < 54:
		return Legitimate
	case n <= 75:
		return Suspicious
	default:
		return Phishing
	}
}

func isShortener(host string, shorteners []string) bool {
	for _, s := range shorteners {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// subdomainDots counts the dots left of the registrable domain once a
// leading "www." is removed: example.com -> 0, mail.example.com -> 1.
func subdomainDots(host string) int {
	host = strings.TrimPrefix(host, "www.")
	total := strings.Count(host, ".")

	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		if total > 0 {
			return total - 1
		}
		return 0
	}
	return total - strings.Count(apex, ".")
}

func bucketSubdomains(dots int) Value {
	switch {
	case dots <= 0:
		return Legitimate
	case dots == 1:
		return Suspicious
	default:
		return Phishing
	}
}

func boolToValue(legit bool) Value {
	if legit {
		return Legitimate
	}
	return Phishing
}
