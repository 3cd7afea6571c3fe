package lookup

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// FallbackNameserver is queried when neither the configuration nor
// /etc/resolv.conf names one.
const FallbackNameserver = "8.8.8.8:53"

// DNSResolver checks for A records against a single nameserver. No retries:
// a timeout is an answer.
type DNSResolver struct {
	client     *dns.Client
	nameserver string
}

// NewDNSResolver uses nameserver ("host:port") or, when empty, the first
// server in /etc/resolv.conf.
func NewDNSResolver(nameserver string, timeout time.Duration) *DNSResolver {
	if nameserver == "" {
		nameserver = systemNameserver()
	}
	return &DNSResolver{
		client:     &dns.Client{Net: "udp", Timeout: timeout},
		nameserver: nameserver,
	}
}

func systemNameserver() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return FallbackNameserver
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// HasA reports whether host resolves to at least one IPv4 address.
// NXDOMAIN is a definite "no"; other failures are errors.
func (r *DNSResolver) HasA(ctx context.Context, host string) (bool, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	in, _, err := r.client.ExchangeContext(ctx, m, r.nameserver)
	if err != nil {
		return false, wrap("dns", host, err)
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return false, nil
	default:
		return false, wrap("dns", host, fmt.Errorf("rcode %s", dns.RcodeToString[in.Rcode]))
	}

	for _, rr := range in.Answer {
		if _, ok := rr.(*dns.A); ok {
			return true, nil
		}
	}
	return false, nil
}
