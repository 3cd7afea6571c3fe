package lookup

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"

	"urlguard/internal/features"
)

var trustedIssuers = []string{
	"Actalis", "Amazon", "Apple", "Buypass", "Certigna", "Certum", "CFCA",
	"Chunghwa Telecom", "Comodo", "Cybertrust", "DigiCert", "Entrust",
	"eMudhra", "Firmaprofesional", "GeoTrust", "GlobalSign", "GoDaddy", "IdenTrust",
	"Internet2", "Let's Encrypt", "Microsoft", "NetLock", "Network Solutions",
	"QuoVadis", "Secom", "SSL.com", "SwissSign", "Sectigo", "Symantec",
	"Telia Company", "Thawte", "Trustwave", "TWCA", "Unizeto", "VeriSign",
	"Verizon", "WISeKey", "Xolphin", "Google Trust Services", "ZeroSSL",
}

// CertInspector reads the leaf certificate served on port 443. Verification
// is skipped so that self-signed and expired chains can still be described.
type CertInspector struct {
	dialer *net.Dialer
	port   string
}

func NewCertInspector() *CertInspector {
	return &CertInspector{dialer: &net.Dialer{}, port: "443"}
}

func (c *CertInspector) Inspect(ctx context.Context, host string) (*features.CertInfo, error) {
	rawConn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, c.port))
	if err != nil {
		return nil, wrap("tls", host, fmt.Errorf("tcp dial failed: %w", err))
	}
	defer rawConn.Close()

	tlsConn := tls.Client(rawConn, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true,
	})
	defer tlsConn.Close()

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, wrap("tls", host, fmt.Errorf("tls handshake failed: %w", err))
	}

	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, wrap("tls", host, fmt.Errorf("no peer certificates"))
	}
	return describe(certs[0]), nil
}

func describe(cert *x509.Certificate) *features.CertInfo {
	issuer := issuerOrganization(cert)
	return &features.CertInfo{
		Issuer:        issuer,
		TrustedIssuer: isTrustedIssuer(issuer),
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
	}
}

func issuerOrganization(cert *x509.Certificate) string {
	if len(cert.Issuer.Organization) > 0 {
		return cert.Issuer.Organization[0]
	}
	return cert.Issuer.CommonName
}

func isTrustedIssuer(org string) bool {
	for _, prefix := range trustedIssuers {
		if strings.HasPrefix(org, prefix) {
			return true
		}
	}
	return false
}
