// Package security implements the collection runtime's security
// primitives: the outbound-URL safety check, filename sanitization,
// and input validators. All functions here are pure and thread-safe;
// none of them log — callers (the orchestrator) decide what to do
// with the typed errors they return.
package security

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
)

// metadataHosts are well-known cloud metadata service hostnames that
// must never be reachable through an adapter-initiated request, even
// when the resolved address itself doesn't fall in a private range.
var metadataHosts = map[string]bool{
	"metadata.google.internal": true,
	"metadata.goog":            true,
}

// Resolver is satisfied by *net.Resolver; accepted as an interface so
// tests can substitute a fixed-answer resolver without touching DNS.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// CheckURL rejects any URL unsafe to issue an outbound request to:
// non-http(s) schemes, loopback, link-local, RFC1918 and IPv6
// unique-local ranges, multicast, and known cloud metadata
// hostnames/addresses.
//
// This is a best-effort guard, not a substitute for egress filtering:
// it does not defend against TOCTOU (the resolved address can change
// between this check and the actual connection) or DNS rebinding.
// Adapters handling untrusted, caller-supplied URLs should still run
// behind network-level egress controls.
func CheckURL(ctx context.Context, rawURL string, resolver Resolver) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return cerrors.SSRF("cannot parse URL", err).WithContext("url", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return cerrors.SSRF("disallowed URL scheme: "+u.Scheme, nil).WithContext("url", rawURL)
	}
	host := u.Hostname()
	if host == "" {
		return cerrors.SSRF("URL has no host", nil).WithContext("url", rawURL)
	}
	if metadataHosts[strings.ToLower(host)] {
		return cerrors.SSRF("URL targets a cloud metadata hostname", nil).WithContext("url", rawURL)
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	addrs, err := resolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		return cerrors.SSRF("cannot resolve host", err).WithContext("url", rawURL, "host", host)
	}
	if len(addrs) == 0 {
		return cerrors.SSRF("host resolved to no addresses", nil).WithContext("url", rawURL, "host", host)
	}
	for _, addr := range addrs {
		if isUnsafeIP(addr.IP) {
			return cerrors.SSRF("host resolves to a disallowed address", nil).
				WithContext("url", rawURL, "host", host, "address", addr.IP.String())
		}
	}
	return nil
}

// isUnsafeIP reports whether ip falls in a range that must never be
// the target of an outbound collector request: loopback, link-local,
// RFC1918, IPv6 unique-local, multicast, or the AWS/GCP/Azure
// metadata address.
func isUnsafeIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip.To16())
	if !ok {
		return true // unparsable address: fail closed
	}
	addr = addr.Unmap()

	if addr.String() == "169.254.169.254" {
		return true
	}
	switch {
	case addr.IsLoopback(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsMulticast(),
		addr.IsPrivate(), // covers RFC1918 and IPv6 unique-local (fc00::/7)
		addr.IsUnspecified():
		return true
	}
	return false
}
