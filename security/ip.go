package security

import (
	"net"
	"net/netip"
	"strings"

	"github.com/eventgate/admission/internal/netutil"
)

// UnknownClient is the limiter key used when no address can be derived from
// a request. All such requests share one bucket.
const UnknownClient = "unknown"

// ClientKey derives the rate-limit identity for a request: the first entry
// of the X-Forwarded-For chain when present, otherwise the direct connection
// address, otherwise UnknownClient.
//
// The forwarded-for value is attacker-controlled unless a trusted proxy
// strips inbound copies; deployments without such a proxy should pass an
// empty forwardedFor.
func ClientKey(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if addr, ok := netutil.ParseHost(strings.TrimSpace(first)); ok {
			return CanonicalKey(addr)
		}
	}

	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if addr, ok := netutil.ParseHost(host); ok {
		return CanonicalKey(addr)
	}
	return UnknownClient
}

// CanonicalKey collapses an address to its limiter key. IPv4 (including
// IPv4-mapped IPv6) uses the RFC 5952 text form. IPv6 is truncated to its
// /64, since a single host typically controls an entire /64 and would
// otherwise mint fresh keys at will.
func CanonicalKey(addr netip.Addr) string {
	addr = addr.Unmap().WithZone("")
	if addr.Is4() {
		return addr.String()
	}

	prefix, err := addr.Prefix(64)
	if err != nil {
		return addr.String()
	}
	return prefix.Addr().String() + "/64"
}
