// Package netutil provides IP address helpers shared by the admission layer.
package netutil

import "net/netip"

// Classification represents the routing scope of an IP address.
// Throttling and proxy-header trust decisions key off it.
type Classification int

const (
	// ClassPublic indicates a publicly routable address.
	ClassPublic Classification = iota
	// ClassLoopback indicates a loopback address (127.0.0.0/8, ::1).
	ClassLoopback
	// ClassPrivate indicates a private/internal address (RFC 1918, ULA).
	ClassPrivate
	// ClassLinkLocal indicates a link-local address (169.254.0.0/16, fe80::/10).
	ClassLinkLocal
	// ClassUnspecified indicates an unspecified address (0.0.0.0, ::).
	ClassUnspecified
)

// String returns a human-readable name for the classification.
func (c Classification) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassLoopback:
		return "loopback"
	case ClassPrivate:
		return "private"
	case ClassLinkLocal:
		return "link_local"
	case ClassUnspecified:
		return "unspecified"
	default:
		return "unknown"
	}
}

// Classify returns the routing scope of addr. IPv4-mapped IPv6 addresses are
// classified as their embedded IPv4 address.
func Classify(addr netip.Addr) Classification {
	if !addr.IsValid() {
		return ClassUnspecified
	}
	addr = addr.Unmap()

	switch {
	case addr.IsUnspecified():
		return ClassUnspecified
	case addr.IsLoopback():
		return ClassLoopback
	case addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
		return ClassLinkLocal
	case addr.IsPrivate():
		return ClassPrivate
	}
	return ClassPublic
}

// IsInternal reports whether addr is anything other than publicly routable.
// Internal peers (load balancers, health checkers) bypass the coarse throttle.
func IsInternal(addr netip.Addr) bool {
	return Classify(addr) != ClassPublic
}

// ParseHost parses a bare host string into an address. It accepts IPv6
// addresses with or without brackets and strips any zone identifier so the
// same interface-scoped address always maps to the same key.
func ParseHost(host string) (netip.Addr, bool) {
	if len(host) > 2 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone(""), true
}
