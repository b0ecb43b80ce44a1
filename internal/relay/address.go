package relay

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrMalformed marks a string that is not a dotted-quad IPv4 address.
	ErrMalformed = errors.New("malformed IPv4 address")
	// ErrSensitive marks a loopback, private or link-local address.
	ErrSensitive = errors.New("loopback, private or link-local address")
)

// IsWellFormed reports whether addr is exactly four decimal octets in 0-255.
// Leading zeros, IPv6 and IPv4-mapped forms are rejected.
func IsWellFormed(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	return err == nil && ip.Is4()
}

// IsSensitive reports whether addr lies in 127.0.0.0/8, 10.0.0.0/8,
// 172.16.0.0/12, 192.168.0.0/16 or 169.254.0.0/16. Malformed input is
// not sensitive; callers check IsWellFormed first.
func IsSensitive(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is4() {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// CheckAddress runs both predicates. The returned error wraps ErrMalformed
// or ErrSensitive.
func CheckAddress(addr string) error {
	if !IsWellFormed(addr) {
		return fmt.Errorf("%w: %q", ErrMalformed, addr)
	}
	if IsSensitive(addr) {
		return fmt.Errorf("%w: %s", ErrSensitive, addr)
	}
	return nil
}
