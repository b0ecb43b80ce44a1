package platform

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by route backends on platforms without blackhole routes.
var ErrUnsupported = errors.New("blackhole routes are not supported on this platform")

// NetworkManager is the kernel capability used to blackhole single IPv4 addresses.
// Implementations only talk to the routing table; validation and bookkeeping
// happen in the caller.
type NetworkManager interface {
	// IsBlocked reports whether a blackhole route exists for exactly ip.
	IsBlocked(ip string) (bool, error)
	BlockIP(ip string) error
	UnblockIP(ip string) error
}

const (
	// BackendNetlink talks rtnetlink directly.
	BackendNetlink = "netlink"
	// BackendIPRoute shells out to the iproute2 `ip` tool.
	BackendIPRoute = "iproute"
)

// NewNetworkManager creates the route backend selected by name.
func NewNetworkManager(backend string) (NetworkManager, error) {
	switch backend {
	case "", BackendNetlink:
		return newNetworkManager(), nil
	case BackendIPRoute:
		return NewIPRouteManager(), nil
	default:
		return nil, fmt.Errorf("unknown route backend %q", backend)
	}
}
