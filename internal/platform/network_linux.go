//go:build linux
// +build linux

package platform

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

type linuxNetworkManager struct{}

func newNetworkManager() NetworkManager {
	return &linuxNetworkManager{}
}

func blackholeRoute(ip string) (*netlink.Route, error) {
	ipAddr := net.ParseIP(ip).To4()
	if ipAddr == nil {
		return nil, fmt.Errorf("invalid IPv4 address: %s", ip)
	}

	return &netlink.Route{
		Dst: &net.IPNet{
			IP:   ipAddr,
			Mask: net.CIDRMask(32, 32),
		},
		Type: unix.RTN_BLACKHOLE,
	}, nil
}

func (nm *linuxNetworkManager) IsBlocked(ip string) (bool, error) {
	route, err := blackholeRoute(ip)
	if err != nil {
		return false, err
	}

	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4, route, netlink.RT_FILTER_DST|netlink.RT_FILTER_TYPE)
	if err != nil {
		return false, fmt.Errorf("list routes for %s: %w", ip, err)
	}
	return len(routes) > 0, nil
}

func (nm *linuxNetworkManager) BlockIP(ip string) error {
	route, err := blackholeRoute(ip)
	if err != nil {
		return err
	}
	if err := netlink.RouteAdd(route); err != nil {
		return fmt.Errorf("add blackhole route for %s: %w", ip, err)
	}
	return nil
}

func (nm *linuxNetworkManager) UnblockIP(ip string) error {
	route, err := blackholeRoute(ip)
	if err != nil {
		return err
	}
	if err := netlink.RouteDel(route); err != nil {
		return fmt.Errorf("delete blackhole route for %s: %w", ip, err)
	}
	return nil
}
