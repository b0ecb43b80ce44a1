package platform

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/sys/execabs"
)

// IPRouteManager drives the routing table through the iproute2 `ip` binary.
// A command is successful when it exits with status zero.
type IPRouteManager struct {
	run func(args ...string) ([]byte, error)
}

// NewIPRouteManager returns a manager that executes `ip` from PATH.
func NewIPRouteManager() *IPRouteManager {
	return &IPRouteManager{run: runIP}
}

func runIP(args ...string) ([]byte, error) {
	return execabs.Command("ip", args...).CombinedOutput()
}

func (m *IPRouteManager) IsBlocked(ip string) (bool, error) {
	out, err := m.run("route", "show", ip)
	if err != nil {
		return false, fmt.Errorf("ip route show %s: %w: %s", ip, err, strings.TrimSpace(string(out)))
	}
	return hasBlackhole(out, ip), nil
}

func (m *IPRouteManager) BlockIP(ip string) error {
	if out, err := m.run("route", "add", "blackhole", ip); err != nil {
		return fmt.Errorf("ip route add blackhole %s: %w: %s", ip, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (m *IPRouteManager) UnblockIP(ip string) error {
	if out, err := m.run("route", "del", "blackhole", ip); err != nil {
		return fmt.Errorf("ip route del blackhole %s: %w: %s", ip, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// hasBlackhole scans `ip route show` output for "blackhole <ip>" entries.
func hasBlackhole(out []byte, ip string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "blackhole" {
			continue
		}
		if fields[1] == ip || fields[1] == ip+"/32" {
			return true
		}
	}
	return false
}
