// Package blocker keeps kernel blackhole routes and the block ledger in step.
package blocker

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/gajzzs/relayblock/internal/ledger"
	"github.com/gajzzs/relayblock/internal/platform"
	"github.com/gajzzs/relayblock/internal/relay"
)

// NetworkBlocker reconciles kernel route state with the ledger. The kernel
// answers "is this address blocked now"; the ledger answers "which addresses
// are ours to unblock".
type NetworkBlocker struct {
	routes platform.NetworkManager
	ledger *ledger.Ledger
	logger *log.Logger
}

func NewNetworkBlocker(routes platform.NetworkManager, l *ledger.Ledger, logger *log.Logger) *NetworkBlocker {
	if logger == nil {
		logger = log.Default()
	}
	return &NetworkBlocker{
		routes: routes,
		ledger: l,
		logger: logger,
	}
}

// Ledger returns the ledger this blocker writes to.
func (nb *NetworkBlocker) Ledger() *ledger.Ledger {
	return nb.ledger
}

// IsBlocked queries the kernel. A failed query reads as not blocked.
func (nb *NetworkBlocker) IsBlocked(ip string) bool {
	blocked, err := nb.routes.IsBlocked(ip)
	if err != nil {
		nb.logger.Debug("route query failed", "addr", ip, "error", err)
		return false
	}
	return blocked
}

// guard is the last check before any route mutation.
func (nb *NetworkBlocker) guard(ip, action string) (Outcome, error) {
	err := relay.CheckAddress(ip)
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, relay.ErrSensitive):
		nb.logger.Error("refusing to "+action+" private/localhost address", "addr", ip)
		return Refused, err
	default:
		nb.logger.Warn("invalid IP format, skipping", "addr", ip)
		return Skipped, err
	}
}

// BlockIP installs a blackhole route for ip and records it in the ledger.
// The route change happens under the ledger lock, so a concurrent Restore or
// unblock in another process sees either both or neither. If the ledger
// cannot be written the route is removed again.
func (nb *NetworkBlocker) BlockIP(ip string) (Outcome, error) {
	if outcome, err := nb.guard(ip, "block"); err != nil {
		return outcome, err
	}

	outcome, added := Failed, false
	err := nb.ledger.Locked(func(addrs []string) ([]string, error) {
		if nb.IsBlocked(ip) {
			outcome = AlreadyBlocked
			return addrs, nil
		}
		if err := nb.routes.BlockIP(ip); err != nil {
			nb.logger.Error("failed to block", "addr", ip, "error", err)
			return nil, err
		}
		outcome, added = BlockedNow, true
		return append(addrs, ip), nil
	})
	switch {
	case err == nil:
		return outcome, nil
	case added:
		nb.logger.Error("failed to record block, rolling back route", "addr", ip, "error", err)
		if rbErr := nb.routes.UnblockIP(ip); rbErr != nil {
			nb.logger.Error("rollback failed, route left in place", "addr", ip, "error", rbErr)
		}
		return Failed, fmt.Errorf("record %s in ledger: %w", ip, err)
	default:
		return Failed, err
	}
}

// UnblockIP removes the blackhole route for ip and, only once that
// succeeded, drops ip from the ledger. Both happen under the ledger lock.
func (nb *NetworkBlocker) UnblockIP(ip string) (Outcome, error) {
	if outcome, err := nb.guard(ip, "unblock"); err != nil {
		return outcome, err
	}

	var (
		outcome  = Failed
		routeErr error
	)
	err := nb.ledger.Locked(func(addrs []string) ([]string, error) {
		outcome, routeErr = nb.removeRoute(ip)
		if outcome != UnblockedNow {
			return addrs, nil
		}
		kept := addrs[:0]
		for _, a := range addrs {
			if a != ip {
				kept = append(kept, a)
			}
		}
		return kept, nil
	})
	if err != nil {
		if outcome == UnblockedNow {
			nb.logger.Error("route removed but ledger not updated", "addr", ip, "error", err)
			return Failed, fmt.Errorf("remove %s from ledger: %w", ip, err)
		}
		return Failed, err
	}
	return outcome, routeErr
}

// removeRoute is the kernel half of an unblock. Callers hold the ledger lock.
func (nb *NetworkBlocker) removeRoute(ip string) (Outcome, error) {
	if outcome, err := nb.guard(ip, "unblock"); err != nil {
		return outcome, err
	}
	if !nb.IsBlocked(ip) {
		return NotBlocked, nil
	}
	if err := nb.routes.UnblockIP(ip); err != nil {
		nb.logger.Error("failed to unblock", "addr", ip, "error", err)
		return Failed, err
	}
	return UnblockedNow, nil
}

// BlockLocation blocks every address of loc, one after another.
func (nb *NetworkBlocker) BlockLocation(loc relay.Location) LocationResult {
	nb.logger.Info("blocking location", "location", loc.Code, "name", loc.Name)
	res := LocationResult{Code: loc.Code}
	for _, ip := range loc.Addrs {
		outcome, err := nb.BlockIP(ip)
		if outcome == BlockedNow {
			res.Changed++
		}
		res.Results = append(res.Results, AddressResult{Addr: ip, Outcome: outcome, Err: err})
	}
	res.Status = nb.LocationStatus(loc)
	return res
}

// UnblockLocation unblocks every address of loc, one after another.
func (nb *NetworkBlocker) UnblockLocation(loc relay.Location) LocationResult {
	nb.logger.Info("unblocking location", "location", loc.Code, "name", loc.Name)
	res := LocationResult{Code: loc.Code}
	for _, ip := range loc.Addrs {
		outcome, err := nb.UnblockIP(ip)
		if outcome == UnblockedNow {
			res.Changed++
		}
		res.Results = append(res.Results, AddressResult{Addr: ip, Outcome: outcome, Err: err})
	}
	res.Status = nb.LocationStatus(loc)
	return res
}

// LocationStatus is BLOCKED only when every address has a blackhole route.
func (nb *NetworkBlocker) LocationStatus(loc relay.Location) Status {
	if len(loc.Addrs) == 0 {
		return StatusUnknown
	}
	for _, ip := range loc.Addrs {
		if !nb.IsBlocked(ip) {
			return StatusUnblocked
		}
	}
	return StatusBlocked
}

// UnblockAll unblocks every ledger address concurrently, then rewrites the
// ledger once so that it keeps only the addresses that failed or were
// invalid. The whole batch runs under the ledger lock. Results follow ledger
// order.
func (nb *NetworkBlocker) UnblockAll() ([]AddressResult, error) {
	var (
		results []AddressResult
		removed bool
	)
	err := nb.ledger.Locked(func(addrs []string) ([]string, error) {
		results = make([]AddressResult, len(addrs))
		var g errgroup.Group
		for i, ip := range addrs {
			i, ip := i, ip
			g.Go(func() error {
				outcome, err := nb.removeRoute(ip)
				results[i] = AddressResult{Addr: ip, Outcome: outcome, Err: err}
				return nil
			})
		}
		_ = g.Wait()
		removed = true

		var kept []string
		for _, r := range results {
			if r.Outcome != UnblockedNow && r.Outcome != NotBlocked {
				kept = append(kept, r.Addr)
			}
		}
		return kept, nil
	})
	switch {
	case err == nil:
		return results, nil
	case removed:
		return results, fmt.Errorf("rewrite ledger: %w", err)
	default:
		return nil, err
	}
}

// Restore reinstalls the blackhole route of every ledger address that lost
// it, e.g. after a reboot. It holds the ledger lock throughout, so it never
// re-adds an address that a concurrent unblock is dropping. The ledger is
// not modified.
func (nb *NetworkBlocker) Restore() ([]AddressResult, error) {
	var results []AddressResult
	err := nb.ledger.Locked(func(addrs []string) ([]string, error) {
		results = make([]AddressResult, 0, len(addrs))
		for _, ip := range addrs {
			if outcome, err := nb.guard(ip, "restore"); err != nil {
				results = append(results, AddressResult{Addr: ip, Outcome: outcome, Err: err})
				continue
			}
			if nb.IsBlocked(ip) {
				results = append(results, AddressResult{Addr: ip, Outcome: AlreadyBlocked})
				continue
			}
			if err := nb.routes.BlockIP(ip); err != nil {
				nb.logger.Error("failed to restore route", "addr", ip, "error", err)
				results = append(results, AddressResult{Addr: ip, Outcome: Failed, Err: err})
				continue
			}
			results = append(results, AddressResult{Addr: ip, Outcome: BlockedNow})
		}
		return addrs, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Audit lists ledger addresses with their current kernel state.
func (nb *NetworkBlocker) Audit() ([]AuditEntry, error) {
	addrs, err := nb.ledger.List()
	if err != nil {
		return nil, err
	}
	entries := make([]AuditEntry, 0, len(addrs))
	for _, ip := range addrs {
		entries = append(entries, AuditEntry{Addr: ip, Blocked: nb.IsBlocked(ip)})
	}
	return entries, nil
}
