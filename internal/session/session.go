// Package session holds the state behind one operator session: the current
// registry, the latest latency observations and block statuses, and the
// ranked view that row numbers refer to.
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/gajzzs/relayblock/internal/blocker"
	"github.com/gajzzs/relayblock/internal/feed"
	"github.com/gajzzs/relayblock/internal/probe"
	"github.com/gajzzs/relayblock/internal/relay"
)

type Session struct {
	source  feed.Source
	prober  *probe.Prober
	blocker *blocker.NetworkBlocker
	logger  *log.Logger

	mu           sync.Mutex
	registry     *relay.Registry
	observations map[string]probe.Observation
	statuses     map[string]blocker.Status
}

func New(source feed.Source, prober *probe.Prober, nb *blocker.NetworkBlocker, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		source:       source,
		prober:       prober,
		blocker:      nb,
		logger:       logger,
		registry:     relay.Build(nil, logger),
		observations: map[string]probe.Observation{},
		statuses:     map[string]blocker.Status{},
	}
}

// Blocker exposes the reconciler for ledger-wide operations.
func (s *Session) Blocker() *blocker.NetworkBlocker {
	return s.blocker
}

// Registry returns the registry built by the last successful Refresh.
func (s *Session) Registry() *relay.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

// Refresh fetches the relay feed and rebuilds the registry. Observations and
// statuses from the previous registry are discarded. On failure the
// previous registry stays in place.
func (s *Session) Refresh(ctx context.Context) error {
	entries, err := s.source.Entries(ctx)
	if err != nil {
		return fmt.Errorf("fetch relay config: %w", err)
	}
	reg := relay.Build(entries, s.logger)
	if reg.Len() == 0 {
		return feed.ErrNoLocations
	}

	s.mu.Lock()
	s.registry = reg
	s.observations = map[string]probe.Observation{}
	s.statuses = map[string]blocker.Status{}
	s.mu.Unlock()

	s.logger.Info("loaded relay locations", "count", reg.Len())
	return nil
}

// PingAll probes every location and overlays the results. onResult, if set,
// is called once per finished probe.
func (s *Session) PingAll(ctx context.Context, onResult func(code string, obs probe.Observation)) {
	reg := s.Registry()
	results := s.prober.ProbeAll(ctx, reg, onResult)

	s.mu.Lock()
	defer s.mu.Unlock()
	if reg != s.registry {
		// Registry was replaced while probing.
		return
	}
	for code, obs := range results {
		s.observations[code] = obs
	}
}

// RefreshStatuses re-reads the kernel state of every location.
func (s *Session) RefreshStatuses() {
	reg := s.Registry()
	statuses := make(map[string]blocker.Status, reg.Len())
	for _, loc := range reg.Locations() {
		statuses[loc.Code] = s.blocker.LocationStatus(loc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if reg == s.registry {
		s.statuses = statuses
	}
}

// View returns the ranked rows as currently known.
func (s *Session) View() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Rank(s.registry.Locations(), s.observations, s.statuses)
}

// LookupByRank returns the location on row n of View.
func (s *Session) LookupByRank(n int) (relay.Location, bool) {
	rows := s.View()
	if n < 1 || n > len(rows) {
		return relay.Location{}, false
	}
	return rows[n-1].Location, true
}

// Selection is what a list of selectors resolved to, as rows of the view
// they were resolved against.
type Selection struct {
	Rows []Row
	// ByRank is set when any selector was a row number. Row numbers follow
	// the latest probe, so such a selection may differ from a listing taken
	// earlier.
	ByRank bool
}

// Locations returns the selected locations in selector order.
func (sel Selection) Locations() []relay.Location {
	locs := make([]relay.Location, len(sel.Rows))
	for i, r := range sel.Rows {
		locs[i] = r.Location
	}
	return locs
}

// Resolve maps operator selectors to rows of the current view. A selector
// naming a location code selects that location, even when the code is
// numeric; any other integer is a row number. Duplicates are dropped.
func (s *Session) Resolve(selectors []string) (Selection, error) {
	rows := s.View()
	byCode := make(map[string]Row, len(rows))
	for _, r := range rows {
		byCode[r.Location.Code] = r
	}

	var (
		sel  Selection
		seen = map[string]bool{}
	)
	for _, raw := range selectors {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		row, ok := byCode[raw]
		if !ok {
			if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= len(rows) {
				row, ok = rows[n-1], true
				sel.ByRank = true
			}
		}
		if !ok {
			return Selection{}, fmt.Errorf("no location matches %q", raw)
		}
		if !seen[row.Location.Code] {
			seen[row.Location.Code] = true
			sel.Rows = append(sel.Rows, row)
		}
	}
	return sel, nil
}

// Block blocks each location and records its reconciled status.
func (s *Session) Block(locations []relay.Location) []blocker.LocationResult {
	return s.apply(locations, s.blocker.BlockLocation)
}

// Unblock unblocks each location and records its reconciled status.
func (s *Session) Unblock(locations []relay.Location) []blocker.LocationResult {
	return s.apply(locations, s.blocker.UnblockLocation)
}

func (s *Session) apply(locations []relay.Location, fn func(relay.Location) blocker.LocationResult) []blocker.LocationResult {
	results := make([]blocker.LocationResult, 0, len(locations))
	for _, loc := range locations {
		res := fn(loc)
		s.setStatus(loc.Code, res.Status)
		results = append(results, res)
	}
	return results
}

// BlockRanks is Block over rows of the current view.
func (s *Session) BlockRanks(ranks []int) ([]blocker.LocationResult, error) {
	locs, err := s.byRanks(ranks)
	if err != nil {
		return nil, err
	}
	return s.Block(locs), nil
}

// UnblockRanks is Unblock over rows of the current view.
func (s *Session) UnblockRanks(ranks []int) ([]blocker.LocationResult, error) {
	locs, err := s.byRanks(ranks)
	if err != nil {
		return nil, err
	}
	return s.Unblock(locs), nil
}

func (s *Session) byRanks(ranks []int) ([]relay.Location, error) {
	rows := s.View()
	var (
		out  []relay.Location
		seen = map[string]bool{}
	)
	for _, n := range ranks {
		if n < 1 || n > len(rows) {
			return nil, fmt.Errorf("no location matches %q", strconv.Itoa(n))
		}
		if loc := rows[n-1].Location; !seen[loc.Code] {
			seen[loc.Code] = true
			out = append(out, loc)
		}
	}
	return out, nil
}

// UnblockAll clears every ledger address and then re-reads all statuses.
func (s *Session) UnblockAll() ([]blocker.AddressResult, error) {
	results, err := s.blocker.UnblockAll()
	s.RefreshStatuses()
	return results, err
}

func (s *Session) setStatus(code string, st blocker.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[code] = st
}

// ParseRanks parses a comma-separated list of row numbers such as "1, 3,4".
func ParseRanks(input string) ([]int, error) {
	var ranks []int
	for _, field := range strings.Split(input, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid row number %q", field)
		}
		ranks = append(ranks, n)
	}
	if len(ranks) == 0 {
		return nil, fmt.Errorf("no row numbers given")
	}
	return ranks, nil
}
