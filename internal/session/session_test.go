package session

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/gajzzs/relayblock/internal/blocker"
	"github.com/gajzzs/relayblock/internal/feed"
	"github.com/gajzzs/relayblock/internal/ledger"
	"github.com/gajzzs/relayblock/internal/probe"
	"github.com/gajzzs/relayblock/internal/relay"
)

// latencyPinger answers from a fixed table; unknown addresses time out.
type latencyPinger map[string]time.Duration

func (p latencyPinger) Ping(_ context.Context, addr string, _ int, _ time.Duration) ([]time.Duration, error) {
	rtt, ok := p[addr]
	if !ok {
		return nil, errors.New("no reply")
	}
	return []time.Duration{rtt}, nil
}

type memRoutes struct {
	mu sync.Mutex
	on map[string]bool
}

func (m *memRoutes) IsBlocked(ip string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on[ip], nil
}

func (m *memRoutes) BlockIP(ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on[ip] = true
	return nil
}

func (m *memRoutes) UnblockIP(ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.on, ip)
	return nil
}

type failingSource struct{}

func (failingSource) Entries(context.Context) ([]relay.Entry, error) {
	return nil, errors.New("connection refused")
}

var entries = feed.StaticSource{
	{Code: "ams", Name: "Amsterdam", Addrs: []string{"155.133.248.10"}},
	{Code: "fra", Name: "Frankfurt", Addrs: []string{"155.133.226.10", "155.133.226.11"}},
	{Code: "lan", Name: "Private", Addrs: []string{"192.168.1.10"}},
	{Code: "sto", Name: "Stockholm", Addrs: []string{"185.25.180.10"}},
	{Code: "waw", Name: "Warsaw", Addrs: []string{"155.133.230.10"}},
}

func newTestSession(t *testing.T, source feed.Source) (*Session, *memRoutes) {
	t.Helper()
	logger := log.NewWithOptions(&bytes.Buffer{}, log.Options{})
	l, err := ledger.Open(filepath.Join(t.TempDir(), "blocked_ips.txt"))
	if err != nil {
		t.Fatal(err)
	}
	routes := &memRoutes{on: map[string]bool{}}
	pinger := latencyPinger{
		"155.133.248.10": 40 * time.Millisecond,
		"155.133.226.10": 12 * time.Millisecond,
		"155.133.230.10": 25 * time.Millisecond,
	}
	prober := probe.New(pinger, probe.Options{Count: 1, Timeout: 50 * time.Millisecond, Logger: logger})
	return New(source, prober, blocker.NewNetworkBlocker(routes, l, logger), logger), routes
}

func codes(rows []Row) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.Location.Code)
	}
	return out
}

func TestRankOrdering(t *testing.T) {
	locs := []relay.Location{
		{Code: "X", Addrs: []string{"1.1.1.1"}},
		{Code: "Y", Addrs: []string{"2.2.2.2"}},
		{Code: "Z", Addrs: []string{"3.3.3.3"}},
		{Code: "W", Addrs: []string{"4.4.4.4"}},
	}
	obs := map[string]probe.Observation{
		"X": probe.Latency(10),
		"Y": probe.Timeout,
		"Z": probe.NoData,
		"W": probe.Latency(5),
	}

	rows := Rank(locs, obs, nil)
	if diff := cmp.Diff([]string{"W", "X", "Y", "Z"}, codes(rows)); diff != "" {
		t.Fatal(diff)
	}
	for i, r := range rows {
		if r.Rank != i+1 {
			t.Errorf("row %d has rank %d", i, r.Rank)
		}
		if r.Status != blocker.StatusUnknown {
			t.Errorf("row %s status = %v, want UNKNOWN", r.Location.Code, r.Status)
		}
	}
}

func TestRankIsStableForTies(t *testing.T) {
	locs := []relay.Location{{Code: "a"}, {Code: "b"}, {Code: "c"}, {Code: "d"}}
	obs := map[string]probe.Observation{
		"a": probe.Timeout,
		"b": probe.Latency(7),
		"c": probe.Timeout,
		"d": probe.Latency(7),
	}
	if diff := cmp.Diff([]string{"b", "d", "a", "c"}, codes(Rank(locs, obs, nil))); diff != "" {
		t.Fatal(diff)
	}
}

func TestLookupByRankFollowsView(t *testing.T) {
	s, _ := newTestSession(t, entries)
	ctx := context.Background()
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	// Before probing every location has no data, so registry order applies.
	if loc, ok := s.LookupByRank(1); !ok || loc.Code != "ams" {
		t.Fatalf("LookupByRank(1) before ping = %+v, %v", loc, ok)
	}

	var seen []string
	s.PingAll(ctx, func(code string, _ probe.Observation) { seen = append(seen, code) })
	if len(seen) != 4 {
		t.Fatalf("callback ran %d times, want 4", len(seen))
	}

	if diff := cmp.Diff([]string{"fra", "waw", "ams", "sto"}, codes(s.View())); diff != "" {
		t.Fatal(diff)
	}
	if loc, ok := s.LookupByRank(1); !ok || loc.Code != "fra" {
		t.Fatalf("LookupByRank(1) = %+v, %v", loc, ok)
	}
	if loc, ok := s.LookupByRank(4); !ok || loc.Code != "sto" {
		t.Fatalf("LookupByRank(4) = %+v, %v", loc, ok)
	}
	for _, n := range []int{0, -1, 5} {
		if _, ok := s.LookupByRank(n); ok {
			t.Errorf("LookupByRank(%d) found a location", n)
		}
	}
}

func TestRefreshFailureKeepsRegistry(t *testing.T) {
	s, _ := newTestSession(t, entries)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.source = failingSource{}
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh succeeded with a failing source")
	}
	if got := s.Registry().Len(); got != 4 {
		t.Fatalf("registry has %d locations, want 4", got)
	}
}

func TestRefreshWithoutUsableLocations(t *testing.T) {
	s, _ := newTestSession(t, feed.StaticSource{{Code: "lan", Addrs: []string{"10.0.0.1"}}})
	if err := s.Refresh(context.Background()); !errors.Is(err, feed.ErrNoLocations) {
		t.Fatalf("Refresh = %v, want ErrNoLocations", err)
	}
}

func TestResolve(t *testing.T) {
	s, _ := newTestSession(t, entries)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	sel, err := s.Resolve([]string{"2", "sto", " fra ", "2"})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, loc := range sel.Locations() {
		got = append(got, loc.Code)
	}
	if diff := cmp.Diff([]string{"fra", "sto"}, got); diff != "" {
		t.Fatal(diff)
	}
	if !sel.ByRank {
		t.Fatal("selection by row number not flagged")
	}
	if sel, _ := s.Resolve([]string{"sto", "ams"}); sel.ByRank {
		t.Fatal("selection by code flagged as by row number")
	}

	for _, bad := range []string{"lan", "9", "nope"} {
		if _, err := s.Resolve([]string{bad}); err == nil {
			t.Errorf("Resolve(%q) succeeded", bad)
		}
	}
}

func TestResolvePrefersNumericCodes(t *testing.T) {
	s, _ := newTestSession(t, feed.StaticSource{
		{Code: "ams", Name: "Amsterdam", Addrs: []string{"155.133.248.10"}},
		{Code: "123", Name: "Numbered", Addrs: []string{"155.133.249.10"}},
		{Code: "sto", Name: "Stockholm", Addrs: []string{"185.25.180.10"}},
	})
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	sel, err := s.Resolve([]string{"123"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Rows) != 1 || sel.Rows[0].Location.Code != "123" || sel.ByRank {
		t.Fatalf("Resolve(123) = %+v", sel)
	}

	// Integers that are not codes are still row numbers.
	sel, err = s.Resolve([]string{"2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Rows) != 1 || sel.Rows[0].Location.Code != "123" || !sel.ByRank {
		t.Fatalf("Resolve(2) = %+v", sel)
	}
}

func TestBlockAndUnblockRanks(t *testing.T) {
	s, routes := newTestSession(t, entries)
	ctx := context.Background()
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	s.PingAll(ctx, nil)

	results, err := s.BlockRanks([]int{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Code != "fra" || results[0].Changed != 2 {
		t.Fatalf("BlockRanks = %+v", results)
	}
	if !routes.on["155.133.226.10"] || !routes.on["155.133.226.11"] {
		t.Fatalf("routes = %v", routes.on)
	}
	if row := s.View()[0]; row.Status != blocker.StatusBlocked {
		t.Fatalf("fra status = %v, want BLOCKED", row.Status)
	}

	if _, err := s.UnblockRanks([]int{1}); err != nil {
		t.Fatal(err)
	}
	if row := s.View()[0]; row.Status != blocker.StatusUnblocked {
		t.Fatalf("fra status = %v, want UNBLOCKED", row.Status)
	}

	if _, err := s.BlockRanks([]int{7}); err == nil {
		t.Fatal("BlockRanks accepted an out-of-range row")
	}
}

func TestUnblockAllRefreshesStatuses(t *testing.T) {
	s, routes := newTestSession(t, entries)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	sel, err := s.Resolve([]string{"ams", "waw"})
	if err != nil {
		t.Fatal(err)
	}
	s.Block(sel.Locations())

	results, err := s.UnblockAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || len(routes.on) != 0 {
		t.Fatalf("UnblockAll = %+v, routes %v", results, routes.on)
	}
	for _, row := range s.View() {
		if row.Status != blocker.StatusUnblocked {
			t.Errorf("%s status = %v after UnblockAll", row.Location.Code, row.Status)
		}
	}
}

func TestParseRanks(t *testing.T) {
	got, err := ParseRanks(" 1, 3,,4 ")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 3, 4}, got); diff != "" {
		t.Fatal(diff)
	}
	for _, bad := range []string{"", " , ", "1,a", "0", "-2"} {
		if _, err := ParseRanks(bad); err == nil {
			t.Errorf("ParseRanks(%q) succeeded", bad)
		}
	}
}
