package service

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/kardianos/service"

	"github.com/gajzzs/relayblock/internal/blocker"
	"github.com/gajzzs/relayblock/internal/ledger"
)

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

func (m *memRoutes) blocked(ip string) bool {
	ok, _ := m.IsBlocked(ip)
	return ok
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDaemonRestoresRoutes(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "blocked_ips.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Replace([]string{"155.133.226.10", "146.66.152.10"}); err != nil {
		t.Fatal(err)
	}
	routes := &memRoutes{on: map[string]bool{}}
	logger := log.NewWithOptions(&bytes.Buffer{}, log.Options{})
	d := NewDaemon(blocker.NewNetworkBlocker(routes, l, logger), 10*time.Millisecond, logger)

	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err == nil {
		t.Fatal("second Start succeeded")
	}
	waitFor(t, func() bool { return routes.blocked("155.133.226.10") && routes.blocked("146.66.152.10") })

	// A flushed route comes back on the next tick.
	if err := routes.UnblockIP("146.66.152.10"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return routes.blocked("146.66.152.10") })

	if err := d.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(); err == nil {
		t.Fatal("second Stop succeeded")
	}
	if !routes.blocked("155.133.226.10") {
		t.Fatal("Stop removed routes")
	}
}

func TestDaemonRejectsZeroInterval(t *testing.T) {
	d := NewDaemon(nil, 0, log.NewWithOptions(&bytes.Buffer{}, log.Options{}))
	if err := d.Start(); err == nil {
		t.Fatal("Start accepted a zero interval")
	}
}

func TestStatusName(t *testing.T) {
	tests := map[service.Status]string{
		service.StatusRunning: "Running",
		service.StatusStopped: "Stopped",
		service.StatusUnknown: "Unknown",
		service.Status(42):    "Status(42)",
	}
	for in, want := range tests {
		if got := statusName(in); got != want {
			t.Errorf("statusName(%d) = %q, want %q", in, got, want)
		}
	}
}
