package platform

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHasBlackhole(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want bool
	}{
		{"empty", "", false},
		{"blackhole entry", "blackhole 155.133.226.10 \n", true},
		{"cidr form", "blackhole 155.133.226.10/32 proto static\n", true},
		{"unicast route", "155.133.226.10 via 192.168.1.1 dev eth0\n", false},
		{"other address", "blackhole 155.133.226.11\n", false},
	}
	for _, tc := range cases {
		if got := hasBlackhole([]byte(tc.out), "155.133.226.10"); got != tc.want {
			t.Errorf("%s: hasBlackhole = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIPRouteManagerCommands(t *testing.T) {
	var calls [][]string
	m := &IPRouteManager{run: func(args ...string) ([]byte, error) {
		calls = append(calls, args)
		if args[0] == "route" && args[1] == "show" {
			return []byte("blackhole 162.254.197.36\n"), nil
		}
		return nil, nil
	}}

	blocked, err := m.IsBlocked("162.254.197.36")
	if err != nil || !blocked {
		t.Fatalf("IsBlocked = %v, %v; want true, nil", blocked, err)
	}
	if err := m.BlockIP("162.254.197.36"); err != nil {
		t.Fatal(err)
	}
	if err := m.UnblockIP("162.254.197.36"); err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"route", "show", "162.254.197.36"},
		{"route", "add", "blackhole", "162.254.197.36"},
		{"route", "del", "blackhole", "162.254.197.36"},
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Fatal(diff)
	}
}

func TestIPRouteManagerExitStatus(t *testing.T) {
	failure := errors.New("exit status 2")
	m := &IPRouteManager{run: func(args ...string) ([]byte, error) {
		return []byte("RTNETLINK answers: File exists"), failure
	}}

	if err := m.BlockIP("162.254.197.36"); !errors.Is(err, failure) {
		t.Fatalf("BlockIP error = %v, want wrapped %v", err, failure)
	}
	if blocked, err := m.IsBlocked("162.254.197.36"); err == nil || blocked {
		t.Fatalf("IsBlocked = %v, %v; want false and an error", blocked, err)
	}
}

func TestNewNetworkManagerUnknownBackend(t *testing.T) {
	if _, err := NewNetworkManager("nftables"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	nm, err := NewNetworkManager(BackendIPRoute)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := nm.(*IPRouteManager); !ok {
		t.Fatalf("backend %q returned %T", BackendIPRoute, nm)
	}
}
