package relay

import (
	"errors"
	"testing"
)

func TestIsWellFormed(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"155.133.226.10", true},
		{"0.0.0.0", true},
		{"255.255.255.255", true},
		{"999.1.1.1", false},
		{"1.2.3", false},
		{"a.b.c.d", false},
		{"1.2.3.4.5", false},
		{" 1.2.3.4", false},
		{"1.2.3.4x", false},
		{"01.2.3.4", false},
		{"::1", false},
		{"::ffff:1.2.3.4", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsWellFormed(tc.addr); got != tc.want {
			t.Errorf("IsWellFormed(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestIsSensitive(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.255.0.9", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.20.5.5", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"172.15.255.255", false},
		{"192.168.1.1", true},
		{"192.169.1.1", false},
		{"169.254.1.1", true},
		{"169.253.1.1", false},
		{"155.133.226.10", false},
		{"not-an-ip", false},
	}
	for _, tc := range cases {
		if got := IsSensitive(tc.addr); got != tc.want {
			t.Errorf("IsSensitive(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestCheckAddress(t *testing.T) {
	if err := CheckAddress("155.133.226.10"); err != nil {
		t.Fatalf("CheckAddress(public) = %v, want nil", err)
	}
	if err := CheckAddress("1.2.3"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("CheckAddress(1.2.3) = %v, want ErrMalformed", err)
	}
	if err := CheckAddress("192.168.1.1"); !errors.Is(err, ErrSensitive) {
		t.Fatalf("CheckAddress(192.168.1.1) = %v, want ErrSensitive", err)
	}
}
