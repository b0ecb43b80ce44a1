package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const iputilsOutput = `PING 155.133.226.10 (155.133.226.10) 56(84) bytes of data.
64 bytes from 155.133.226.10: icmp_seq=1 ttl=55 time=21.3 ms
64 bytes from 155.133.226.10: icmp_seq=2 ttl=55 time=22.1 ms

--- 155.133.226.10 ping statistics ---
2 packets transmitted, 2 received, 0% packet loss, time 1001ms
rtt min/avg/max/mdev = 21.312/21.706/22.100/0.394 ms
`

const busyboxOutput = `round-trip min/avg/max = 9.100/9.550/10.000 ms`

func TestParseAverage(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want time.Duration
		ok   bool
	}{
		{"iputils", iputilsOutput, 21706 * time.Microsecond, true},
		{"busybox", busyboxOutput, 9550 * time.Microsecond, true},
		{"lost", "2 packets transmitted, 0 received, 100% packet loss", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseAverage([]byte(tc.out))
		if ok != tc.ok || got.Round(time.Microsecond) != tc.want {
			t.Errorf("%s: parseAverage = %v, %v; want %v, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExecPingerArguments(t *testing.T) {
	var argv []string
	p := &ExecPinger{output: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		argv = append([]string{name}, args...)
		return []byte(iputilsOutput), nil
	}}

	rtts, err := p.Ping(context.Background(), "155.133.226.10", 2, 1500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ping", "-c", "2", "-W", "2", "155.133.226.10"}, argv); diff != "" {
		t.Fatal(diff)
	}
	if reduce(rtts) != Latency(22) {
		t.Fatalf("reduce(%v) = %v, want 22ms", rtts, reduce(rtts))
	}
}

func TestExecPingerMissingBinary(t *testing.T) {
	missing := errors.New(`exec: "ping": executable file not found in $PATH`)
	p := &ExecPinger{output: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, missing
	}}
	if _, err := p.Ping(context.Background(), "1.1.1.1", 2, time.Second); !errors.Is(err, missing) {
		t.Fatalf("Ping error = %v, want %v", err, missing)
	}
}

func TestNewPinger(t *testing.T) {
	if _, err := NewPinger("carrier-pigeon"); err == nil {
		t.Fatal("expected error for unknown method")
	}
	pinger, err := NewPinger(MethodExec)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pinger.(*ExecPinger); !ok {
		t.Fatalf("NewPinger(exec) = %T", pinger)
	}
}
