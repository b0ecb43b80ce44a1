package probe

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/sys/execabs"
)

// avgPattern matches the iputils/busybox summary, e.g.
// "rtt min/avg/max/mdev = 10.1/12.5/15.0/1.2 ms".
var avgPattern = regexp.MustCompile(`avg[^=]*=\s*[\d.]+/([\d.]+)`)

// ExecPinger runs the system ping binary and parses its summary line.
type ExecPinger struct {
	output func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewExecPinger() *ExecPinger {
	return &ExecPinger{output: commandOutput}
}

func commandOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return execabs.CommandContext(ctx, name, args...).Output()
}

func (p *ExecPinger) Ping(ctx context.Context, addr string, count int, timeout time.Duration) ([]time.Duration, error) {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	out, err := p.output(ctx, "ping", "-c", strconv.Itoa(count), "-W", strconv.Itoa(secs), addr)
	if avg, ok := parseAverage(out); ok {
		return []time.Duration{avg}, nil
	}
	if err != nil {
		// ping exits non-zero when nothing answered; that is a timeout, not a failure.
		var exitErr *execabs.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, err
	}
	return nil, nil
}

func parseAverage(out []byte) (time.Duration, bool) {
	m := avgPattern.FindSubmatch(out)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}
