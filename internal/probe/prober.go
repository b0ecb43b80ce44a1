// Package probe measures round-trip latency to relay locations.
package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/gajzzs/relayblock/internal/relay"
)

const (
	DefaultCount   = 2
	DefaultTimeout = time.Second
)

// Pinger sends count echo requests to addr, waiting at most timeout for
// each reply, and returns the round-trip times of the replies received.
// No replies with a nil error means the target did not answer.
type Pinger interface {
	Ping(ctx context.Context, addr string, count int, timeout time.Duration) ([]time.Duration, error)
}

// Options configures a Prober.
type Options struct {
	Count   int
	Timeout time.Duration
	Logger  *log.Logger
}

// Prober reduces pings of a location's first address to an Observation.
type Prober struct {
	pinger  Pinger
	count   int
	timeout time.Duration
	logger  *log.Logger
}

// New creates a Prober. Zero options fall back to two probes of one second.
func New(pinger Pinger, opts Options) *Prober {
	p := &Prober{
		pinger:  pinger,
		count:   opts.Count,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
	if p.count <= 0 {
		p.count = DefaultCount
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p
}

// Probe measures a single location. Only the first address is probed.
func (p *Prober) Probe(ctx context.Context, loc relay.Location) (obs Observation) {
	addr, ok := loc.FirstAddr()
	if !ok {
		return NoData
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("probe panicked", "location", loc.Code, "addr", addr, "panic", r)
			obs = Timeout
		}
	}()

	// One spare timeout on top of the per-reply budget covers process startup.
	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.count+1)*p.timeout)
	defer cancel()

	rtts, err := p.pinger.Ping(ctx, addr, p.count, p.timeout)
	if err != nil {
		p.logger.Debug("probe failed", "location", loc.Code, "addr", addr, "error", err)
		return Timeout
	}
	return reduce(rtts)
}

// ProbeAll probes every location of reg concurrently, one goroutine per
// location, and returns once all of them are done. onResult, when not nil,
// is called once per location as results arrive; calls are serialized.
func (p *Prober) ProbeAll(ctx context.Context, reg *relay.Registry, onResult func(code string, obs Observation)) map[string]Observation {
	locations := reg.Locations()
	results := make(map[string]Observation, len(locations))

	var mu sync.Mutex
	var g errgroup.Group
	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			obs := p.Probe(ctx, loc)
			mu.Lock()
			defer mu.Unlock()
			results[loc.Code] = obs
			if onResult != nil {
				onResult(loc.Code, obs)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func reduce(rtts []time.Duration) Observation {
	if len(rtts) == 0 {
		return Timeout
	}
	data := make(stats.Float64Data, 0, len(rtts))
	for _, rtt := range rtts {
		data = append(data, float64(rtt)/float64(time.Millisecond))
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return Timeout
	}
	rounded, err := stats.Round(mean, 0)
	if err != nil {
		return Timeout
	}
	return Latency(int(rounded))
}

// NewPinger returns the pinger for a configured method name.
func NewPinger(method string) (Pinger, error) {
	switch method {
	case "", MethodICMP:
		return NewICMPPinger(), nil
	case MethodExec:
		return NewExecPinger(), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", method)
	}
}
