package probe

import "strconv"

type kind uint8

const (
	kindNoData kind = iota
	kindTimeout
	kindLatency
)

// Observation is the reduced result of probing one location: a latency in
// whole milliseconds, a timeout, or no data. The zero value is NoData.
type Observation struct {
	kind   kind
	millis int
}

var (
	// NoData means the location had nothing to probe.
	NoData = Observation{kind: kindNoData}
	// Timeout means a probe was sent but nothing came back in time.
	Timeout = Observation{kind: kindTimeout}
)

// Latency returns a measured observation.
func Latency(ms int) Observation {
	return Observation{kind: kindLatency, millis: ms}
}

// Millis returns the latency and whether one was measured.
func (o Observation) Millis() (int, bool) {
	return o.millis, o.kind == kindLatency
}

func (o Observation) IsTimeout() bool { return o.kind == kindTimeout }

func (o Observation) IsNoData() bool { return o.kind == kindNoData }

// Rank orders observations: any latency, then Timeout, then NoData.
// It returns the tier and the latency inside the tier.
func (o Observation) Rank() (tier int, ms int) {
	switch o.kind {
	case kindLatency:
		return 0, o.millis
	case kindTimeout:
		return 1, 0
	default:
		return 2, 0
	}
}

func (o Observation) String() string {
	switch o.kind {
	case kindLatency:
		return strconv.Itoa(o.millis) + "ms"
	case kindTimeout:
		return "TIMEOUT"
	default:
		return "N/A"
	}
}
