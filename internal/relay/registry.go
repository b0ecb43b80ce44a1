// Package relay holds relay locations and the address safety rules that
// decide which of their addresses may ever be blackholed.
package relay

import (
	"errors"

	"github.com/charmbracelet/log"
)

// Entry is one location as read from the discovery feed, before validation.
type Entry struct {
	Code  string
	Name  string
	Addrs []string
}

// Location is a validated relay location. Addrs is never empty.
type Location struct {
	Code  string
	Name  string
	Addrs []string
}

// FirstAddr returns the address used for latency probes.
func (l Location) FirstAddr() (string, bool) {
	if len(l.Addrs) == 0 {
		return "", false
	}
	return l.Addrs[0], true
}

// Registry is the immutable set of locations for one discovery refresh,
// kept in feed order.
type Registry struct {
	locations []Location
	byCode    map[string]int
}

// Build validates every entry. Unsafe addresses are dropped and logged,
// duplicate addresses collapse, and locations left without addresses are
// omitted. A repeated code replaces the earlier entry in place.
func Build(entries []Entry, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}

	r := &Registry{byCode: make(map[string]int, len(entries))}
	for _, e := range entries {
		addrs := make([]string, 0, len(e.Addrs))
		seen := make(map[string]struct{}, len(e.Addrs))
		for _, addr := range e.Addrs {
			if err := CheckAddress(addr); err != nil {
				if errors.Is(err, ErrSensitive) {
					logger.Error("skipping private/localhost address", "location", e.Code, "addr", addr)
				} else {
					logger.Warn("skipping malformed address", "location", e.Code, "addr", addr)
				}
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			addrs = append(addrs, addr)
		}

		idx, exists := r.byCode[e.Code]
		if len(addrs) == 0 {
			if exists {
				r.remove(idx)
			}
			logger.Debug("dropping location without usable addresses", "location", e.Code)
			continue
		}

		loc := Location{Code: e.Code, Name: e.Name, Addrs: addrs}
		if exists {
			r.locations[idx] = loc
			continue
		}
		r.byCode[e.Code] = len(r.locations)
		r.locations = append(r.locations, loc)
	}
	return r
}

func (r *Registry) remove(idx int) {
	delete(r.byCode, r.locations[idx].Code)
	r.locations = append(r.locations[:idx], r.locations[idx+1:]...)
	for i := idx; i < len(r.locations); i++ {
		r.byCode[r.locations[i].Code] = i
	}
}

// Len returns the number of locations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.locations)
}

// Locations returns the locations in registry order.
func (r *Registry) Locations() []Location {
	if r == nil {
		return nil
	}
	out := make([]Location, len(r.locations))
	copy(out, r.locations)
	return out
}

// Lookup finds a location by code.
func (r *Registry) Lookup(code string) (Location, bool) {
	if r == nil {
		return Location{}, false
	}
	idx, ok := r.byCode[code]
	if !ok {
		return Location{}, false
	}
	return r.locations[idx], true
}
