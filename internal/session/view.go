package session

import (
	"sort"

	"github.com/gajzzs/relayblock/internal/blocker"
	"github.com/gajzzs/relayblock/internal/probe"
	"github.com/gajzzs/relayblock/internal/relay"
)

// Row is one line of the ranked view. Rank is 1-indexed.
type Row struct {
	Rank        int
	Location    relay.Location
	Observation probe.Observation
	Status      blocker.Status
}

// Rank orders locations by latency: numeric values ascending, then timeouts,
// then locations without data. Ties keep registry order.
func Rank(locations []relay.Location, observations map[string]probe.Observation, statuses map[string]blocker.Status) []Row {
	rows := make([]Row, len(locations))
	for i, loc := range locations {
		rows[i] = Row{
			Location:    loc,
			Observation: observations[loc.Code],
			Status:      statuses[loc.Code],
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ti, mi := rows[i].Observation.Rank()
		tj, mj := rows[j].Observation.Rank()
		if ti != tj {
			return ti < tj
		}
		return mi < mj
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
