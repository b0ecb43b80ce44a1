package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/gajzzs/relayblock/internal/blocker"
	"github.com/gajzzs/relayblock/internal/probe"
	"github.com/gajzzs/relayblock/internal/session"
)

const nameWidth = 28

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// pingCell pads before colouring so escape codes do not break alignment.
func pingCell(obs probe.Observation) string {
	text := fmt.Sprintf("%-8s", obs)
	if obs.IsTimeout() {
		return red(text)
	}
	ms, ok := obs.Millis()
	switch {
	case !ok:
		return text
	case ms < 50:
		return green(text)
	case ms < 100:
		return yellow(text)
	default:
		return red(text)
	}
}

func paintStatus(st blocker.Status, text string) string {
	switch st {
	case blocker.StatusBlocked:
		return red(text)
	case blocker.StatusUnblocked:
		return green(text)
	default:
		return text
	}
}

// RenderTable prints the ranked view.
func RenderTable(w io.Writer, rows []session.Row) {
	fmt.Fprintln(w, cyan(fmt.Sprintf("%-4s %-6s %-*s %-8s %s", "#", "CODE", nameWidth, "LOCATION", "PING", "STATUS")))
	fmt.Fprintln(w, strings.Repeat("-", 4+1+6+1+nameWidth+1+8+1+9))
	for _, row := range rows {
		fmt.Fprintf(w, "%-4d %-6s %-*s %s %s\n",
			row.Rank,
			row.Location.Code,
			nameWidth, truncate(row.Location.Name, nameWidth),
			pingCell(row.Observation),
			paintStatus(row.Status, row.Status.String()),
		)
	}
}

// RenderResults summarizes block or unblock results per location and lists
// addresses that did not change as asked.
func RenderResults(w io.Writer, verb string, results []blocker.LocationResult) {
	for _, res := range results {
		fmt.Fprintf(w, "%s %s: %d address(es) changed, now %s\n",
			verb, res.Code, res.Changed, paintStatus(res.Status, res.Status.String()))
		for _, r := range res.Results {
			switch r.Outcome {
			case blocker.Failed, blocker.Refused, blocker.Skipped:
				fmt.Fprintf(w, "  %s %s: %v\n", red(r.Outcome), r.Addr, r.Err)
			}
		}
	}
}

// RenderAddressResults prints one line per address, in order.
func RenderAddressResults(w io.Writer, results []blocker.AddressResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No blocked addresses recorded.")
		return
	}
	for _, r := range results {
		line := fmt.Sprintf("%-16s %s", r.Addr, r.Outcome)
		if r.Err != nil {
			line = red(line + ": " + r.Err.Error())
		}
		fmt.Fprintln(w, line)
	}
}

// RenderAudit prints every ledger address with its live route state.
func RenderAudit(w io.Writer, entries []blocker.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No blocked addresses recorded.")
		return
	}
	var missing int
	for _, e := range entries {
		state := red("BLOCKED")
		if !e.Blocked {
			state = yellow("MISSING")
			missing++
		}
		fmt.Fprintf(w, "%-16s %s\n", e.Addr, state)
	}
	fmt.Fprintf(w, "%d recorded, %d missing a route\n", len(entries), missing)
}
