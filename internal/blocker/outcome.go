package blocker

// Outcome is the per-address result of a block or unblock attempt.
type Outcome int

const (
	// Failed means the kernel or the ledger rejected the change.
	Failed Outcome = iota
	BlockedNow
	AlreadyBlocked
	UnblockedNow
	NotBlocked
	// Skipped means the address was malformed and nothing was attempted.
	Skipped
	// Refused means the address is loopback, private or link-local.
	Refused
)

func (o Outcome) String() string {
	switch o {
	case BlockedNow:
		return "blocked"
	case AlreadyBlocked:
		return "already blocked"
	case UnblockedNow:
		return "unblocked"
	case NotBlocked:
		return "not blocked"
	case Skipped:
		return "skipped"
	case Refused:
		return "refused"
	default:
		return "failed"
	}
}

// Status is the reconciled block state of a whole location.
type Status int

const (
	StatusUnknown Status = iota
	StatusUnblocked
	StatusBlocked
)

func (s Status) String() string {
	switch s {
	case StatusBlocked:
		return "BLOCKED"
	case StatusUnblocked:
		return "UNBLOCKED"
	default:
		return "UNKNOWN"
	}
}

// AddressResult pairs an address with what happened to it.
type AddressResult struct {
	Addr    string
	Outcome Outcome
	Err     error
}

// LocationResult summarizes a block or unblock of one location.
type LocationResult struct {
	Code    string
	Results []AddressResult
	// Changed counts addresses newly blocked or newly unblocked.
	Changed int
	// Status is re-read from the kernel after all addresses were processed.
	Status Status
}

// AuditEntry reports whether a ledger address still has its blackhole route.
type AuditEntry struct {
	Addr    string
	Blocked bool
}
