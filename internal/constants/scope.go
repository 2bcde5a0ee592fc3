package constants

// UpdateMode selects how agents read neighbour state within a turn.
type UpdateMode string

const (
	// UpdateAsync visits agents in the turn's order and lets each one read
	// the live state left by agents visited earlier in the same turn.
	UpdateAsync UpdateMode = "async"

	// UpdateSync makes every agent read the turn-start snapshot. Withdrawal
	// intents are collected in a ledger and applied after all reads.
	UpdateSync UpdateMode = "sync"
)

// Valid returns true if the mode is a recognized value.
func (m UpdateMode) Valid() bool {
	switch m {
	case UpdateAsync, UpdateSync:
		return true
	}
	return false
}

// String returns the string representation of the mode.
func (m UpdateMode) String() string {
	return string(m)
}

// SegmentScope selects which runs feed the segment breakdown of a batch.
type SegmentScope string

const (
	// SegmentScopeLast computes segment statistics from the final run only.
	SegmentScopeLast SegmentScope = "last"

	// SegmentScopeAll averages segment statistics across every run.
	SegmentScopeAll SegmentScope = "all"
)

// Valid returns true if the scope is a recognized value.
func (s SegmentScope) Valid() bool {
	switch s {
	case SegmentScopeLast, SegmentScopeAll:
		return true
	}
	return false
}

// String returns the string representation of the scope.
func (s SegmentScope) String() string {
	return string(s)
}

// Report store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)
