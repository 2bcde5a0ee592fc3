package simulation

// Scenario defines a complete single-run experiment.
type Scenario struct {
	Name   string
	Params Params

	// Seed and Stream select the run's random stream.
	Seed   uint64
	Stream uint64

	// Edges, when non-nil, replaces the generated network with an explicit
	// graph over Params.Nodes nodes. Use this for hand-built topologies such
	// as isolated agents.
	Edges [][2]int
}

// ScenarioResult captures every turn of a scenario run.
type ScenarioResult struct {
	Name string

	// Initial is the state before the first turn.
	Initial Snapshot

	// Turns holds one snapshot per executed turn, in order.
	Turns []Snapshot

	// Run is the engine's own summary of the trajectory.
	Run *RunResult
}

// Final returns the last captured snapshot, or the initial one when no turn
// was executed.
func (r ScenarioResult) Final() Snapshot {
	if len(r.Turns) == 0 {
		return r.Initial
	}
	return r.Turns[len(r.Turns)-1]
}

// States returns the initial snapshot followed by every turn snapshot.
func (r ScenarioResult) States() []Snapshot {
	out := make([]Snapshot, 0, len(r.Turns)+1)
	out = append(out, r.Initial)
	return append(out, r.Turns...)
}
