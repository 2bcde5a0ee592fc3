package simulation

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/bankrun/internal/network"
)

// Runner executes scenarios against the real engine, failing the test on
// any construction or step error.
type Runner struct {
	t *testing.T
}

// NewRunner creates a scenario runner bound to t.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{t: t}
}

// Run builds the scenario's engine and steps it to termination, capturing a
// snapshot after every turn.
func (r *Runner) Run(scenario Scenario) ScenarioResult {
	r.t.Helper()

	engine := r.Engine(scenario)
	result := ScenarioResult{
		Name:    scenario.Name,
		Initial: engine.Snapshot(),
	}

	run, err := engine.Run(context.Background(), func(TurnRecord) {
		result.Turns = append(result.Turns, engine.Snapshot())
	})
	if err != nil {
		r.t.Fatalf("%s: Run: %v", scenario.Name, err)
	}
	result.Run = run
	return result
}

// Engine builds the scenario's engine without running it.
func (r *Runner) Engine(scenario Scenario) *Engine {
	r.t.Helper()

	if scenario.Edges == nil {
		e, err := New(scenario.Params, scenario.Seed, scenario.Stream)
		if err != nil {
			r.t.Fatalf("%s: New: %v", scenario.Name, err)
		}
		return e
	}

	g, err := network.FromEdges(scenario.Params.Nodes, scenario.Edges)
	if err != nil {
		r.t.Fatalf("%s: FromEdges: %v", scenario.Name, err)
	}
	e, err := NewWithGraph(scenario.Params, g, rand.New(rand.NewPCG(scenario.Seed, scenario.Stream)))
	if err != nil {
		r.t.Fatalf("%s: NewWithGraph: %v", scenario.Name, err)
	}
	return e
}
