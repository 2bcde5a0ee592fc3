// Package simulation drives a single bank-run trajectory.
//
// An Engine owns one network, one agent population and one bank. Each call
// to Step executes one turn: agents are visited in a fresh random order,
// draw the news-diffusion coin, read their neighbourhood and the bank's
// health, and withdraw progressively toward their panic target. The engine
// exposes a read-only Snapshot after every step and terminates when the
// bank runs out of cash or the turn ceiling is reached.
//
// The package also ships a scenario harness for tests: Scenarios describe a
// parameter set and seed (optionally an explicit graph), a Runner executes
// them while capturing a snapshot after every turn, and the Assert helpers
// check trajectory-wide properties.
//
// Usage:
//
//	func TestNoNewsNoRun(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "no-news",
//	        Params: simulation.WithParams(simulation.NoNews),
//	        Seed:   7,
//	    })
//	    simulation.AssertLiquidityUnchanged(t, result)
//	}
package simulation
