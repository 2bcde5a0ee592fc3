package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/simulation"
)

// addParamFlags registers the simulation parameter overrides shared by
// run, batch and graph.
func addParamFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("nodes", 0, "Number of agents in the network")
	f.Float64("non-customers", 0, "Share of agents without a deposit (0-1)")
	f.Float64("deposits", 0, "Total customer deposits")
	f.Float64("reserve-ratio", 0, "Share of deposits held as cash (0-1, exclusive)")
	f.Float64("news-score", 0, "Negativity of the news (0-1)")
	f.Float64("credibility", 0, "Credibility of the news source (0-1)")
	f.Float64("diffusion", 0, "Per-turn news diffusion probability (0-1)")
	f.Int("max-turns", 0, "Turn ceiling")
	f.Bool("sync", false, "Read neighbours from the turn-start snapshot")
}

// paramsFromFlags returns base with every explicitly set flag applied.
func paramsFromFlags(cmd *cobra.Command, base simulation.Params) simulation.Params {
	f := cmd.Flags()
	p := base
	if f.Changed("nodes") {
		p.Nodes, _ = f.GetInt("nodes")
	}
	if f.Changed("non-customers") {
		p.NonCustomerFraction, _ = f.GetFloat64("non-customers")
	}
	if f.Changed("deposits") {
		p.TotalDeposits, _ = f.GetFloat64("deposits")
	}
	if f.Changed("reserve-ratio") {
		p.ReserveRatio, _ = f.GetFloat64("reserve-ratio")
	}
	if f.Changed("news-score") {
		p.NewsScore, _ = f.GetFloat64("news-score")
	}
	if f.Changed("credibility") {
		p.NewsCredibility, _ = f.GetFloat64("credibility")
	}
	if f.Changed("diffusion") {
		p.DiffusionRate, _ = f.GetFloat64("diffusion")
	}
	if f.Changed("max-turns") {
		p.MaxTurns, _ = f.GetInt("max-turns")
	}
	if sync, _ := f.GetBool("sync"); sync {
		p.UpdateMode = constants.UpdateSync
	}
	return p
}

// seedFromFlags returns --seed when set, else def.
func seedFromFlags(cmd *cobra.Command, def uint64) uint64 {
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		return seed
	}
	return def
}
