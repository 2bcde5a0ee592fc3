package mcp

import (
	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/network"
	"github.com/nvandessel/bankrun/internal/simulation"
	"github.com/nvandessel/bankrun/internal/store"
)

// ParamOverrides holds the parameters a tool call may change. Unset fields
// keep the server defaults.
type ParamOverrides struct {
	Nodes               *int     `json:"nodes,omitempty" jsonschema:"Number of agents in the social network"`
	NonCustomerFraction *float64 `json:"non_customer_fraction,omitempty" jsonschema:"Share of agents holding no deposit (0.0-1.0)"`
	TotalDeposits       *float64 `json:"total_deposits,omitempty" jsonschema:"Total customer deposits; balances are rescaled to sum to it"`
	ReserveRatio        *float64 `json:"reserve_ratio,omitempty" jsonschema:"Share of deposits held as cash, exclusive (0.0-1.0)"`
	NewsScore           *float64 `json:"news_score,omitempty" jsonschema:"Negativity of the news (0.0-1.0)"`
	NewsCredibility     *float64 `json:"news_credibility,omitempty" jsonschema:"Credibility of the news source (0.0-1.0)"`
	DiffusionRate       *float64 `json:"diffusion_rate,omitempty" jsonschema:"Per-turn chance that uninformed agents hear the news (0.0-1.0)"`
	MaxTurns            *int     `json:"max_turns,omitempty" jsonschema:"Turn ceiling of a run"`
	UpdateMode          string   `json:"update_mode,omitempty" jsonschema:"Neighbour reads: 'async' (live) or 'sync' (turn-start snapshot)"`
}

// apply returns base with every set override copied in.
func (o ParamOverrides) apply(base simulation.Params) simulation.Params {
	p := base
	if o.Nodes != nil {
		p.Nodes = *o.Nodes
	}
	if o.NonCustomerFraction != nil {
		p.NonCustomerFraction = *o.NonCustomerFraction
	}
	if o.TotalDeposits != nil {
		p.TotalDeposits = *o.TotalDeposits
	}
	if o.ReserveRatio != nil {
		p.ReserveRatio = *o.ReserveRatio
	}
	if o.NewsScore != nil {
		p.NewsScore = *o.NewsScore
	}
	if o.NewsCredibility != nil {
		p.NewsCredibility = *o.NewsCredibility
	}
	if o.DiffusionRate != nil {
		p.DiffusionRate = *o.DiffusionRate
	}
	if o.MaxTurns != nil {
		p.MaxTurns = *o.MaxTurns
	}
	if o.UpdateMode != "" {
		p.UpdateMode = constants.UpdateMode(o.UpdateMode)
	}
	return p
}

// SimulateInput defines the input for bankrun_simulate tool.
type SimulateInput struct {
	ParamOverrides
	Seed           *uint64 `json:"seed,omitempty" jsonschema:"Random seed (default: server batch seed)"`
	Stream         uint64  `json:"stream,omitempty" jsonschema:"Stream index under the seed (default: 0)"`
	IncludeHistory bool    `json:"include_history,omitempty" jsonschema:"Return the per-turn records (default: false)"`
}

// SimulateOutput defines the output for bankrun_simulate tool.
type SimulateOutput struct {
	Params       simulation.Params       `json:"params" jsonschema:"Parameters the run used"`
	Seed         uint64                  `json:"seed"`
	Stream       uint64                  `json:"stream"`
	Turns        int                     `json:"turns" jsonschema:"Number of turns executed"`
	Defaulted    bool                    `json:"defaulted" jsonschema:"Whether the bank ran out of liquidity"`
	CollapseTurn *int                    `json:"collapse_turn,omitempty" jsonschema:"Turn at which the bank defaulted"`
	Headline     simulation.Headline     `json:"headline" jsonschema:"Summary figures of the final state"`
	Final        simulation.TurnRecord   `json:"final" jsonschema:"Record of the last turn"`
	History      []simulation.TurnRecord `json:"history,omitempty" jsonschema:"Per-turn records when include_history is set"`
	Message      string                  `json:"message" jsonschema:"Human-readable result message"`
}

// BatchInput defines the input for bankrun_batch tool.
type BatchInput struct {
	ParamOverrides
	Runs         int     `json:"runs,omitempty" jsonschema:"Number of independent runs (default: server batch runs)"`
	Seed         *uint64 `json:"seed,omitempty" jsonschema:"Batch seed (default: server batch seed)"`
	SegmentScope string  `json:"segment_scope,omitempty" jsonschema:"Runs feeding the segment breakdown: 'last' or 'all'"`
	Label        string  `json:"label,omitempty" jsonschema:"Free-form label stored with the report"`
}

// BatchOutput defines the output for bankrun_batch tool.
type BatchOutput struct {
	ReportID             string                   `json:"report_id" jsonschema:"ID of the stored report"`
	Runs                 int                      `json:"runs"`
	Turns                int                      `json:"turns" jsonschema:"Length of the longest run"`
	DefaultProbability   float64                  `json:"default_probability" jsonschema:"Share of runs in which the bank defaulted"`
	MeanCollapseTurn     *float64                 `json:"mean_collapse_turn,omitempty" jsonschema:"Mean default turn over defaulted runs"`
	Collapse             montecarlo.CollapseStats `json:"collapse"`
	FinalLiquidityMean   float64                  `json:"final_liquidity_mean"`
	FinalLiquidityStdDev float64                  `json:"final_liquidity_std_dev"`
	Segments             []montecarlo.SegmentStat `json:"segments,omitempty" jsonschema:"Withdrawal breakdown by demographic segment"`
	Message              string                   `json:"message" jsonschema:"Human-readable result message"`
}

// HistoryInput defines the input for bankrun_history tool.
type HistoryInput struct {
	ID    string `json:"id,omitempty" jsonschema:"Report ID to fetch; empty lists recent reports"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum reports to list (default: 20)"`
}

// HistoryOutput defines the output for bankrun_history tool.
type HistoryOutput struct {
	Reports []store.Summary `json:"reports,omitempty" jsonschema:"Stored report summaries, newest first"`
	Report  *BatchOutput    `json:"report,omitempty" jsonschema:"The requested report"`
	Count   int             `json:"count" jsonschema:"Number of items returned"`
}

// NetworkInput defines the input for bankrun_network tool.
type NetworkInput struct {
	ParamOverrides
	Seed   *uint64 `json:"seed,omitempty" jsonschema:"Random seed (default: server batch seed)"`
	Stream uint64  `json:"stream,omitempty" jsonschema:"Stream index under the seed"`
	Turns  int     `json:"turns,omitempty" jsonschema:"Turns to execute before rendering (default: 0)"`
	Format string  `json:"format,omitempty" jsonschema:"Output format: 'json' (default) or 'dot'"`
}

// NetworkOutput defines the output for bankrun_network tool.
type NetworkOutput struct {
	Format    string        `json:"format" jsonschema:"Format of the graph field"`
	Graph     any           `json:"graph" jsonschema:"Rendered graph: a DOT string or a JSON document"`
	Turn      int           `json:"turn" jsonschema:"Turn of the rendered snapshot"`
	NodeCount int           `json:"node_count"`
	EdgeCount int           `json:"edge_count"`
	Stats     network.Stats `json:"stats" jsonschema:"Degree and clustering statistics"`
}
