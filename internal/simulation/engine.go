package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/nvandessel/bankrun/internal/agent"
	"github.com/nvandessel/bankrun/internal/bank"
	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/logging"
	"github.com/nvandessel/bankrun/internal/network"
)

// ErrRunFinished is returned by Step once the run has terminated.
var ErrRunFinished = errors.New("simulation: run finished")

// TurnRecord is the per-turn time-series sample of a run.
type TurnRecord struct {
	Turn          int     `json:"turn"`
	Liquidity     float64 `json:"liquidity"`
	TotalDeposits float64 `json:"total_deposits"`

	// Withdrawn is the cumulative cash paid out since turn 0.
	Withdrawn float64 `json:"withdrawn"`

	// Informed counts agents the news has reached.
	Informed int `json:"informed"`

	// WithdrawnCustomers counts customers in the WITHDRAWN state.
	WithdrawnCustomers int `json:"withdrawn_customers"`

	// AlertNonCustomers counts non-customers in the ALERT state.
	AlertNonCustomers int `json:"alert_non_customers"`
}

// Engine owns one network, one agent population and one bank, and advances
// them turn by turn. An Engine is not safe for concurrent use.
type Engine struct {
	params Params
	model  agent.Model
	rng    *rand.Rand

	graph  *network.Graph
	agents []*agent.Agent
	bank   *bank.Bank

	turn    int
	history []TurnRecord

	label     string
	logger    *slog.Logger
	turnTrace *logging.TurnLogger
}

// New builds a run seeded from (seed, stream). Two engines with the same
// parameters and the same pair produce identical trajectories.
func New(p Params, seed, stream uint64) (*Engine, error) {
	return NewWithRand(p, rand.New(rand.NewPCG(seed, stream)))
}

// NewWithRand builds a run that draws every random number from rng: network
// generation first, then demographics, then per-turn draws.
func NewWithRand(p Params, rng *rand.Rand) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("simulation: nil random source")
	}
	g, err := network.Generate(p.Nodes, rng)
	if err != nil {
		return nil, fmt.Errorf("generating network: %w", err)
	}
	return build(p, g, rng)
}

// NewWithGraph builds a run on a caller-supplied graph. p.Nodes must match
// the graph's node count.
func NewWithGraph(p Params, g *network.Graph, rng *rand.Rand) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrInvalidParams)
	}
	if g.NodeCount() != p.Nodes {
		return nil, fmt.Errorf("%w: graph has %d nodes, params say %d", ErrInvalidParams, g.NodeCount(), p.Nodes)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("simulation: nil random source")
	}
	return build(p, g, rng)
}

func build(p Params, g *network.Graph, rng *rand.Rand) (*Engine, error) {
	agents, err := agent.NewPopulation(g.NodeCount(), p.Population(), rng)
	if err != nil {
		return nil, fmt.Errorf("sampling population: %w", err)
	}
	b, err := bank.New(agent.TotalBalance(agents), p.ReserveRatio)
	if err != nil {
		return nil, fmt.Errorf("opening bank: %w", err)
	}
	return &Engine{
		params: p,
		model:  p.Model(),
		rng:    rng,
		graph:  g,
		agents: agents,
		bank:   b,
	}, nil
}

// SetLogger sets the structured logger and turn trace for observability.
// label identifies the run in log output.
func (e *Engine) SetLogger(logger *slog.Logger, turns *logging.TurnLogger, label string) {
	e.logger = logger
	e.turnTrace = turns
	e.label = label
}

// Turn returns the index of the next turn to execute.
func (e *Engine) Turn() int { return e.turn }

// Params returns the run parameters.
func (e *Engine) Params() Params { return e.params }

// Graph returns the run's immutable network.
func (e *Engine) Graph() *network.Graph { return e.graph }

// Bank returns a copy of the ledger.
func (e *Engine) Bank() bank.State { return e.bank.State() }

// Defaulted reports whether the bank has run out of cash.
func (e *Engine) Defaulted() bool { return e.bank.Defaulted() }

// Done reports whether the run has terminated, either by default or by
// reaching the turn ceiling.
func (e *Engine) Done() bool {
	return e.turn >= e.params.MaxTurns || e.bank.Defaulted()
}

// History returns a copy of the turn records so far.
func (e *Engine) History() []TurnRecord {
	out := make([]TurnRecord, len(e.history))
	copy(out, e.history)
	return out
}

// Agents returns copies of every agent.
func (e *Engine) Agents() []*agent.Agent {
	out := make([]*agent.Agent, len(e.agents))
	for i, a := range e.agents {
		out[i] = a.Clone()
	}
	return out
}

func (e *Engine) fraction(id int) float64 {
	return e.agents[id].Fraction
}

// Step executes one turn and returns its record.
//
// Agents are visited in a fresh random permutation. In async mode each agent
// reads the live state left by agents earlier in the permutation; in sync
// mode every read comes from the turn-start state and withdrawals are applied
// afterwards in permutation order.
func (e *Engine) Step() (TurnRecord, error) {
	if e.Done() {
		return TurnRecord{}, ErrRunFinished
	}

	order := e.rng.Perm(len(e.agents))
	if e.params.UpdateMode == constants.UpdateSync {
		e.stepSync(order)
	} else {
		e.stepAsync(order)
	}

	e.bank.Reconcile(agent.TotalBalance(e.agents))
	rec := e.record()
	e.history = append(e.history, rec)
	e.turn++

	e.trace(rec)
	return rec, nil
}

func (e *Engine) stepAsync(order []int) {
	for _, id := range order {
		a := e.agents[id]
		a.Diffuse(e.rng, e.model.DiffusionRate)

		social := agent.SocialRatio(e.graph.Neighbors(id), e.fraction)
		fear := 0.0
		if a.IsCustomer() {
			fear = e.bank.Fear()
		}
		target := a.Target(e.model, social, fear)
		paid := a.Withdraw(target, e.bank)
		e.traceAgent(a, social, fear, target, paid)
	}
}

func (e *Engine) stepSync(order []int) {
	start := make([]float64, len(e.agents))
	for i, a := range e.agents {
		start[i] = a.Fraction
	}
	startFraction := func(id int) float64 { return start[id] }
	fear := e.bank.Fear()

	targets := make([]float64, len(e.agents))
	socials := make([]float64, len(e.agents))
	for _, id := range order {
		a := e.agents[id]
		a.Diffuse(e.rng, e.model.DiffusionRate)

		socials[id] = agent.SocialRatio(e.graph.Neighbors(id), startFraction)
		f := 0.0
		if a.IsCustomer() {
			f = fear
		}
		targets[id] = a.Target(e.model, socials[id], f)
	}

	for _, id := range order {
		a := e.agents[id]
		paid := a.Withdraw(targets[id], e.bank)
		e.traceAgent(a, socials[id], fear, targets[id], paid)
	}
}

func (e *Engine) record() TurnRecord {
	rec := TurnRecord{
		Turn:          e.turn,
		Liquidity:     e.bank.Liquidity(),
		TotalDeposits: e.bank.TotalDeposits(),
		Withdrawn:     e.bank.PaidOut(),
	}
	for _, a := range e.agents {
		if a.Informed {
			rec.Informed++
		}
		switch st := a.AlertState(); {
		case a.IsCustomer() && st == agent.Withdrawn:
			rec.WithdrawnCustomers++
		case !a.IsCustomer() && st == agent.Alert:
			rec.AlertNonCustomers++
		}
	}
	return rec
}

func (e *Engine) trace(rec TurnRecord) {
	if e.logger != nil {
		e.logger.Debug("turn complete",
			"run", e.label,
			"turn", rec.Turn,
			"liquidity", rec.Liquidity,
			"withdrawn", rec.Withdrawn,
			"informed", rec.Informed,
			"defaulted", e.bank.Defaulted(),
		)
	}
	if e.turnTrace == nil {
		return
	}
	e.turnTrace.Log(map[string]any{
		"event":               "turn",
		"run":                 e.label,
		"turn":                rec.Turn,
		"liquidity":           rec.Liquidity,
		"total_deposits":      rec.TotalDeposits,
		"withdrawn":           rec.Withdrawn,
		"informed":            rec.Informed,
		"withdrawn_customers": rec.WithdrawnCustomers,
		"alert_non_customers": rec.AlertNonCustomers,
		"defaulted":           e.bank.Defaulted(),
	})
}

func (e *Engine) traceAgent(a *agent.Agent, social, fear, target, paid float64) {
	ctx := context.Background()
	if e.logger == nil || !e.logger.Enabled(ctx, logging.LevelTrace) {
		return
	}
	e.logger.Log(ctx, logging.LevelTrace, "agent step",
		"run", e.label,
		"turn", e.turn,
		"agent", a.ID,
		"kind", a.Kind,
		"informed", a.Informed,
		"social", social,
		"fear", fear,
		"target", target,
		"fraction", a.Fraction,
		"paid", paid,
	)
}

// RunResult is the outcome of a complete run.
type RunResult struct {
	Records   []TurnRecord `json:"records"`
	Defaulted bool         `json:"defaulted"`

	// CollapseTurn is the turn on which liquidity reached zero, or -1.
	CollapseTurn int `json:"collapse_turn"`
}

// Run steps until termination. observe, when non-nil, is called after every
// turn. Cancellation is checked between turns.
func (e *Engine) Run(ctx context.Context, observe func(TurnRecord)) (*RunResult, error) {
	for !e.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := e.Step()
		if err != nil {
			return nil, err
		}
		if observe != nil {
			observe(rec)
		}
	}
	return e.Result(), nil
}

// Result summarizes the turns executed so far.
func (e *Engine) Result() *RunResult {
	res := &RunResult{
		Records:      e.History(),
		Defaulted:    e.bank.Defaulted(),
		CollapseTurn: -1,
	}
	if res.Defaulted && len(res.Records) > 0 {
		res.CollapseTurn = res.Records[len(res.Records)-1].Turn
	}
	return res
}
