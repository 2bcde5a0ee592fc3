package simulation

import (
	"github.com/nvandessel/bankrun/internal/agent"
	"github.com/nvandessel/bankrun/internal/bank"
)

// AgentView is the read-only projection of an agent exposed to consumers.
type AgentView struct {
	agent.Agent

	// Alert is derived from the withdrawal fraction at snapshot time.
	Alert      agent.AlertState `json:"alert_state"`
	AgeBracket string           `json:"age_bracket"`
	Degree     int              `json:"degree"`
}

// Snapshot is a point-in-time copy of a run. Mutating it has no effect on
// the engine.
type Snapshot struct {
	Turn      int         `json:"turn"`
	Done      bool        `json:"done"`
	Defaulted bool        `json:"defaulted"`
	Bank      bank.State  `json:"bank"`
	Agents    []AgentView `json:"agents"`
	Last      *TurnRecord `json:"last,omitempty"`
	Headline  Headline    `json:"headline"`
}

// Headline holds the dashboard-style summary figures of a run.
type Headline struct {
	// WithdrawalRate is cash paid out over initial deposits.
	WithdrawalRate float64 `json:"withdrawal_rate"`

	// NewsReach is the share of agents the news has reached.
	NewsReach float64 `json:"news_reach"`

	// LiquidityRemaining is current over initial liquidity.
	LiquidityRemaining float64 `json:"liquidity_remaining"`

	// ActivePropagators counts non-customers in the ALERT state.
	ActivePropagators int `json:"active_propagators"`

	// CustomersWithdrawn counts customers in the WITHDRAWN state.
	CustomersWithdrawn int `json:"customers_withdrawn"`

	Customers    int `json:"customers"`
	NonCustomers int `json:"non_customers"`
}

// Snapshot returns a copy of the current run state. Turn is the index of the
// next turn to execute, so a fresh engine reports turn 0.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Turn:      e.turn,
		Done:      e.Done(),
		Defaulted: e.bank.Defaulted(),
		Bank:      e.bank.State(),
		Agents:    make([]AgentView, len(e.agents)),
	}
	if n := len(e.history); n > 0 {
		last := e.history[n-1]
		s.Last = &last
	}

	informed := 0
	for i, a := range e.agents {
		v := AgentView{
			Agent:      *a,
			Alert:      a.AlertState(),
			AgeBracket: a.AgeBracket(),
			Degree:     e.graph.Degree(i),
		}
		s.Agents[i] = v
		if a.Informed {
			informed++
		}
		if a.IsCustomer() {
			s.Headline.Customers++
			if v.Alert == agent.Withdrawn {
				s.Headline.CustomersWithdrawn++
			}
		} else {
			s.Headline.NonCustomers++
			if v.Alert == agent.Alert {
				s.Headline.ActivePropagators++
			}
		}
	}

	if n := len(e.agents); n > 0 {
		s.Headline.NewsReach = float64(informed) / float64(n)
	}
	if d := e.bank.InitialDeposits(); d > 0 {
		s.Headline.WithdrawalRate = e.bank.PaidOut() / d
	}
	s.Headline.LiquidityRemaining = 1
	if l0 := e.bank.InitialLiquidity(); l0 > 0 {
		s.Headline.LiquidityRemaining = e.bank.Liquidity() / l0
	}
	return s
}
