package simulation

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/bankrun/internal/agent"
	"github.com/nvandessel/bankrun/internal/constants"
)

// ErrInvalidParams wraps every parameter validation failure.
var ErrInvalidParams = errors.New("invalid simulation parameters")

// Params is the flat parameter set of a single run.
type Params struct {
	// Nodes is the size of the social network.
	Nodes int `json:"nodes" yaml:"nodes"`

	// NonCustomerFraction is the share of agents that carry rumors but hold
	// no deposit.
	NonCustomerFraction float64 `json:"non_customer_fraction" yaml:"non_customer_fraction"`

	// TotalDeposits rescales customer balances to sum to this amount. Zero
	// keeps the raw per-segment draws.
	TotalDeposits float64 `json:"total_deposits" yaml:"total_deposits"`

	// ReserveRatio is the share of deposits the bank holds as cash.
	ReserveRatio float64 `json:"reserve_ratio" yaml:"reserve_ratio"`

	NewsScore       float64 `json:"news_score" yaml:"news_score"`
	NewsCredibility float64 `json:"news_credibility" yaml:"news_credibility"`
	DiffusionRate   float64 `json:"diffusion_rate" yaml:"diffusion_rate"`

	// MaxTurns is the turn ceiling.
	MaxTurns int `json:"max_turns" yaml:"max_turns"`

	// UpdateMode selects live (async) or snapshot (sync) neighbour reads.
	UpdateMode constants.UpdateMode `json:"update_mode" yaml:"update_mode"`

	Weights          agent.Weights `json:"weights" yaml:"weights"`
	CustomerCurve    agent.Curve   `json:"customer_curve" yaml:"customer_curve"`
	NonCustomerCurve agent.Curve   `json:"non_customer_curve" yaml:"non_customer_curve"`

	// Deposit guarantee fund. Only drives the reporting-only insured flag.
	GuaranteeThreshold      float64 `json:"guarantee_threshold" yaml:"guarantee_threshold"`
	GuaranteePanicReduction float64 `json:"guarantee_panic_reduction" yaml:"guarantee_panic_reduction"`
}

// DefaultParams returns the reference calibration.
func DefaultParams() Params {
	return Params{
		Nodes:                   constants.DefaultNodes,
		NonCustomerFraction:     constants.DefaultNonCustomerFraction,
		TotalDeposits:           constants.DefaultTotalDeposits,
		ReserveRatio:            constants.DefaultReserveRatio,
		NewsScore:               constants.DefaultNewsScore,
		NewsCredibility:         constants.DefaultNewsCredibility,
		DiffusionRate:           constants.DefaultDiffusionRate,
		MaxTurns:                constants.DefaultMaxTurns,
		UpdateMode:              constants.UpdateAsync,
		Weights:                 agent.DefaultWeights(),
		CustomerCurve:           agent.CustomerCurve(),
		NonCustomerCurve:        agent.NonCustomerCurve(),
		GuaranteeThreshold:      constants.GuaranteeThreshold,
		GuaranteePanicReduction: constants.GuaranteePanicReduction,
	}
}

// Validate checks every parameter. Inputs are never clamped: the first
// violation is returned wrapped in ErrInvalidParams.
func (p Params) Validate() error {
	if p.Nodes < constants.MinNetworkNodes {
		return fmt.Errorf("%w: nodes=%d, need at least %d", ErrInvalidParams, p.Nodes, constants.MinNetworkNodes)
	}
	unit := []struct {
		name string
		v    float64
	}{
		{"non_customer_fraction", p.NonCustomerFraction},
		{"news_score", p.NewsScore},
		{"news_credibility", p.NewsCredibility},
		{"diffusion_rate", p.DiffusionRate},
		{"guarantee_panic_reduction", p.GuaranteePanicReduction},
	}
	for _, u := range unit {
		if math.IsNaN(u.v) || u.v < 0 || u.v > 1 {
			return fmt.Errorf("%w: %s=%v outside [0,1]", ErrInvalidParams, u.name, u.v)
		}
	}
	if math.IsNaN(p.ReserveRatio) || p.ReserveRatio <= 0 || p.ReserveRatio >= 1 {
		return fmt.Errorf("%w: reserve_ratio=%v outside (0,1)", ErrInvalidParams, p.ReserveRatio)
	}
	if math.IsNaN(p.TotalDeposits) || math.IsInf(p.TotalDeposits, 0) || p.TotalDeposits < 0 {
		return fmt.Errorf("%w: total_deposits=%v must be finite and >= 0", ErrInvalidParams, p.TotalDeposits)
	}
	if p.MaxTurns < 1 {
		return fmt.Errorf("%w: max_turns=%d must be >= 1", ErrInvalidParams, p.MaxTurns)
	}
	if !p.UpdateMode.Valid() {
		return fmt.Errorf("%w: unknown update_mode %q", ErrInvalidParams, p.UpdateMode)
	}
	if err := p.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := p.CustomerCurve.Validate(); err != nil {
		return fmt.Errorf("%w: customer %v", ErrInvalidParams, err)
	}
	if err := p.NonCustomerCurve.Validate(); err != nil {
		return fmt.Errorf("%w: non-customer %v", ErrInvalidParams, err)
	}
	if math.IsNaN(p.GuaranteeThreshold) || p.GuaranteeThreshold < 0 {
		return fmt.Errorf("%w: guarantee_threshold=%v must be >= 0", ErrInvalidParams, p.GuaranteeThreshold)
	}
	return nil
}

// Model returns the decision parameters handed to agents.
func (p Params) Model() agent.Model {
	return agent.Model{
		NewsScore:       p.NewsScore,
		NewsCredibility: p.NewsCredibility,
		DiffusionRate:   p.DiffusionRate,
		Weights:         p.Weights,
		Customer:        p.CustomerCurve,
		NonCustomer:     p.NonCustomerCurve,
	}
}

// Population returns the demographic sampling configuration.
func (p Params) Population() agent.PopulationConfig {
	return agent.PopulationConfig{
		NonCustomerFraction: p.NonCustomerFraction,
		TotalDeposits:       p.TotalDeposits,
		GuaranteeThreshold:  p.GuaranteeThreshold,
	}
}
