package agent

import (
	"fmt"
	"math"

	"github.com/nvandessel/bankrun/internal/constants"
)

// Weights are the linear mixing weights of the panic score.
type Weights struct {
	News      float64 `json:"news" yaml:"news"`
	Social    float64 `json:"social" yaml:"social"`
	Liquidity float64 `json:"liquidity" yaml:"liquidity"`
}

// DefaultWeights returns the reference 0.4/0.5/0.1 weights.
func DefaultWeights() Weights {
	return Weights{
		News:      constants.NewsWeight,
		Social:    constants.SocialWeight,
		Liquidity: constants.LiquidityWeight,
	}
}

// Validate checks that each weight is in [0,1] and that they sum to 1.
func (w Weights) Validate() error {
	named := []struct {
		name string
		v    float64
	}{{"news", w.News}, {"social", w.Social}, {"liquidity", w.Liquidity}}
	for _, n := range named {
		if n.v < 0 || n.v > 1 || math.IsNaN(n.v) {
			return fmt.Errorf("weight %s=%v outside [0,1]", n.name, n.v)
		}
	}
	sum := w.News + w.Social + w.Liquidity
	if math.Abs(sum-1) > constants.WeightSumTolerance {
		return fmt.Errorf("weights sum to %v, want 1", sum)
	}
	return nil
}

// Curve is a logistic squash 1/(1+exp(-Gain*(x-Center))), rescaled so that
// Apply(0) == 0 and Apply(1) == 1.
type Curve struct {
	Gain   float64 `json:"gain" yaml:"gain"`
	Center float64 `json:"center" yaml:"center"`
}

// CustomerCurve returns the reference customer panic curve.
func CustomerCurve() Curve {
	return Curve{Gain: constants.CustomerSigmoidGain, Center: constants.CustomerSigmoidCenter}
}

// NonCustomerCurve returns the reference rumor-carrier curve.
func NonCustomerCurve() Curve {
	return Curve{Gain: constants.NonCustomerSigmoidGain, Center: constants.NonCustomerSigmoidCenter}
}

// Validate rejects flat or non-finite curves.
func (c Curve) Validate() error {
	if !(c.Gain > 0) || math.IsInf(c.Gain, 0) {
		return fmt.Errorf("curve gain %v must be positive and finite", c.Gain)
	}
	if c.Center < 0 || c.Center > 1 || math.IsNaN(c.Center) {
		return fmt.Errorf("curve center %v outside [0,1]", c.Center)
	}
	return nil
}

func (c Curve) logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-c.Gain*(x-c.Center)))
}

// Apply maps a score in [0,1] to a target fraction in [0,1].
func (c Curve) Apply(score float64) float64 {
	lo, hi := c.logistic(0), c.logistic(1)
	return clamp01((c.logistic(score) - lo) / (hi - lo))
}

// Model carries the run-level parameters an agent needs to decide.
type Model struct {
	NewsScore       float64
	NewsCredibility float64
	DiffusionRate   float64
	Weights         Weights
	Customer        Curve
	NonCustomer     Curve
}

// NewsImpact returns the media pressure felt by an informed agent.
func (m Model) NewsImpact(informed bool) float64 {
	if !informed {
		return 0
	}
	return m.NewsScore * m.NewsCredibility
}

// Fear converts the bank's remaining liquidity into a [0,1] fear term.
// A bank that started with no liquidity produces no fear.
func Fear(liquidity, initialLiquidity float64) float64 {
	if initialLiquidity <= 0 {
		return 0
	}
	return clamp01(1 - liquidity/initialLiquidity)
}

// SocialRatio returns the mean fraction of the given neighbours, or 0 when
// there are none.
func SocialRatio(neighbors []int, fraction func(id int) float64) float64 {
	if len(neighbors) == 0 {
		return 0
	}
	sum := 0.0
	for _, id := range neighbors {
		sum += fraction(id)
	}
	return sum / float64(len(neighbors))
}

// Score computes the clipped linear panic score. fear is ignored for
// non-customers.
func (a *Agent) Score(m Model, social, fear float64) float64 {
	base := m.NewsImpact(a.Informed)*m.Weights.News + social*m.Weights.Social
	if !a.IsCustomer() {
		return clamp01(base)
	}
	return clamp01((base + fear*m.Weights.Liquidity) * (1 + a.RiskAversion))
}

// Target squashes the score through the agent kind's curve.
func (a *Agent) Target(m Model, social, fear float64) float64 {
	curve := m.Customer
	if !a.IsCustomer() {
		curve = m.NonCustomer
	}
	return curve.Apply(a.Score(m, social, fear))
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
