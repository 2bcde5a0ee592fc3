package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/nvandessel/bankrun/internal/constants"
)

// PopulationConfig controls demographic sampling.
type PopulationConfig struct {
	// NonCustomerFraction is the probability that an agent is a rumor carrier.
	NonCustomerFraction float64

	// TotalDeposits, when positive, rescales customer balances so they sum
	// to exactly this amount. Zero keeps the raw segment draws.
	TotalDeposits float64

	// GuaranteeThreshold marks customers at or below it as insured.
	GuaranteeThreshold float64
}

type balanceRange struct{ min, max float64 }

var balanceRanges = map[Segment]balanceRange{
	SegmentRetail:    {constants.RetailBalanceMin, constants.RetailBalanceMax},
	SegmentVIP:       {constants.VIPBalanceMin, constants.VIPBalanceMax},
	SegmentCorporate: {constants.CorporateBalanceMin, constants.CorporateBalanceMax},
}

// NewPopulation samples n agents from rng.
//
// Every agent consumes the same sequence of draws regardless of its kind, so
// changing NonCustomerFraction only flips kinds without shifting the
// demographics of later agents.
func NewPopulation(n int, cfg PopulationConfig, rng *rand.Rand) ([]*Agent, error) {
	if n < 0 {
		return nil, fmt.Errorf("agent: negative population size %d", n)
	}
	if rng == nil {
		return nil, errors.New("agent: nil random source")
	}
	if cfg.NonCustomerFraction < 0 || cfg.NonCustomerFraction > 1 {
		return nil, fmt.Errorf("agent: non-customer fraction %v outside [0,1]", cfg.NonCustomerFraction)
	}
	if cfg.TotalDeposits < 0 {
		return nil, fmt.Errorf("agent: negative total deposits %v", cfg.TotalDeposits)
	}

	unit := distuv.Uniform{Min: 0, Max: 1, Src: rng}
	ages := distuv.Normal{Mu: constants.AgeMean, Sigma: constants.AgeStdDev, Src: rng}
	aversion := distuv.Uniform{Min: constants.AversionMin, Max: constants.AversionMax, Src: rng}
	loyalty := distuv.Uniform{Min: constants.LoyaltyMin, Max: constants.LoyaltyMax, Src: rng}
	segments := distuv.NewCategorical([]float64{
		constants.RetailWeight,
		constants.VIPWeight,
		constants.CorporateWeight,
	}, rng)

	agents := make([]*Agent, n)
	rawTotal := 0.0
	for i := range agents {
		a := &Agent{ID: i, Kind: Customer}
		if unit.Rand() < cfg.NonCustomerFraction {
			a.Kind = NonCustomer
		}

		seg := Segments[int(segments.Rand())]
		r := balanceRanges[seg]
		balance := distuv.Uniform{Min: r.min, Max: r.max, Src: rng}.Rand()

		a.Age = sampleAge(ages.Rand())
		a.DigitalAffinity = 1 - float64(a.Age)/constants.AgeMax
		a.RiskAversion = adjustAversion(aversion.Rand(), a.Age)

		a.Sex = SexFemale
		if unit.Rand() < constants.MaleProbability {
			a.Sex = SexMale
		}
		a.Loyalty = loyalty.Rand()

		if a.IsCustomer() {
			a.Segment = seg
			a.InitialBalance = balance
			rawTotal += balance
		}
		agents[i] = a
	}

	scale := 1.0
	if cfg.TotalDeposits > 0 && rawTotal > 0 {
		scale = cfg.TotalDeposits / rawTotal
	}
	for _, a := range agents {
		if !a.IsCustomer() {
			continue
		}
		a.InitialBalance *= scale
		a.Balance = a.InitialBalance
		a.Insured = a.InitialBalance <= cfg.GuaranteeThreshold
	}
	return agents, nil
}

func sampleAge(x float64) int {
	age := math.Round(x)
	return int(math.Max(constants.AgeMin, math.Min(constants.AgeMax, age)))
}

// adjustAversion raises base aversion linearly for ages above the pivot and
// clamps the result to [0,1].
func adjustAversion(base float64, age int) float64 {
	over := math.Max(0, float64(age-constants.AversionAgePivot))
	span := float64(constants.AgeMax - constants.AversionAgePivot)
	return clamp01(base + constants.AversionAgeBonus*over/span)
}

// TotalBalance sums the current balances of all customers.
func TotalBalance(agents []*Agent) float64 {
	total := 0.0
	for _, a := range agents {
		if a.IsCustomer() {
			total += a.Balance
		}
	}
	return total
}
