// Package constants provides named constants used throughout the bankrun codebase.
// This centralizes the model's calibration table: demographic ranges, balance
// ranges, decision weights and sigmoid shape parameters.
package constants

// Network generation constants (Holme-Kim power-law cluster model).
const (
	// EdgesPerNode is the number of edges each newly added node attaches with (m).
	EdgesPerNode = 3

	// TriangleProbability is the chance of closing a triangle after a
	// preferential attachment step (p). Produces realistic local clustering.
	TriangleProbability = 0.5

	// MinNetworkNodes is the smallest network the generator accepts.
	// Below EdgesPerNode+1 the construction is undefined.
	MinNetworkNodes = EdgesPerNode + 1
)

// Demographic constants.
const (
	// AgeMean is the mean of the age distribution.
	AgeMean = 50.0

	// AgeStdDev is the standard deviation of the age distribution.
	AgeStdDev = 18.0

	// AgeMin is the lower clamp for sampled ages.
	AgeMin = 18

	// AgeMax is the upper clamp for sampled ages. Digital affinity is 1 - age/AgeMax.
	AgeMax = 95

	// AversionMin and AversionMax bound the uniform base risk aversion draw.
	AversionMin = 0.1
	AversionMax = 0.9

	// AversionAgePivot is the age above which risk aversion is raised.
	AversionAgePivot = 50

	// AversionAgeBonus is the extra aversion reached at AgeMax. The bonus grows
	// linearly from AversionAgePivot to AgeMax.
	AversionAgeBonus = 0.2

	// LoyaltyMin and LoyaltyMax bound the reporting-only loyalty score.
	LoyaltyMin = 0.1
	LoyaltyMax = 0.3

	// MaleProbability is the share of agents sampled as sex "H".
	MaleProbability = 0.5
)

// Age brackets used by the segment breakdown.
const (
	// YoungAgeLimit: ages strictly below this are "<35".
	YoungAgeLimit = 35

	// SeniorAgeLimit: ages strictly above this are ">60".
	SeniorAgeLimit = 60
)

// Customer segment weights (Retail, VIP, Corporate).
const (
	RetailWeight    = 0.75
	VIPWeight       = 0.20
	CorporateWeight = 0.05
)

// Raw balance ranges per segment, in currency units. Balances are rescaled to
// the configured total deposits after sampling.
const (
	RetailBalanceMin    = 1_000.0
	RetailBalanceMax    = 15_000.0
	VIPBalanceMin       = 15_000.0
	VIPBalanceMax       = 50_000.0
	CorporateBalanceMin = 50_000.0
	CorporateBalanceMax = 200_000.0
)

// Decision weights. They must sum to 1.
const (
	// NewsWeight is the weight of media impact.
	NewsWeight = 0.4

	// SocialWeight is the weight of neighbours' withdrawal behaviour (herding).
	SocialWeight = 0.5

	// LiquidityWeight is the weight of the bank's observed financial health.
	LiquidityWeight = 0.1

	// WeightSumTolerance is how far the weights may drift from 1.
	WeightSumTolerance = 1e-6
)

// Sigmoid shape parameters per agent kind.
const (
	// CustomerSigmoidGain is the steepness of the customer panic curve.
	CustomerSigmoidGain = 10.0

	// CustomerSigmoidCenter is the inflection point of the customer panic curve.
	CustomerSigmoidCenter = 0.4

	// NonCustomerSigmoidGain is the steepness of the rumor-carrier curve.
	NonCustomerSigmoidGain = 12.0

	// NonCustomerSigmoidCenter is the inflection point of the rumor-carrier curve.
	NonCustomerSigmoidCenter = 0.45
)

// Derived alert label thresholds. Labels are projections of withdrawal
// fraction and are never read back into decision logic.
const (
	// CustomerAlertThreshold is the fraction at which a customer shows as ALERT.
	CustomerAlertThreshold = 0.1

	// CustomerWithdrawnThreshold is the fraction at which a customer shows as WITHDRAWN.
	CustomerWithdrawnThreshold = 0.5

	// NonCustomerAlertThreshold is the rumor intensity at which a non-customer shows as ALERT.
	NonCustomerAlertThreshold = 0.4
)

// Deposit guarantee fund. Present in configuration, not load-bearing in the
// decision model: it only drives the reporting-only "insured" attribute.
const (
	// GuaranteeThreshold is the protected balance limit.
	GuaranteeThreshold = 100_000.0

	// GuaranteePanicReduction is the fear reduction for protected depositors.
	GuaranteePanicReduction = 0.5
)

// Run-level defaults.
const (
	DefaultNodes               = 200
	DefaultNonCustomerFraction = 0.2
	DefaultTotalDeposits       = 20_000_000.0
	DefaultReserveRatio        = 0.10
	DefaultNewsScore           = 0.8
	DefaultNewsCredibility     = 0.9
	DefaultDiffusionRate       = 0.4
	DefaultMaxTurns            = 50
	DefaultRuns                = 100
)

// FloatTolerance is the absolute tolerance used for floating point invariants.
const FloatTolerance = 1e-6
