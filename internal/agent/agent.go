// Package agent holds one node's state and its per-turn decision logic.
//
// The authoritative state of an agent is its withdrawal fraction and whether
// the news has reached it. Everything else is either fixed at creation
// (demographics, balances) or derived on read (alert label).
package agent

import (
	"math/rand/v2"

	"github.com/nvandessel/bankrun/internal/constants"
)

// Kind distinguishes depositors from pure rumor carriers.
type Kind string

const (
	Customer    Kind = "customer"
	NonCustomer Kind = "non_customer"
)

// Segment is the commercial segment of a customer.
type Segment string

const (
	SegmentNone      Segment = ""
	SegmentRetail    Segment = "retail"
	SegmentVIP       Segment = "vip"
	SegmentCorporate Segment = "corporate"
)

// Segments lists the customer segments in sampling order.
var Segments = []Segment{SegmentRetail, SegmentVIP, SegmentCorporate}

// Sex is a reporting-only attribute.
type Sex string

const (
	SexMale   Sex = "H"
	SexFemale Sex = "M"
)

// AlertState is a coarse display label derived from the withdrawal fraction.
type AlertState string

const (
	Calmed    AlertState = "CALMED"
	Alert     AlertState = "ALERT"
	Withdrawn AlertState = "WITHDRAWN"
)

// Payer releases cash to a withdrawing customer. Pay returns the amount
// actually paid, which may be less than requested.
type Payer interface {
	Pay(amount float64) float64
}

// Agent is a single node of the social graph.
type Agent struct {
	ID   int  `json:"id"`
	Kind Kind `json:"kind"`

	// Segment is SegmentNone for non-customers.
	Segment Segment `json:"segment,omitempty"`

	InitialBalance float64 `json:"initial_balance"`
	Balance        float64 `json:"balance"`

	// Fraction is the share of InitialBalance already withdrawn. For
	// non-customers it is an abstract rumor intensity. Never decreases.
	Fraction float64 `json:"withdrawal_fraction"`

	Age             int     `json:"age"`
	DigitalAffinity float64 `json:"digital_affinity"`
	RiskAversion    float64 `json:"risk_aversion"`

	// Informed flips to true once and stays true.
	Informed bool `json:"news_reached"`

	// Reporting-only attributes. Never read by decision logic.
	Sex     Sex     `json:"sex"`
	Loyalty float64 `json:"loyalty"`
	Insured bool    `json:"insured"`
}

// IsCustomer reports whether the agent holds a deposit.
func (a *Agent) IsCustomer() bool {
	return a.Kind == Customer
}

// AlertState projects the withdrawal fraction onto a display label.
func (a *Agent) AlertState() AlertState {
	if a.IsCustomer() {
		switch {
		case a.Fraction >= constants.CustomerWithdrawnThreshold:
			return Withdrawn
		case a.Fraction >= constants.CustomerAlertThreshold:
			return Alert
		}
		return Calmed
	}
	if a.Fraction >= constants.NonCustomerAlertThreshold {
		return Alert
	}
	return Calmed
}

// AgeBracket returns "<35", "35-60" or ">60".
func (a *Agent) AgeBracket() string {
	return AgeBracket(a.Age)
}

// AgeBracket classifies an age into the reporting brackets.
func AgeBracket(age int) string {
	switch {
	case age < constants.YoungAgeLimit:
		return "<35"
	case age > constants.SeniorAgeLimit:
		return ">60"
	}
	return "35-60"
}

// Diffuse draws the news-diffusion coin. The draw is consumed whether or
// not the agent is already informed, so the random stream does not depend
// on diffusion outcomes. Returns true when the agent became informed on
// this call.
func (a *Agent) Diffuse(rng *rand.Rand, rate float64) bool {
	u := rng.Float64()
	if a.Informed {
		return false
	}
	if u < rate*a.DigitalAffinity {
		a.Informed = true
		return true
	}
	return false
}

// Withdraw advances the agent toward target.
//
// Customers request (target-Fraction)*InitialBalance from bank and move by
// the amount actually paid. Non-customers move straight to target. Returns
// the money paid out. A target at or below the current fraction is a no-op.
func (a *Agent) Withdraw(target float64, bank Payer) float64 {
	if target <= a.Fraction {
		return 0
	}
	if !a.IsCustomer() {
		a.Fraction = min(target, 1)
		return 0
	}
	if a.InitialBalance <= 0 {
		return 0
	}

	requested := (target - a.Fraction) * a.InitialBalance
	paid := bank.Pay(requested)
	if paid <= 0 {
		return 0
	}
	a.Balance -= paid
	a.Fraction += paid / a.InitialBalance
	if a.Fraction > 1 {
		a.Fraction = 1
	}
	if a.Balance < 0 {
		a.Balance = 0
	}
	return paid
}

// Clone returns a copy of the agent.
func (a *Agent) Clone() *Agent {
	c := *a
	return &c
}
