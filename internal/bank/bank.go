// Package bank implements the shared ledger every customer withdraws from.
package bank

import (
	"fmt"
	"math"
)

// Bank tracks cash on hand against the deposits it owes.
//
// Liquidity only ever decreases and never goes below zero. TotalDeposits is
// a derived figure refreshed by Reconcile from the agents' balances.
type Bank struct {
	initialDeposits  float64
	initialLiquidity float64
	reserveRatio     float64
	outstandingLoans float64

	liquidity     float64
	totalDeposits float64
	paidOut       float64
}

// New creates a bank holding reserveRatio of deposits as cash. The rest is
// booked as outstanding loans.
func New(deposits, reserveRatio float64) (*Bank, error) {
	if deposits < 0 || math.IsNaN(deposits) || math.IsInf(deposits, 0) {
		return nil, fmt.Errorf("bank: invalid deposits %v", deposits)
	}
	if !(reserveRatio > 0 && reserveRatio < 1) {
		return nil, fmt.Errorf("bank: reserve ratio %v outside (0,1)", reserveRatio)
	}
	liquidity := deposits * reserveRatio
	return &Bank{
		initialDeposits:  deposits,
		initialLiquidity: liquidity,
		reserveRatio:     reserveRatio,
		outstandingLoans: deposits - liquidity,
		liquidity:        liquidity,
		totalDeposits:    deposits,
	}, nil
}

// Pay releases up to amount in cash and returns what was actually paid.
// Requests beyond remaining liquidity are partially filled.
func (b *Bank) Pay(amount float64) float64 {
	if amount <= 0 || b.liquidity <= 0 {
		return 0
	}
	paid := math.Min(amount, b.liquidity)
	b.liquidity -= paid
	b.paidOut += paid
	return paid
}

// Reconcile floors liquidity at zero and refreshes total deposits from the
// sum of customer balances.
func (b *Bank) Reconcile(customerBalances float64) {
	if b.liquidity < 0 {
		b.liquidity = 0
	}
	b.totalDeposits = customerBalances
}

// Defaulted reports whether a bank that started with cash has run out.
// A bank with no initial liquidity never defaults.
func (b *Bank) Defaulted() bool {
	return b.initialLiquidity > 0 && b.liquidity <= 0
}

// Fear returns the depletion share 1 - liquidity/initial, clamped to [0,1].
func (b *Bank) Fear() float64 {
	if b.initialLiquidity <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, 1-b.liquidity/b.initialLiquidity))
}

// Liquidity returns the cash currently available for withdrawals.
func (b *Bank) Liquidity() float64 { return b.liquidity }

// InitialLiquidity returns the cash held at creation, deposits times the reserve ratio.
func (b *Bank) InitialLiquidity() float64 { return b.initialLiquidity }

// InitialDeposits returns the customer deposits at creation.
func (b *Bank) InitialDeposits() float64 { return b.initialDeposits }

// TotalDeposits returns the customer balances as of the last Reconcile.
func (b *Bank) TotalDeposits() float64 { return b.totalDeposits }

// OutstandingLoans returns the deposits lent out at creation. It never changes.
func (b *Bank) OutstandingLoans() float64 { return b.outstandingLoans }

// ReserveRatio returns the share of deposits kept as cash at creation.
func (b *Bank) ReserveRatio() float64 { return b.reserveRatio }

// PaidOut is the cumulative cash released since creation.
func (b *Bank) PaidOut() float64 { return b.paidOut }

// State is a read-only copy of the ledger.
type State struct {
	Liquidity        float64 `json:"liquidity"`
	InitialLiquidity float64 `json:"initial_liquidity"`
	TotalDeposits    float64 `json:"total_deposits"`
	OutstandingLoans float64 `json:"outstanding_loans"`
	ReserveRatio     float64 `json:"reserve_ratio"`
	PaidOut          float64 `json:"paid_out"`
}

// State returns a copy of the ledger.
func (b *Bank) State() State {
	return State{
		Liquidity:        b.liquidity,
		InitialLiquidity: b.initialLiquidity,
		TotalDeposits:    b.totalDeposits,
		OutstandingLoans: b.outstandingLoans,
		ReserveRatio:     b.reserveRatio,
		PaidOut:          b.paidOut,
	}
}
