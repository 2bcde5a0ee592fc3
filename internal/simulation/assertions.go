package simulation

import (
	"math"
	"testing"
)

const tolerance = 1e-6

// AssertBalanceIdentity asserts that every customer satisfies
// balance + fraction*initial == initial in every captured state.
func AssertBalanceIdentity(t *testing.T, result ScenarioResult) {
	t.Helper()
	for _, s := range result.States() {
		for _, a := range s.Agents {
			if !a.IsCustomer() {
				if a.Balance != 0 || a.InitialBalance != 0 {
					t.Errorf("AssertBalanceIdentity: turn %d: non-customer %d holds money (%.2f/%.2f)", s.Turn, a.ID, a.Balance, a.InitialBalance)
				}
				continue
			}
			got := a.Balance + a.Fraction*a.InitialBalance
			if math.Abs(got-a.InitialBalance) > tolerance*math.Max(1, a.InitialBalance) {
				t.Errorf("AssertBalanceIdentity: turn %d: agent %d balance %.6f + %.6f*%.6f != %.6f", s.Turn, a.ID, a.Balance, a.Fraction, a.InitialBalance, a.InitialBalance)
			}
		}
	}
}

// AssertFractionsNonDecreasing asserts that no agent's withdrawal fraction
// ever decreases and that every fraction stays in [0,1].
func AssertFractionsNonDecreasing(t *testing.T, result ScenarioResult) {
	t.Helper()
	states := result.States()
	for i, s := range states {
		for j, a := range s.Agents {
			if a.Fraction < 0 || a.Fraction > 1+tolerance {
				t.Errorf("AssertFractionsNonDecreasing: turn %d: agent %d fraction %.6f outside [0,1]", s.Turn, a.ID, a.Fraction)
			}
			if i == 0 {
				continue
			}
			prev := states[i-1].Agents[j].Fraction
			if a.Fraction < prev {
				t.Errorf("AssertFractionsNonDecreasing: turn %d: agent %d fraction %.6f < previous %.6f", s.Turn, a.ID, a.Fraction, prev)
			}
		}
	}
}

// AssertInformedMonotone asserts that news_reached never flips back to false.
func AssertInformedMonotone(t *testing.T, result ScenarioResult) {
	t.Helper()
	states := result.States()
	for i := 1; i < len(states); i++ {
		for j, a := range states[i].Agents {
			if states[i-1].Agents[j].Informed && !a.Informed {
				t.Errorf("AssertInformedMonotone: turn %d: agent %d lost news_reached", states[i].Turn, a.ID)
			}
		}
	}
}

// AssertLiquidityNonNegative asserts liquidity >= 0 after every turn.
func AssertLiquidityNonNegative(t *testing.T, result ScenarioResult) {
	t.Helper()
	for _, s := range result.States() {
		if s.Bank.Liquidity < 0 {
			t.Errorf("AssertLiquidityNonNegative: turn %d: liquidity %.6f < 0", s.Turn, s.Bank.Liquidity)
		}
	}
}

// AssertLiquidityNonIncreasing asserts that liquidity never grows.
func AssertLiquidityNonIncreasing(t *testing.T, result ScenarioResult) {
	t.Helper()
	states := result.States()
	for i := 1; i < len(states); i++ {
		if states[i].Bank.Liquidity > states[i-1].Bank.Liquidity {
			t.Errorf("AssertLiquidityNonIncreasing: turn %d: liquidity rose from %.2f to %.2f", states[i].Turn, states[i-1].Bank.Liquidity, states[i].Bank.Liquidity)
		}
	}
}

// AssertDepositsReconciled asserts that the bank's total deposits match the
// sum of customer balances in every state.
func AssertDepositsReconciled(t *testing.T, result ScenarioResult) {
	t.Helper()
	for _, s := range result.States() {
		sum := 0.0
		for _, a := range s.Agents {
			if a.IsCustomer() {
				sum += a.Balance
			}
		}
		if math.Abs(sum-s.Bank.TotalDeposits) > tolerance*math.Max(1, sum) {
			t.Errorf("AssertDepositsReconciled: turn %d: bank deposits %.2f != customer balances %.2f", s.Turn, s.Bank.TotalDeposits, sum)
		}
	}
}

// AssertNoneInformed asserts that the news never reached anyone.
func AssertNoneInformed(t *testing.T, result ScenarioResult) {
	t.Helper()
	for _, s := range result.States() {
		for _, a := range s.Agents {
			if a.Informed {
				t.Errorf("AssertNoneInformed: turn %d: agent %d informed", s.Turn, a.ID)
				return
			}
		}
	}
}

// AssertLiquidityUnchanged asserts that liquidity stays at its initial value
// for the full turn ceiling.
func AssertLiquidityUnchanged(t *testing.T, result ScenarioResult) {
	t.Helper()
	want := result.Initial.Bank.InitialLiquidity
	if len(result.Turns) == 0 {
		t.Errorf("AssertLiquidityUnchanged: no turns executed")
	}
	for _, s := range result.Turns {
		if s.Bank.Liquidity != want {
			t.Errorf("AssertLiquidityUnchanged: turn %d: liquidity %.2f != initial %.2f", s.Turn, s.Bank.Liquidity, want)
			return
		}
	}
	if result.Run != nil && result.Run.Defaulted {
		t.Error("AssertLiquidityUnchanged: run defaulted")
	}
}

// AssertDefaultsWithin asserts that the run reached zero liquidity within
// maxTurns turns.
func AssertDefaultsWithin(t *testing.T, result ScenarioResult, maxTurns int) {
	t.Helper()
	if result.Run == nil || !result.Run.Defaulted {
		t.Errorf("AssertDefaultsWithin: run did not default (final liquidity %.2f)", result.Final().Bank.Liquidity)
		return
	}
	if result.Run.CollapseTurn >= maxTurns {
		t.Errorf("AssertDefaultsWithin: collapsed on turn %d, want < %d", result.Run.CollapseTurn, maxTurns)
	}
}

// AssertInvariants runs every trajectory-wide invariant check.
func AssertInvariants(t *testing.T, result ScenarioResult) {
	t.Helper()
	AssertBalanceIdentity(t, result)
	AssertFractionsNonDecreasing(t, result)
	AssertInformedMonotone(t, result)
	AssertLiquidityNonNegative(t, result)
	AssertLiquidityNonIncreasing(t, result)
	AssertDepositsReconciled(t, result)
}
