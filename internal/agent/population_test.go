package agent

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestNewPopulation_Demographics(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 0))
	agents, err := NewPopulation(2000, PopulationConfig{
		NonCustomerFraction: 0.2,
		GuaranteeThreshold:  100_000,
	}, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 2000 {
		t.Fatalf("len = %d, want 2000", len(agents))
	}

	nonCustomers := 0
	segments := map[Segment]int{}
	for i, a := range agents {
		if a.ID != i {
			t.Errorf("agent %d has ID %d", i, a.ID)
		}
		if a.Age < 18 || a.Age > 95 {
			t.Errorf("agent %d age %d out of range", i, a.Age)
		}
		if want := 1 - float64(a.Age)/95; math.Abs(a.DigitalAffinity-want) > 1e-12 {
			t.Errorf("agent %d affinity %v, want %v", i, a.DigitalAffinity, want)
		}
		if a.RiskAversion < 0 || a.RiskAversion > 1 {
			t.Errorf("agent %d aversion %v out of [0,1]", i, a.RiskAversion)
		}
		if a.Loyalty < 0.1 || a.Loyalty > 0.3 {
			t.Errorf("agent %d loyalty %v out of range", i, a.Loyalty)
		}
		if a.Sex != SexMale && a.Sex != SexFemale {
			t.Errorf("agent %d sex %q", i, a.Sex)
		}
		if a.Fraction != 0 || a.Informed {
			t.Errorf("agent %d not in initial state", i)
		}

		if !a.IsCustomer() {
			nonCustomers++
			if a.Segment != SegmentNone || a.InitialBalance != 0 || a.Balance != 0 || a.Insured {
				t.Errorf("non-customer %d carries customer attributes: %+v", i, a)
			}
			continue
		}
		segments[a.Segment]++
		r := balanceRanges[a.Segment]
		if a.InitialBalance < r.min || a.InitialBalance > r.max {
			t.Errorf("customer %d %s balance %v outside [%v,%v]", i, a.Segment, a.InitialBalance, r.min, r.max)
		}
		if a.Balance != a.InitialBalance {
			t.Errorf("customer %d balance %v != initial %v", i, a.Balance, a.InitialBalance)
		}
		if a.Insured != (a.InitialBalance <= 100_000) {
			t.Errorf("customer %d insured flag inconsistent", i)
		}
	}

	if share := float64(nonCustomers) / 2000; share < 0.15 || share > 0.25 {
		t.Errorf("non-customer share %.3f, want about 0.2", share)
	}
	customers := float64(2000 - nonCustomers)
	if share := float64(segments[SegmentRetail]) / customers; share < 0.7 || share > 0.8 {
		t.Errorf("retail share %.3f, want about 0.75", share)
	}
	if segments[SegmentCorporate] == 0 {
		t.Error("expected some corporate customers")
	}
}

func TestNewPopulation_RescalesDeposits(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 0))
	agents, err := NewPopulation(200, PopulationConfig{
		NonCustomerFraction: 0.2,
		TotalDeposits:       10_000_000,
	}, rng)
	if err != nil {
		t.Fatal(err)
	}
	if got := TotalBalance(agents); math.Abs(got-10_000_000) > 1e-3 {
		t.Errorf("TotalBalance = %v, want 10,000,000", got)
	}
}

func TestNewPopulation_AllNonCustomers(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 0))
	agents, err := NewPopulation(50, PopulationConfig{NonCustomerFraction: 1, TotalDeposits: 1000}, rng)
	if err != nil {
		t.Fatal(err)
	}
	if got := TotalBalance(agents); got != 0 {
		t.Errorf("TotalBalance = %v, want 0", got)
	}
}

func TestNewPopulation_Deterministic(t *testing.T) {
	cfg := PopulationConfig{NonCustomerFraction: 0.3, TotalDeposits: 5_000_000}
	a, _ := NewPopulation(100, cfg, rand.New(rand.NewPCG(3, 4)))
	b, _ := NewPopulation(100, cfg, rand.New(rand.NewPCG(3, 4)))
	for i := range a {
		if *a[i] != *b[i] {
			t.Fatalf("agent %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestNewPopulation_KindDoesNotShiftDemographics(t *testing.T) {
	all, _ := NewPopulation(100, PopulationConfig{NonCustomerFraction: 0}, rand.New(rand.NewPCG(8, 8)))
	some, _ := NewPopulation(100, PopulationConfig{NonCustomerFraction: 0.5}, rand.New(rand.NewPCG(8, 8)))
	for i := range all {
		if all[i].Age != some[i].Age || all[i].RiskAversion != some[i].RiskAversion {
			t.Fatalf("agent %d demographics shifted with non-customer fraction", i)
		}
	}
}

func TestNewPopulation_Invalid(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	tests := []struct {
		name string
		n    int
		cfg  PopulationConfig
		rng  *rand.Rand
	}{
		{"negative size", -1, PopulationConfig{}, rng},
		{"nil rng", 10, PopulationConfig{}, nil},
		{"fraction above one", 10, PopulationConfig{NonCustomerFraction: 1.5}, rng},
		{"negative deposits", 10, PopulationConfig{TotalDeposits: -1}, rng},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPopulation(tt.n, tt.cfg, tt.rng); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAdjustAversion(t *testing.T) {
	tests := []struct {
		name string
		base float64
		age  int
		want float64
	}{
		{"young unchanged", 0.5, 30, 0.5},
		{"pivot unchanged", 0.5, 50, 0.5},
		{"oldest gets full bonus", 0.5, 95, 0.7},
		{"clamped at one", 0.9, 95, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adjustAversion(tt.base, tt.age); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("adjustAversion(%v, %d) = %v, want %v", tt.base, tt.age, got, tt.want)
			}
		})
	}
}
