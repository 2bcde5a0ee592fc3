package simulation

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nvandessel/bankrun/internal/logging"
	"github.com/nvandessel/bankrun/internal/network"
)

func TestEngine_Invariants(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		seed   uint64
	}{
		{"defaults", DefaultParams(), 1},
		{"defaults other seed", DefaultParams(), 99},
		{"sync", WithParams(Sync), 1},
		{"many carriers", WithParams(func(p *Params) { p.NonCustomerFraction = 0.6 }), 3},
		{"raw balances", WithParams(Deposits(0)), 4},
		{"full news", WithParams(FullNews), 5},
		{"full news sync", WithParams(FullNews, Sync), 5},
		{"thin reserve", WithParams(func(p *Params) { p.ReserveRatio = 0.01 }), 6},
		{"small network", WithParams(Nodes(4)), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(t)
			result := r.Run(Scenario{Name: tt.name, Params: tt.params, Seed: tt.seed})
			AssertInvariants(t, result)

			if len(result.Turns) == 0 {
				t.Fatal("no turns executed")
			}
			if !result.Run.Defaulted && len(result.Turns) != tt.params.MaxTurns {
				t.Errorf("run stopped after %d turns without default, ceiling %d", len(result.Turns), tt.params.MaxTurns)
			}
			for i, rec := range result.Run.Records {
				if rec.Turn != i {
					t.Errorf("record %d has turn %d", i, rec.Turn)
				}
			}
		})
	}
}

func TestScenario_SilentNewsNeverInforms(t *testing.T) {
	r := NewRunner(t)
	result := r.Run(Scenario{
		Name: "silent",
		Params: WithParams(Nodes(50), OnlyCustomers, NoNews, func(p *Params) {
			p.ReserveRatio = 0.10
		}),
		Seed: 2024,
	})

	AssertNoneInformed(t, result)
	AssertLiquidityUnchanged(t, result)
	AssertInvariants(t, result)
	if len(result.Turns) != DefaultParams().MaxTurns {
		t.Errorf("turns = %d, want full ceiling %d", len(result.Turns), DefaultParams().MaxTurns)
	}
	if w := result.Final().Bank.PaidOut; w != 0 {
		t.Errorf("paid out %.2f, want 0", w)
	}
}

func TestScenario_FullNewsCollapses(t *testing.T) {
	params := WithParams(Nodes(200), Deposits(10_000_000), OnlyCustomers, FullNews, func(p *Params) {
		p.ReserveRatio = 0.10
	})

	r := NewRunner(t)
	result := r.Run(Scenario{Name: "full-news", Params: params, Seed: 17})

	if l0 := result.Initial.Bank.InitialLiquidity; l0 < 999_999 || l0 > 1_000_001 {
		t.Fatalf("initial liquidity = %.2f, want 1,000,000", l0)
	}
	first := result.Turns[0]
	if first.Bank.Liquidity >= result.Initial.Bank.Liquidity {
		t.Errorf("liquidity did not decrease on turn 0: %.2f", first.Bank.Liquidity)
	}
	AssertDefaultsWithin(t, result, 5)
	AssertInvariants(t, result)

	// Reproducible for the same seed.
	again := r.Run(Scenario{Name: "full-news-again", Params: params, Seed: 17})
	if again.Run.CollapseTurn != result.Run.CollapseTurn {
		t.Errorf("collapse turn %d vs %d for the same seed", again.Run.CollapseTurn, result.Run.CollapseTurn)
	}
}

// With diffusion at 1 an agent hears the news with probability equal to its
// digital affinity, so the turn-0 informed set is exactly the agents whose
// diffusion draw fell below their affinity. Replaying the engine's stream
// from a copy of its generator recovers those draws.
func TestScenario_FullNewsInformsByAffinity(t *testing.T) {
	params := WithParams(Nodes(200), Deposits(10_000_000), OnlyCustomers, FullNews, func(p *Params) {
		p.ReserveRatio = 0.10
	})

	for _, seed := range []uint64{1, 2, 3, 17} {
		src := rand.NewPCG(seed, 0)
		e, err := NewWithRand(params, rand.New(src))
		if err != nil {
			t.Fatalf("seed %d: NewWithRand() error = %v", seed, err)
		}

		replay := *src
		rr := rand.New(&replay)
		before := e.Agents()
		want := make([]bool, len(before))
		wantCount := 0
		for _, id := range rr.Perm(len(before)) {
			if rr.Float64() < params.DiffusionRate*before[id].DigitalAffinity {
				want[id] = true
				wantCount++
			}
		}

		rec, err := e.Step()
		if err != nil {
			t.Fatalf("seed %d: Step() error = %v", seed, err)
		}
		if rec.Informed != wantCount {
			t.Errorf("seed %d: informed = %d, want %d", seed, rec.Informed, wantCount)
		}
		for id, a := range e.Agents() {
			if a.Informed != want[id] {
				t.Errorf("seed %d: agent %d (age %d) informed = %v, want %v", seed, id, a.Age, a.Informed, want[id])
			}
		}
		if wantCount == len(before) {
			t.Errorf("seed %d: every agent informed on turn 0, affinity below 1 should leave some out", seed)
		}
	}
}

func TestScenario_IsolatedAgentIgnoresNeighbours(t *testing.T) {
	// Node 0 is isolated; nodes 1..9 form a clique.
	var edges [][2]int
	for u := 1; u < 10; u++ {
		for v := u + 1; v < 10; v++ {
			edges = append(edges, [2]int{u, v})
		}
	}
	params := WithParams(Nodes(10), FullNews)

	r := NewRunner(t)
	result := r.Run(Scenario{Name: "isolated", Params: params, Seed: 8, Edges: edges})
	AssertInvariants(t, result)

	model := params.Model()
	for _, s := range result.States() {
		iso := s.Agents[0].Agent
		if s.Agents[0].Degree != 0 {
			t.Fatalf("agent 0 degree = %d, want 0", s.Agents[0].Degree)
		}
		// Upper bound: informed, zero social ratio, maximal fear.
		probe := iso
		probe.Informed = true
		bound := probe.Target(model, 0, 1)
		if iso.Fraction > bound+1e-9 {
			t.Errorf("turn %d: isolated agent fraction %.6f exceeds zero-social bound %.6f", s.Turn, iso.Fraction, bound)
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	run := func(seed, stream uint64) []TurnRecord {
		e, err := New(DefaultParams(), seed, stream)
		if err != nil {
			t.Fatal(err)
		}
		res, err := e.Run(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		return res.Records
	}

	a, b := run(42, 3), run(42, 3)
	if !slices.Equal(a, b) {
		t.Error("same seed produced different trajectories")
	}
	if c := run(42, 4); slices.Equal(a, c) {
		t.Error("different streams produced identical trajectories")
	}
}

func TestEngine_Monotonicity(t *testing.T) {
	base := WithParams(Nodes(120), func(p *Params) {
		p.MaxTurns = 30
		p.NewsScore = 0.5
		p.NewsCredibility = 0.5
		p.DiffusionRate = 0.2
	})

	knobs := []struct {
		name string
		set  func(*Params, float64)
	}{
		{"news score", func(p *Params, v float64) { p.NewsScore = v }},
		{"news credibility", func(p *Params, v float64) { p.NewsCredibility = v }},
		{"diffusion rate", func(p *Params, v float64) { p.DiffusionRate = v }},
	}
	levels := []float64{0, 0.25, 0.5, 0.75, 1}

	for _, knob := range knobs {
		for _, mode := range []func(*Params){func(*Params) {}, Sync} {
			for seed := uint64(1); seed <= 4; seed++ {
				prev := -1.0
				for _, level := range levels {
					p := base
					mode(&p)
					knob.set(&p, level)

					e, err := New(p, seed, 0)
					if err != nil {
						t.Fatal(err)
					}
					res, err := e.Run(context.Background(), nil)
					if err != nil {
						t.Fatal(err)
					}
					withdrawn := res.Records[len(res.Records)-1].Withdrawn
					if withdrawn < prev-1e-6*e.Bank().InitialLiquidity {
						t.Errorf("%s=%.2f seed %d mode %s: withdrawn %.2f < %.2f at lower level",
							knob.name, level, seed, p.UpdateMode, withdrawn, prev)
					}
					prev = withdrawn
				}
			}
		}
	}
}

func TestEngine_StepAfterDone(t *testing.T) {
	e, err := New(WithParams(NoNews, func(p *Params) { p.MaxTurns = 2 }), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := e.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if !e.Done() {
		t.Fatal("engine should be done at the ceiling")
	}
	if _, err := e.Step(); !errors.Is(err, ErrRunFinished) {
		t.Errorf("Step after done = %v, want ErrRunFinished", err)
	}
	if e.Turn() != 2 || len(e.History()) != 2 {
		t.Errorf("turn = %d, history = %d", e.Turn(), len(e.History()))
	}
}

func TestEngine_RunCancelled(t *testing.T) {
	e, err := New(DefaultParams(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestEngine_NoCustomersNeverDefaults(t *testing.T) {
	p := WithParams(FullNews, func(p *Params) {
		p.NonCustomerFraction = 1
		p.MaxTurns = 10
	})
	e, err := New(p, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Defaulted || res.CollapseTurn != -1 {
		t.Errorf("bank without customers defaulted: %+v", res)
	}
	if len(res.Records) != 10 {
		t.Errorf("records = %d, want 10", len(res.Records))
	}
	if last := res.Records[9]; last.AlertNonCustomers == 0 {
		t.Error("expected rumor carriers to reach ALERT under full news")
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(WithParams(Nodes(2)), 1, 1); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("New with 2 nodes = %v, want ErrInvalidParams", err)
	}
	if _, err := NewWithRand(DefaultParams(), nil); err == nil {
		t.Error("NewWithRand(nil) should fail")
	}

	g, _ := network.FromEdges(5, nil)
	if _, err := NewWithGraph(DefaultParams(), g, nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("node count mismatch = %v, want ErrInvalidParams", err)
	}
	if _, err := NewWithGraph(DefaultParams(), nil, nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("nil graph = %v, want ErrInvalidParams", err)
	}
}

func TestSnapshot(t *testing.T) {
	e, err := New(DefaultParams(), 10, 0)
	if err != nil {
		t.Fatal(err)
	}

	s := e.Snapshot()
	if s.Turn != 0 || s.Done || s.Defaulted || s.Last != nil {
		t.Errorf("fresh snapshot = turn %d done %v defaulted %v last %v", s.Turn, s.Done, s.Defaulted, s.Last)
	}
	if len(s.Agents) != 200 {
		t.Fatalf("agents = %d, want 200", len(s.Agents))
	}
	h := s.Headline
	if h.Customers+h.NonCustomers != 200 {
		t.Errorf("headline counts %d + %d != 200", h.Customers, h.NonCustomers)
	}
	if h.NewsReach != 0 || h.WithdrawalRate != 0 || h.LiquidityRemaining != 1 {
		t.Errorf("fresh headline = %+v", h)
	}
	if s.Bank.OutstandingLoans+s.Bank.InitialLiquidity-s.Bank.TotalDeposits > 1e-6 {
		t.Errorf("loans %.2f + liquidity %.2f != deposits %.2f", s.Bank.OutstandingLoans, s.Bank.InitialLiquidity, s.Bank.TotalDeposits)
	}

	// Snapshot is a copy.
	s.Agents[0].Fraction = 0.99
	if e.Snapshot().Agents[0].Fraction != 0 {
		t.Error("mutating a snapshot changed engine state")
	}

	if _, err := e.Step(); err != nil {
		t.Fatal(err)
	}
	s = e.Snapshot()
	if s.Turn != 1 || s.Last == nil || s.Last.Turn != 0 {
		t.Errorf("after one step: turn %d last %+v", s.Turn, s.Last)
	}
	for _, a := range s.Agents {
		if a.Alert != a.AlertState() {
			t.Errorf("agent %d alert %s != derived %s", a.ID, a.Alert, a.AlertState())
		}
	}
}

func TestEngine_Logging(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	turns := logging.NewTurnLogger(dir, "trace")
	defer turns.Close()

	e, err := New(WithParams(Nodes(10), NoNews, func(p *Params) { p.MaxTurns = 3 }), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	e.SetLogger(logging.NewLogger("trace", &buf), turns, "run-0")
	if _, err := e.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "turn complete") || !strings.Contains(out, "agent step") {
		t.Errorf("expected turn and agent logs, got %q", out)
	}
	if !strings.Contains(out, "run=run-0") {
		t.Error("expected run label in logs")
	}

	data, err := os.ReadFile(filepath.Join(dir, "turns.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Errorf("turn trace has %d lines, want 3", lines)
	}
}

func TestEngine_TraceDisabledDoesNotAllocate(t *testing.T) {
	e, err := New(WithParams(Nodes(10), NoNews), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := e.Step()
	if err != nil {
		t.Fatal(err)
	}
	if allocs := testing.AllocsPerRun(100, func() { e.trace(rec) }); allocs != 0 {
		t.Errorf("trace with no logger or turn trace allocated %.0f times per call", allocs)
	}
}
