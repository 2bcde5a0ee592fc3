// Package montecarlo runs many independent bank-run trajectories and folds
// them into risk statistics: default probability, collapse-time
// distribution, mean trajectories and per-segment breakdowns.
//
// Runs share nothing. Each run draws from its own PCG stream keyed by
// (batch seed, run index), so results are bit-identical for a given seed
// regardless of worker count or scheduling.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/bankrun/internal/agent"
	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/logging"
	"github.com/nvandessel/bankrun/internal/simulation"
)

// ErrNoRuns is returned when a batch asks for fewer than one run.
var ErrNoRuns = errors.New("montecarlo: batch needs at least one run")

// Options controls a batch.
type Options struct {
	// Runs is the number of independent trajectories.
	Runs int `json:"runs" yaml:"runs"`

	// Workers bounds parallelism. Zero or negative means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// Seed keys every run's random stream.
	Seed uint64 `json:"seed" yaml:"seed"`

	// SegmentScope picks the runs feeding the segment breakdown. Empty
	// means SegmentScopeLast.
	SegmentScope constants.SegmentScope `json:"segment_scope" yaml:"segment_scope"`

	// KeepSeries retains every run's padded series in the result.
	KeepSeries bool `json:"keep_series" yaml:"keep_series"`
}

// DefaultOptions returns a 100-run batch with seed 1.
func DefaultOptions() Options {
	return Options{
		Runs:         constants.DefaultRuns,
		Seed:         1,
		SegmentScope: constants.SegmentScopeLast,
	}
}

// Validate checks the batch options.
func (o Options) Validate() error {
	if o.Runs < 1 {
		return fmt.Errorf("%w: runs=%d", ErrNoRuns, o.Runs)
	}
	if o.SegmentScope != "" && !o.SegmentScope.Valid() {
		return fmt.Errorf("montecarlo: unknown segment scope %q", o.SegmentScope)
	}
	return nil
}

// Harness executes batches.
type Harness struct {
	logger *slog.Logger
	turns  *logging.TurnLogger
}

// New creates a harness with logging disabled.
func New() *Harness {
	return &Harness{}
}

// SetLogger sets the structured logger and turn trace for observability.
// Both are shared by every run of a batch.
func (h *Harness) SetLogger(logger *slog.Logger, turns *logging.TurnLogger) {
	h.logger = logger
	h.turns = turns
}

// RunBatch runs a batch with a default harness.
func RunBatch(ctx context.Context, params simulation.Params, opts Options) (*BatchResult, error) {
	return New().Run(ctx, params, opts)
}

// runOutput is what a single worker hands back.
type runOutput struct {
	result *simulation.RunResult
	groups groupSums
}

// Run executes opts.Runs independent trajectories and aggregates them.
func (h *Harness) Run(ctx context.Context, params simulation.Params, opts Options) (*BatchResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if opts.SegmentScope == "" {
		opts.SegmentScope = constants.SegmentScopeLast
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	if h.logger != nil {
		h.logger.Info("batch started", "runs", opts.Runs, "workers", workers, "seed", opts.Seed, "nodes", params.Nodes)
	}

	outputs := make([]runOutput, opts.Runs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < opts.Runs; i++ {
		g.Go(func() error {
			out, err := h.runOne(gctx, params, opts, i)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := aggregate(params, opts, outputs)
	result.Elapsed = time.Since(start)

	if h.logger != nil {
		h.logger.Info("batch complete",
			"runs", opts.Runs,
			"default_probability", result.DefaultProbability,
			"max_turns", result.Turns,
			"elapsed", result.Elapsed,
		)
	}
	return result, nil
}

func (h *Harness) runOne(ctx context.Context, params simulation.Params, opts Options, index int) (runOutput, error) {
	e, err := simulation.New(params, opts.Seed, uint64(index))
	if err != nil {
		return runOutput{}, err
	}
	if h.logger != nil || h.turns != nil {
		e.SetLogger(h.logger, h.turns, fmt.Sprintf("run-%d", index))
	}
	res, err := e.Run(ctx, nil)
	if err != nil {
		return runOutput{}, err
	}

	out := runOutput{result: res}
	if opts.SegmentScope == constants.SegmentScopeAll || index == opts.Runs-1 {
		out.groups = groupAgents(e.Agents())
	}
	if h.logger != nil {
		h.logger.Debug("run complete", "run", index, "turns", len(res.Records), "defaulted", res.Defaulted)
	}
	return out, nil
}

// groupSums accumulates withdrawal fractions per (dimension, value).
type groupSums map[groupKey]*groupSum

type groupKey struct {
	dimension string
	value     string
}

type groupSum struct {
	agents    int
	fraction  float64
	withdrawn int
}

func (s groupSums) add(dimension, value string, a *agent.Agent) {
	k := groupKey{dimension, value}
	g, ok := s[k]
	if !ok {
		g = &groupSum{}
		s[k] = g
	}
	g.agents++
	g.fraction += a.Fraction
	if a.AlertState() == agent.Withdrawn {
		g.withdrawn++
	}
}

func (s groupSums) merge(other groupSums) {
	for k, v := range other {
		g, ok := s[k]
		if !ok {
			g = &groupSum{}
			s[k] = g
		}
		g.agents += v.agents
		g.fraction += v.fraction
		g.withdrawn += v.withdrawn
	}
}

// groupAgents buckets a population by every categorical attribute.
func groupAgents(agents []*agent.Agent) groupSums {
	s := groupSums{}
	for _, a := range agents {
		s.add(DimensionAge, a.AgeBracket(), a)
		s.add(DimensionKind, string(a.Kind), a)
		s.add(DimensionSex, string(a.Sex), a)
		if a.IsCustomer() {
			s.add(DimensionSegment, string(a.Segment), a)
			insured := "uninsured"
			if a.Insured {
				insured = "insured"
			}
			s.add(DimensionInsured, insured, a)
		}
	}
	return s
}
