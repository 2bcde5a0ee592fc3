package montecarlo

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/simulation"
)

// Breakdown dimensions.
const (
	DimensionAge     = "age"
	DimensionSegment = "segment"
	DimensionKind    = "kind"
	DimensionSex     = "sex"
	DimensionInsured = "insured"
)

var dimensionOrder = map[string][]string{
	DimensionAge:     {"<35", "35-60", ">60"},
	DimensionSegment: {"retail", "vip", "corporate"},
	DimensionKind:    {"customer", "non_customer"},
	DimensionSex:     {"H", "M"},
	DimensionInsured: {"insured", "uninsured"},
}

var dimensions = []string{DimensionAge, DimensionSegment, DimensionKind, DimensionSex, DimensionInsured}

// Series holds element-wise aligned time series. After padding every run's
// series has the batch's maximum length.
type Series struct {
	Liquidity          []float64 `json:"liquidity"`
	Withdrawn          []float64 `json:"withdrawn"`
	Informed           []float64 `json:"informed"`
	WithdrawnCustomers []float64 `json:"withdrawn_customers"`
	AlertNonCustomers  []float64 `json:"alert_non_customers"`
}

// Len returns the number of turns in the series.
func (s Series) Len() int { return len(s.Liquidity) }

// RunSummary is the headline outcome of one run.
type RunSummary struct {
	Index          int     `json:"index"`
	Turns          int     `json:"turns"`
	Defaulted      bool    `json:"defaulted"`
	CollapseTurn   int     `json:"collapse_turn"`
	FinalLiquidity float64 `json:"final_liquidity"`
	FinalWithdrawn float64 `json:"final_withdrawn"`
	FinalInformed  int     `json:"final_informed"`
}

// SegmentStat is the mean withdrawal fraction of one group of agents.
type SegmentStat struct {
	Dimension    string  `json:"dimension"`
	Value        string  `json:"value"`
	Agents       int     `json:"agents"`
	MeanFraction float64 `json:"mean_fraction"`

	// WithdrawnShare is the share of the group in the WITHDRAWN state.
	WithdrawnShare float64 `json:"withdrawn_share"`
}

// CollapseStats describes the distribution of collapse turns over the runs
// that defaulted.
type CollapseStats struct {
	// Histogram counts defaulted runs by collapse turn.
	Histogram []int `json:"histogram"`

	// Quantiles are nil when no run defaulted.
	P10 *float64 `json:"p10,omitempty"`
	P50 *float64 `json:"p50,omitempty"`
	P90 *float64 `json:"p90,omitempty"`
}

// BatchResult aggregates a batch of runs.
type BatchResult struct {
	Params  simulation.Params `json:"params"`
	Options Options           `json:"options"`

	// Turns is the longest run's length; every series is padded to it.
	Turns int `json:"turns"`

	DefaultProbability float64 `json:"default_probability"`

	// MeanCollapseTurn is nil when no run defaulted.
	MeanCollapseTurn *float64 `json:"mean_collapse_turn"`

	Mean     Series        `json:"mean"`
	Collapse CollapseStats `json:"collapse"`
	Segments []SegmentStat `json:"segments"`

	FinalLiquidityMean   float64 `json:"final_liquidity_mean"`
	FinalLiquidityStdDev float64 `json:"final_liquidity_std_dev"`

	PerRun []RunSummary `json:"per_run"`

	// RunSeries holds each run's padded series when Options.KeepSeries is set.
	RunSeries []Series `json:"run_series,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// Segment returns the stats of one dimension in display order.
func (r *BatchResult) Segment(dimension string) []SegmentStat {
	var out []SegmentStat
	for _, s := range r.Segments {
		if s.Dimension == dimension {
			out = append(out, s)
		}
	}
	return out
}

func aggregate(params simulation.Params, opts Options, outputs []runOutput) *BatchResult {
	res := &BatchResult{Params: params, Options: opts}

	maxLen := 0
	for _, o := range outputs {
		maxLen = max(maxLen, len(o.result.Records))
	}
	res.Turns = maxLen

	padded := make([]Series, len(outputs))
	finals := make([]float64, len(outputs))
	var collapses []float64
	res.Collapse.Histogram = make([]int, maxLen)

	for i, o := range outputs {
		padded[i] = pad(o.result.Records, maxLen)
		recs := o.result.Records

		sum := RunSummary{
			Index:        i,
			Turns:        len(recs),
			Defaulted:    o.result.Defaulted,
			CollapseTurn: o.result.CollapseTurn,
		}
		if n := len(recs); n > 0 {
			last := recs[n-1]
			sum.FinalLiquidity = last.Liquidity
			sum.FinalWithdrawn = last.Withdrawn
			sum.FinalInformed = last.Informed
		}
		res.PerRun = append(res.PerRun, sum)
		finals[i] = sum.FinalLiquidity

		if o.result.Defaulted {
			collapses = append(collapses, float64(o.result.CollapseTurn))
			if o.result.CollapseTurn >= 0 && o.result.CollapseTurn < maxLen {
				res.Collapse.Histogram[o.result.CollapseTurn]++
			}
		}
	}

	runs := float64(len(outputs))
	res.DefaultProbability = float64(len(collapses)) / runs
	if len(collapses) > 0 {
		mean := stat.Mean(collapses, nil)
		res.MeanCollapseTurn = &mean

		slices.Sort(collapses)
		res.Collapse.P10 = quantile(0.1, collapses)
		res.Collapse.P50 = quantile(0.5, collapses)
		res.Collapse.P90 = quantile(0.9, collapses)
	}

	res.Mean = meanSeries(padded, maxLen)
	if len(finals) > 1 {
		res.FinalLiquidityMean, res.FinalLiquidityStdDev = stat.MeanStdDev(finals, nil)
	} else {
		res.FinalLiquidityMean = finals[0]
	}

	groups := groupSums{}
	if opts.SegmentScope == constants.SegmentScopeAll {
		for _, o := range outputs {
			groups.merge(o.groups)
		}
	} else {
		groups.merge(outputs[len(outputs)-1].groups)
	}
	res.Segments = segmentStats(groups)

	if opts.KeepSeries {
		res.RunSeries = padded
	}
	return res
}

func quantile(p float64, sorted []float64) *float64 {
	q := stat.Quantile(p, stat.Empirical, sorted, nil)
	return &q
}

// pad extends a run's records to length n. Liquidity pads with zero; the
// cumulative and state counters repeat their last value.
func pad(recs []simulation.TurnRecord, n int) Series {
	s := Series{
		Liquidity:          make([]float64, n),
		Withdrawn:          make([]float64, n),
		Informed:           make([]float64, n),
		WithdrawnCustomers: make([]float64, n),
		AlertNonCustomers:  make([]float64, n),
	}
	var last simulation.TurnRecord
	for i := 0; i < n; i++ {
		if i < len(recs) {
			last = recs[i]
			s.Liquidity[i] = last.Liquidity
		}
		s.Withdrawn[i] = last.Withdrawn
		s.Informed[i] = float64(last.Informed)
		s.WithdrawnCustomers[i] = float64(last.WithdrawnCustomers)
		s.AlertNonCustomers[i] = float64(last.AlertNonCustomers)
	}
	return s
}

func meanSeries(all []Series, n int) Series {
	mean := Series{
		Liquidity:          make([]float64, n),
		Withdrawn:          make([]float64, n),
		Informed:           make([]float64, n),
		WithdrawnCustomers: make([]float64, n),
		AlertNonCustomers:  make([]float64, n),
	}
	column := make([]float64, len(all))
	avg := func(dst []float64, pick func(Series) []float64) {
		for t := 0; t < n; t++ {
			for i, s := range all {
				column[i] = pick(s)[t]
			}
			dst[t] = stat.Mean(column, nil)
		}
	}
	avg(mean.Liquidity, func(s Series) []float64 { return s.Liquidity })
	avg(mean.Withdrawn, func(s Series) []float64 { return s.Withdrawn })
	avg(mean.Informed, func(s Series) []float64 { return s.Informed })
	avg(mean.WithdrawnCustomers, func(s Series) []float64 { return s.WithdrawnCustomers })
	avg(mean.AlertNonCustomers, func(s Series) []float64 { return s.AlertNonCustomers })
	return mean
}

func segmentStats(groups groupSums) []SegmentStat {
	var out []SegmentStat
	for _, dim := range dimensions {
		for _, value := range dimensionOrder[dim] {
			g, ok := groups[groupKey{dim, value}]
			if !ok || g.agents == 0 {
				continue
			}
			out = append(out, SegmentStat{
				Dimension:      dim,
				Value:          value,
				Agents:         g.agents,
				MeanFraction:   g.fraction / float64(g.agents),
				WithdrawnShare: float64(g.withdrawn) / float64(g.agents),
			})
		}
	}
	return out
}
