package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/ratelimit"
	"github.com/nvandessel/bankrun/internal/simulation"
	"github.com/nvandessel/bankrun/internal/store"
	"github.com/nvandessel/bankrun/internal/visualization"
)

const (
	configResourceURI = "bankrun://config/default"

	// maxToolRuns caps the runs a single bankrun_batch call may ask for.
	maxToolRuns = 2000

	// maxToolNodes caps the network size of any tool call.
	maxToolNodes = 20_000

	defaultHistoryLimit = 20
)

// registerTools registers all bankrun MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bankrun_simulate",
		Description: "Run one bank-run simulation to completion and report whether and when the bank defaulted",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bankrun_batch",
		Description: "Run a Monte-Carlo batch, store the report, and return default probability and collapse statistics",
	}, s.handleBatch)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bankrun_history",
		Description: "List stored batch reports, or fetch one report by ID",
	}, s.handleHistory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bankrun_network",
		Description: "Render a run's social network in DOT (Graphviz) or JSON format, optionally after some turns",
	}, s.handleNetwork)

	return nil
}

// registerResources registers MCP resources.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         configResourceURI,
		Name:        "bankrun-default-config",
		Description: "Default simulation parameters and batch options applied to tool calls.",
		MIMEType:    "application/json",
	}, s.handleConfigResource)
	return nil
}

// handleConfigResource returns the defaults as JSON.
func (s *Server) handleConfigResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	data, err := json.MarshalIndent(map[string]any{
		"params": s.defaults,
		"batch":  s.batch,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      configResourceURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// params applies o to the server defaults and enforces the node cap.
func (s *Server) params(o ParamOverrides) (simulation.Params, error) {
	p := o.apply(s.defaults)
	if p.Nodes > maxToolNodes {
		return p, fmt.Errorf("nodes=%d exceeds the limit of %d", p.Nodes, maxToolNodes)
	}
	return p, nil
}

// seedOr returns *seed, or the server batch seed when unset.
func (s *Server) seedOr(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	return s.batch.Seed
}

// handleSimulate implements the bankrun_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bankrun_simulate", start, retErr, sanitizeToolParams(map[string]any{
			"nodes":      derefOr(args.Nodes, s.defaults.Nodes),
			"news_score": derefOr(args.NewsScore, s.defaults.NewsScore),
			"seed":       s.seedOr(args.Seed),
			"stream":     args.Stream,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bankrun_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	params, err := s.params(args.ParamOverrides)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	seed := s.seedOr(args.Seed)
	e, err := simulation.New(params, seed, args.Stream)
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	res, err := e.Run(ctx, nil)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("run simulation: %w", err)
	}

	snap := e.Snapshot()
	out := SimulateOutput{
		Params:    params,
		Seed:      seed,
		Stream:    args.Stream,
		Turns:     len(res.Records),
		Defaulted: res.Defaulted,
		Headline:  snap.Headline,
	}
	if snap.Last != nil {
		out.Final = *snap.Last
	}
	if res.Defaulted {
		turn := res.CollapseTurn
		out.CollapseTurn = &turn
		out.Message = fmt.Sprintf("Bank defaulted at turn %d; %.1f%% of deposits withdrawn", turn, 100*snap.Headline.WithdrawalRate)
	} else {
		out.Message = fmt.Sprintf("Bank survived %d turns with %.1f%% of its liquidity left", out.Turns, 100*snap.Headline.LiquidityRemaining)
	}
	if args.IncludeHistory {
		out.History = res.Records
	}
	return nil, out, nil
}

// handleBatch implements the bankrun_batch tool.
func (s *Server) handleBatch(ctx context.Context, req *sdk.CallToolRequest, args BatchInput) (_ *sdk.CallToolResult, _ BatchOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bankrun_batch", start, retErr, sanitizeToolParams(map[string]any{
			"nodes":         derefOr(args.Nodes, s.defaults.Nodes),
			"runs":          args.Runs,
			"seed":          s.seedOr(args.Seed),
			"segment_scope": args.SegmentScope,
			"label":         args.Label,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bankrun_batch"); err != nil {
		return nil, BatchOutput{}, err
	}

	opts := s.batch
	if args.Runs != 0 {
		opts.Runs = args.Runs
	}
	if opts.Runs > maxToolRuns {
		return nil, BatchOutput{}, fmt.Errorf("runs=%d exceeds the limit of %d", opts.Runs, maxToolRuns)
	}
	opts.Seed = s.seedOr(args.Seed)
	if args.SegmentScope != "" {
		opts.SegmentScope = constants.SegmentScope(args.SegmentScope)
	}
	// Per-run series are large and not part of the tool output.
	opts.KeepSeries = false

	params, err := s.params(args.ParamOverrides)
	if err != nil {
		return nil, BatchOutput{}, err
	}
	res, err := s.harness.Run(ctx, params, opts)
	if err != nil {
		return nil, BatchOutput{}, err
	}

	report := store.NewReport(args.Label, res)
	if err := s.store.Save(ctx, report); err != nil {
		return nil, BatchOutput{}, fmt.Errorf("save report: %w", err)
	}
	s.logger.Info("batch report stored", "id", report.ID, "runs", opts.Runs, "default_probability", res.DefaultProbability)

	return nil, batchOutput(report), nil
}

// batchOutput projects a stored report onto the tool output.
func batchOutput(r *store.Report) BatchOutput {
	res := r.Result
	out := BatchOutput{
		ReportID:             r.ID,
		Runs:                 res.Options.Runs,
		Turns:                res.Turns,
		DefaultProbability:   res.DefaultProbability,
		MeanCollapseTurn:     res.MeanCollapseTurn,
		Collapse:             res.Collapse,
		FinalLiquidityMean:   res.FinalLiquidityMean,
		FinalLiquidityStdDev: res.FinalLiquidityStdDev,
		Segments:             res.Segment(montecarlo.DimensionSegment),
	}
	if res.MeanCollapseTurn != nil {
		out.Message = fmt.Sprintf("Bank defaulted in %.1f%% of %d runs, on average at turn %.1f",
			100*res.DefaultProbability, res.Options.Runs, *res.MeanCollapseTurn)
	} else {
		out.Message = fmt.Sprintf("Bank survived all %d runs", res.Options.Runs)
	}
	return out
}

// handleHistory implements the bankrun_history tool.
func (s *Server) handleHistory(ctx context.Context, req *sdk.CallToolRequest, args HistoryInput) (_ *sdk.CallToolResult, _ HistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bankrun_history", start, retErr, sanitizeToolParams(map[string]any{
			"id":    args.ID,
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bankrun_history"); err != nil {
		return nil, HistoryOutput{}, err
	}

	if args.ID != "" {
		report, err := s.store.Get(ctx, args.ID)
		if err != nil {
			return nil, HistoryOutput{}, err
		}
		out := batchOutput(report)
		return nil, HistoryOutput{Report: &out, Count: 1}, nil
	}

	if args.Limit < 0 {
		return nil, HistoryOutput{}, fmt.Errorf("limit must be non-negative, got %d", args.Limit)
	}
	limit := args.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	summaries, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("list reports: %w", err)
	}
	return nil, HistoryOutput{Reports: summaries, Count: len(summaries)}, nil
}

// handleNetwork implements the bankrun_network tool.
func (s *Server) handleNetwork(ctx context.Context, req *sdk.CallToolRequest, args NetworkInput) (_ *sdk.CallToolResult, _ NetworkOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bankrun_network", start, retErr, sanitizeToolParams(map[string]any{
			"nodes":  derefOr(args.Nodes, s.defaults.Nodes),
			"seed":   s.seedOr(args.Seed),
			"turns":  args.Turns,
			"format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "bankrun_network"); err != nil {
		return nil, NetworkOutput{}, err
	}

	if args.Format == "" {
		args.Format = string(visualization.FormatJSON)
	}
	format, err := visualization.ParseFormat(args.Format)
	if err != nil {
		return nil, NetworkOutput{}, err
	}
	if args.Turns < 0 {
		return nil, NetworkOutput{}, fmt.Errorf("turns must be non-negative, got %d", args.Turns)
	}

	params, err := s.params(args.ParamOverrides)
	if err != nil {
		return nil, NetworkOutput{}, err
	}
	e, err := simulation.New(params, s.seedOr(args.Seed), args.Stream)
	if err != nil {
		return nil, NetworkOutput{}, err
	}
	for i := 0; i < args.Turns && !e.Done(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, NetworkOutput{}, err
		}
		if _, err := e.Step(); err != nil {
			return nil, NetworkOutput{}, err
		}
	}

	doc, err := visualization.Build(e.Snapshot(), e.Graph())
	if err != nil {
		return nil, NetworkOutput{}, fmt.Errorf("build graph document: %w", err)
	}

	out := NetworkOutput{
		Format:    string(format),
		Turn:      doc.Turn,
		NodeCount: doc.NodeCount,
		EdgeCount: doc.EdgeCount,
		Stats:     doc.Network,
	}
	if format == visualization.FormatDOT {
		out.Graph = visualization.RenderDOT(doc)
	} else {
		out.Graph = doc
	}
	return nil, out, nil
}

func derefOr[T any](p *T, def T) T {
	if p != nil {
		return *p
	}
	return def
}
