// Package visualization renders run snapshots over the social network in
// formats external tools can draw.
package visualization

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/nvandessel/bankrun/internal/agent"
	"github.com/nvandessel/bankrun/internal/network"
	"github.com/nvandessel/bankrun/internal/simulation"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: dot, json)", s)
}

// PageRank parameters used to size nodes.
const (
	pageRankDamping   = 0.85
	pageRankTolerance = 1e-6
)

// Node sizes in points. The highest-ranked node gets maxNodeSize.
const (
	minNodeSize = 4.0
	maxNodeSize = 24.0
)

// stateColors maps alert states to DOT fill colors.
var stateColors = map[agent.AlertState]string{
	agent.Calmed:    "palegreen",
	agent.Alert:     "gold",
	agent.Withdrawn: "tomato",
}

// kindShapes maps agent kinds to DOT shapes.
var kindShapes = map[agent.Kind]string{
	agent.Customer:    "circle",
	agent.NonCustomer: "diamond",
}

// Node is one agent in a graph document.
type Node struct {
	ID       int              `json:"id"`
	Kind     agent.Kind       `json:"kind"`
	Segment  agent.Segment    `json:"segment,omitempty"`
	State    agent.AlertState `json:"state"`
	Fraction float64          `json:"withdrawal_fraction"`
	Balance  float64          `json:"balance"`
	Informed bool             `json:"news_reached"`
	Degree   int              `json:"degree"`
	PageRank float64          `json:"pagerank"`
	Size     float64          `json:"size"`
}

// Edge is an undirected friendship with Source < Target.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// Document is a renderable view of one snapshot.
type Document struct {
	Turn      int                 `json:"turn"`
	Done      bool                `json:"done"`
	Defaulted bool                `json:"defaulted"`
	Headline  simulation.Headline `json:"headline"`
	Network   network.Stats       `json:"network"`
	Nodes     []Node              `json:"nodes"`
	Edges     []Edge              `json:"edges"`
	NodeCount int                 `json:"node_count"`
	EdgeCount int                 `json:"edge_count"`
}

// Build joins a snapshot with the graph it was taken on. Node size scales
// with PageRank so hubs stand out.
func Build(snap simulation.Snapshot, g *network.Graph) (*Document, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if len(snap.Agents) != g.NodeCount() {
		return nil, fmt.Errorf("snapshot has %d agents but graph has %d nodes", len(snap.Agents), g.NodeCount())
	}

	rank := g.PageRank(pageRankDamping, pageRankTolerance)
	maxRank := 0.0
	if len(rank) > 0 {
		maxRank = slices.Max(rank)
	}

	doc := &Document{
		Turn:      snap.Turn,
		Done:      snap.Done,
		Defaulted: snap.Defaulted,
		Headline:  snap.Headline,
		Network:   g.Stats(),
		Nodes:     make([]Node, len(snap.Agents)),
	}
	for i, a := range snap.Agents {
		size := minNodeSize
		if maxRank > 0 {
			size += (maxNodeSize - minNodeSize) * rank[i] / maxRank
		}
		doc.Nodes[i] = Node{
			ID:       a.ID,
			Kind:     a.Kind,
			Segment:  a.Segment,
			State:    a.Alert,
			Fraction: a.Fraction,
			Balance:  a.Balance,
			Informed: a.Informed,
			Degree:   a.Degree,
			PageRank: rank[i],
			Size:     size,
		}
	}
	for _, e := range g.Edges() {
		doc.Edges = append(doc.Edges, Edge{Source: e[0], Target: e[1]})
	}
	doc.NodeCount = len(doc.Nodes)
	doc.EdgeCount = len(doc.Edges)
	return doc, nil
}

// Render encodes the document in the given format.
func Render(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(RenderDOT(doc)), nil
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// RenderDOT produces a Graphviz DOT representation of the document.
func RenderDOT(doc *Document) string {
	var b strings.Builder
	b.WriteString("graph bankrun {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  overlap=false;\n")
	fmt.Fprintf(&b, "  label=%q;\n", fmt.Sprintf("turn %d, liquidity %.0f%%, news reach %.0f%%",
		doc.Turn, 100*doc.Headline.LiquidityRemaining, 100*doc.Headline.NewsReach))
	b.WriteString("  node [style=filled, fontname=\"Helvetica\", fontsize=8, fixedsize=true];\n\n")

	for _, n := range doc.Nodes {
		color := stateColors[n.State]
		if color == "" {
			color = "lightgray"
		}
		shape := kindShapes[n.Kind]
		if shape == "" {
			shape = "box"
		}
		// DOT sizes are inches; 72 points per inch.
		fmt.Fprintf(&b, "  %d [label=\"%d\", shape=%s, fillcolor=%q, width=%.3f, tooltip=\"fraction=%.2f\"];\n",
			n.ID, n.ID, shape, color, n.Size/72, n.Fraction)
	}
	b.WriteString("\n")

	for _, e := range doc.Edges {
		fmt.Fprintf(&b, "  %d -- %d;\n", e.Source, e.Target)
	}

	b.WriteString("}\n")
	return b.String()
}
