package visualization

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/nvandessel/bankrun/internal/agent"
	"github.com/nvandessel/bankrun/internal/network"
	"github.com/nvandessel/bankrun/internal/simulation"
)

// starRun returns a fresh engine on a 6-node star centred on node 0.
func starRun(t *testing.T) *simulation.Engine {
	t.Helper()
	g, err := network.FromEdges(6, [][2]int{{0, 1}, {0, 2}, {0, 3}, {0, 4}, {0, 5}})
	if err != nil {
		t.Fatalf("FromEdges: %v", err)
	}
	e, err := simulation.NewWithGraph(simulation.WithParams(simulation.Nodes(6)), g, rand.New(rand.NewPCG(1, 0)))
	if err != nil {
		t.Fatalf("NewWithGraph: %v", err)
	}
	return e
}

func TestBuild(t *testing.T) {
	e := starRun(t)
	if _, err := e.Step(); err != nil {
		t.Fatal(err)
	}
	doc, err := Build(e.Snapshot(), e.Graph())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if doc.NodeCount != 6 || doc.EdgeCount != 5 {
		t.Fatalf("counts = %d/%d, want 6/5", doc.NodeCount, doc.EdgeCount)
	}
	if doc.Turn != 1 {
		t.Errorf("Turn = %d, want 1", doc.Turn)
	}
	if math.Abs(doc.Nodes[0].Size-maxNodeSize) > 1e-9 {
		t.Errorf("centre size = %v, want %v", doc.Nodes[0].Size, maxNodeSize)
	}
	for _, n := range doc.Nodes[1:] {
		if n.Size >= doc.Nodes[0].Size || n.Size < minNodeSize {
			t.Errorf("leaf %d size %v out of range", n.ID, n.Size)
		}
		if n.Degree != 1 {
			t.Errorf("leaf %d degree = %d, want 1", n.ID, n.Degree)
		}
	}
	for _, edge := range doc.Edges {
		if edge.Source != 0 || edge.Target == 0 {
			t.Errorf("unexpected edge %+v", edge)
		}
	}
	snap := e.Snapshot()
	for i, n := range doc.Nodes {
		if n.State != snap.Agents[i].Alert || n.Fraction != snap.Agents[i].Fraction {
			t.Errorf("node %d does not mirror the snapshot", i)
		}
	}
}

func TestBuild_Mismatch(t *testing.T) {
	e := starRun(t)
	other, _ := network.FromEdges(4, [][2]int{{0, 1}, {2, 3}})
	if _, err := Build(e.Snapshot(), other); err == nil {
		t.Error("expected error for graph/snapshot size mismatch")
	}
	if _, err := Build(e.Snapshot(), nil); err == nil {
		t.Error("expected error for nil graph")
	}
}

func TestRenderDOT(t *testing.T) {
	e := starRun(t)
	doc, err := Build(e.Snapshot(), e.Graph())
	if err != nil {
		t.Fatal(err)
	}
	dot := RenderDOT(doc)

	for _, want := range []string{"graph bankrun {", "0 -- 1;", "0 -- 5;", "fillcolor=\"palegreen\"", "turn 0"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q", want)
		}
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("DOT output not closed")
	}
	if strings.Contains(dot, "->") {
		t.Error("undirected graph must not use directed edges")
	}

	for _, n := range doc.Nodes {
		shape := "shape=circle"
		if n.Kind == agent.NonCustomer {
			shape = "shape=diamond"
		}
		line := findLine(dot, "  "+strconv.Itoa(n.ID)+" [")
		if !strings.Contains(line, shape) {
			t.Errorf("node %d line %q missing %s", n.ID, line, shape)
		}
	}
}

func TestRender(t *testing.T) {
	e := starRun(t)
	doc, err := Build(e.Snapshot(), e.Graph())
	if err != nil {
		t.Fatal(err)
	}

	out, err := Render(doc, FormatJSON)
	if err != nil {
		t.Fatalf("Render(json): %v", err)
	}
	var decoded struct {
		Nodes     []map[string]any `json:"nodes"`
		EdgeCount int              `json:"edge_count"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Nodes) != 6 || decoded.EdgeCount != 5 {
		t.Errorf("decoded %d nodes / %d edges", len(decoded.Nodes), decoded.EdgeCount)
	}
	if _, ok := decoded.Nodes[0]["pagerank"]; !ok {
		t.Error("node JSON missing pagerank")
	}

	if _, err := Render(doc, "svg"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"dot", FormatDOT, false},
		{"JSON", FormatJSON, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func findLine(s, prefix string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
	return ""
}
