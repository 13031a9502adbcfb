package builders

import (
	"strings"
	"testing"
	"time"

	"github.com/rushteam/shoprec/config"
	"github.com/rushteam/shoprec/filter"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/rank"
	"github.com/rushteam/shoprec/recall"
	"github.com/rushteam/shoprec/rerank"
)

const hybridYAML = `
pipeline:
  name: hybrid
  nodes:
    - type: recall.fanout
      config:
        sources:
          - type: content
          - type: neighbor
            k: 3
        merge_strategy: priority
        timeout: 2s
        max_concurrent: 2
    - type: rank.blend
      config:
        bands:
          - {min_orders: 0, alpha: 0.6, beta: 0.4, reason: "new"}
    - type: filter
      config:
        filters:
          - {type: availability, expr: "total_stock >= 5"}
          - {type: blacklist, products: [Hat]}
    - type: rerank.topn
      config:
        n: 3
`

func TestBuildPipelineFromYAML(t *testing.T) {
	cfg, err := pipeline.ParseYAML([]byte(hybridYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := config.ValidatePipelineConfig(cfg); err != nil {
		t.Fatal(err)
	}
	p, err := cfg.BuildPipeline(config.DefaultFactory())
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Nodes) != 4 {
		t.Fatalf("nodes = %d", len(p.Nodes))
	}

	fanout, ok := p.Nodes[0].(*recall.Fanout)
	if !ok || len(fanout.Sources) != 2 || fanout.Timeout != 2*time.Second || fanout.MaxConcurrent != 2 {
		t.Errorf("fanout = %+v", p.Nodes[0])
	}
	if nb, ok := fanout.Sources[1].(*recall.NeighborRecall); !ok || nb.K != 3 {
		t.Errorf("neighbor source = %+v", fanout.Sources[1])
	}
	blend, ok := p.Nodes[1].(*rank.BlendNode)
	if !ok || blend.Policy.Weights(10).Alpha != 0.6 {
		t.Errorf("blend = %+v", p.Nodes[1])
	}
	fn, ok := p.Nodes[2].(*filter.FilterNode)
	if !ok || len(fn.Filters) != 2 {
		t.Fatalf("filter = %+v", p.Nodes[2])
	}
	if av := fn.Filters[0].(*filter.AvailabilityFilter); av.Expr() != "total_stock >= 5" {
		t.Errorf("availability expr = %s", av.Expr())
	}
	if top, ok := p.Nodes[3].(*rerank.TopNNode); !ok || top.N != 3 {
		t.Errorf("topn = %+v", p.Nodes[3])
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		cfg  map[string]any
		want string
	}{
		{"fanout without sources", "recall.fanout", map[string]any{}, "sources"},
		{"unknown source", "recall.fanout", map[string]any{"sources": []any{map[string]any{"type": "hot"}}}, "unknown source"},
		{"bad merge", "recall.fanout", map[string]any{"sources": []any{map[string]any{"type": "content"}}, "merge_strategy": "first"}, "merge strategy"},
		{"bad timeout", "recall.fanout", map[string]any{"sources": []any{map[string]any{"type": "content"}}, "timeout": "soon"}, "timeout"},
		{"bad bands", "rank.blend", map[string]any{"bands": []any{map[string]any{"min_orders": 1, "alpha": 0.5, "beta": 0.5}}}, "0 orders"},
		{"bad availability", "filter.availability", map[string]any{"expr": "total_stock +"}, ""},
		{"non-bool availability", "filter.availability", map[string]any{"expr": "total_stock + 1"}, ""},
		{"unknown filter", "filter", map[string]any{"filters": []any{map[string]any{"type": "exposed"}}}, "unknown filter"},
		{"empty expr", "filter", map[string]any{"filters": []any{map[string]any{"type": "expr"}}}, "requires expr"},
	}
	f := config.DefaultFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Build(tt.typ, tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidatePipelineConfig_Unsupported(t *testing.T) {
	cfg, err := pipeline.ParseYAML([]byte("pipeline:\n  nodes:\n    - type: rank.lr\n"))
	if err != nil {
		t.Fatal(err)
	}
	err = config.ValidatePipelineConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "rank.blend") {
		t.Errorf("err = %v, want supported list", err)
	}
}

func TestSupportedTypes(t *testing.T) {
	got := strings.Join(config.SupportedTypes(), ",")
	want := "filter,filter.availability,rank.blend,recall.content,recall.fanout,recall.neighbor,rerank.diversity,rerank.topn"
	if got != want {
		t.Errorf("SupportedTypes = %s", got)
	}
}

func TestBuildDiversityNode(t *testing.T) {
	node, err := config.DefaultFactory().Build("rerank.diversity", map[string]any{"max_per_category": 2, "label_key": "brand"})
	if err != nil {
		t.Fatal(err)
	}
	d, ok := node.(*rerank.Diversity)
	if !ok || d.MaxPerCategory != 2 || d.LabelKey != "brand" {
		t.Errorf("diversity = %+v", node)
	}
}

func TestBuildBlendNode(t *testing.T) {
	f := config.DefaultFactory()
	node, err := f.Build("rank.blend", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if b := node.(*rank.BlendNode); b.Policy != nil {
		t.Errorf("blend without bands should defer to preset weights, got %+v", b.Policy)
	}

	node, err = f.Build("rank.blend", map[string]any{"bands": []any{
		map[string]any{"min_orders": 0, "alpha": 0.2, "beta": 0.8},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if b := node.(*rank.BlendNode); b.Policy == nil || b.Policy.Weights(3).Beta != 0.8 {
		t.Errorf("blend bands = %+v", b.Policy)
	}
}
