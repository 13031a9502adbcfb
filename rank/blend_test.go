package rank

import (
	"context"
	"testing"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pkg/utils"
)

func TestWeightPolicy_Weights(t *testing.T) {
	p := DefaultWeightPolicy()
	tests := []struct {
		orders int
		alpha  float64
		beta   float64
		reason string
	}{
		{-1, 0.7, 0.3, "new user (cold start)"},
		{0, 0.7, 0.3, "new user (cold start)"},
		{1, 0.5, 0.5, "few orders"},
		{4, 0.5, 0.5, "few orders"},
		{5, 0.3, 0.7, "experienced user"},
		{100, 0.3, 0.7, "experienced user"},
	}
	for _, tt := range tests {
		w := p.Weights(tt.orders)
		if w.Alpha != tt.alpha || w.Beta != tt.beta || w.Reason != tt.reason {
			t.Errorf("Weights(%d) = %+v", tt.orders, w)
		}
	}
}

func TestWeightPolicy_BetaNonDecreasing(t *testing.T) {
	p := DefaultWeightPolicy()
	prev := p.Weights(0).Beta
	for n := 1; n <= 50; n++ {
		b := p.Weights(n).Beta
		if b < prev {
			t.Fatalf("beta decreased at %d orders: %v < %v", n, b, prev)
		}
		prev = b
	}
}

func TestNewWeightPolicy(t *testing.T) {
	tests := []struct {
		name    string
		bands   []WeightBand
		wantErr bool
	}{
		{"empty uses defaults", nil, false},
		{"valid", []WeightBand{{MinOrders: 0, Alpha: 1, Beta: 0}, {MinOrders: 3, Alpha: 0, Beta: 1}}, false},
		{"first band above zero", []WeightBand{{MinOrders: 1, Alpha: 0.5, Beta: 0.5}}, true},
		{"not increasing", []WeightBand{{MinOrders: 0, Beta: 0.3}, {MinOrders: 0, Beta: 0.5}}, true},
		{"weight out of range", []WeightBand{{MinOrders: 0, Alpha: 1.2, Beta: 0}}, true},
		{"beta decreasing", []WeightBand{{MinOrders: 0, Beta: 0.5}, {MinOrders: 2, Beta: 0.4}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewWeightPolicy(tt.bands)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(p.Bands) == 0 {
				t.Error("policy has no bands")
			}
		})
	}
}

func item(id, source string, score float64) *core.Item {
	it := core.NewItem(id)
	it.Score = score
	if source != "" {
		it.PutLabel(utils.LabelRecallSource, utils.Label{Value: source, Source: "recall"})
	}
	return it
}

func TestBlendNode(t *testing.T) {
	n := &BlendNode{}
	rctx := &core.RecommendContext{OrderCount: 2}
	items := []*core.Item{
		item("A", core.SourceContent, 0.8),
		item("B", core.SourceContent, -0.5),
		item("C", core.SourceCollaborative, 4.5),
		item("D", "", 1),
		nil,
	}
	out, err := n.Process(context.Background(), rctx, items)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		id    string
		score float64
	}{{"C", 0.5}, {"A", 0.4}, {"B", -0.25}}
	if len(out) != len(want) {
		t.Fatalf("got %d items, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i].ID != w.id || out[i].Score != w.score {
			t.Errorf("out[%d] = %s %v, want %s %v", i, out[i].ID, out[i].Score, w.id, w.score)
		}
	}
	if out[0].Features["recall_score"] != 4.5 {
		t.Errorf("recall_score = %v", out[0].Features["recall_score"])
	}
	if rctx.Weights.Reason != "few orders" {
		t.Errorf("weights = %+v", rctx.Weights)
	}
	if _, ok := rctx.GetLabel(utils.LabelColdStart); ok {
		t.Error("cold start label set for returning user")
	}
}

func TestBlendNode_PresetWeightsAndColdStart(t *testing.T) {
	n := &BlendNode{}
	rctx := &core.RecommendContext{Weights: core.BlendWeights{Alpha: 1, Beta: 0.1, Reason: "custom"}}
	out, err := n.Process(context.Background(), rctx, []*core.Item{
		item("A", core.SourceContent, 0.3),
		item("B", core.SourceCollaborative, 5),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].ID != "A" || out[0].Score != 0.3 || out[1].Score != 0.1 {
		t.Errorf("preset weights ignored: %s %v, %s %v", out[0].ID, out[0].Score, out[1].ID, out[1].Score)
	}
	if lbl, ok := rctx.GetLabel(utils.LabelColdStart); !ok || lbl.Value != "true" {
		t.Errorf("cold start label = %+v, %v", lbl, ok)
	}
}

func TestBlendNode_PolicyOverridesPreset(t *testing.T) {
	policy, err := NewWeightPolicy([]WeightBand{{MinOrders: 0, Alpha: 0.2, Beta: 0.8, Reason: ""}})
	if err != nil {
		t.Fatal(err)
	}
	n := &BlendNode{Policy: policy}
	rctx := &core.RecommendContext{OrderCount: 3, Weights: core.BlendWeights{Alpha: 0.5, Beta: 0.5, Reason: "few orders"}}
	out, err := n.Process(context.Background(), rctx, []*core.Item{
		item("A", core.SourceContent, 1),
		item("B", core.SourceCollaborative, 5),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].ID != "B" || out[0].Score != 0.8 || out[1].Score != 0.2 {
		t.Errorf("node bands ignored: %s %v, %s %v", out[0].ID, out[0].Score, out[1].ID, out[1].Score)
	}
	if rctx.Weights.Alpha != 0.2 || rctx.Weights.Beta != 0.8 {
		t.Errorf("weights not written back: %+v", rctx.Weights)
	}
}

func TestBlendNode_TiesKeepUpstreamOrder(t *testing.T) {
	n := &BlendNode{}
	out, err := n.Process(context.Background(), &core.RecommendContext{OrderCount: 1}, []*core.Item{
		item("X", core.SourceCollaborative, 3),
		item("Y", core.SourceCollaborative, 5),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].ID != "X" || out[1].ID != "Y" {
		t.Errorf("order = %s, %s", out[0].ID, out[1].ID)
	}
}
