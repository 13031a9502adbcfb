package dsl

import (
	"testing"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pkg/utils"
)

func TestCompileProperty(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"", false},
		{"total_stock >= 3 && can_sale", false},
		{`size == "M" || color == "red"`, false},
		{"sell_price - buy_price > 10.0", false},
		{"total_stock", true},
		{"stock > 1", true},
		{"total_stock >=", true},
	}
	for _, tt := range tests {
		e, err := CompileProperty(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("CompileProperty(%q) err = %v, wantErr %v", tt.expr, err, tt.wantErr)
			continue
		}
		if err == nil && tt.expr == "" && e.String() != DefaultAvailability {
			t.Errorf("empty expr = %q", e.String())
		}
	}
}

func TestPropertyExpr_MatchAny(t *testing.T) {
	props := []core.ProductProperty{
		{Size: "S", Color: "red", TotalStock: 2, CanSale: true, BuyPrice: 10, SellPrice: 15},
		{Size: "M", Color: "blue", TotalStock: 3, CanSale: false, BuyPrice: 10, SellPrice: 30},
	}
	tests := []struct {
		expr  string
		props []core.ProductProperty
		want  bool
	}{
		{"", props, true},
		{"total_stock >= 3 && can_sale", props, false},
		{`color == "red" && can_sale`, props, true},
		{"sell_price - buy_price > 10.0", props, true},
		{"total_stock > 100", props, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		e, err := CompileProperty(tt.expr)
		if err != nil {
			t.Fatal(err)
		}
		got, err := e.MatchAny(tt.props)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("MatchAny(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEval(t *testing.T) {
	it := core.NewItem("Boots")
	it.Score = 0.42
	it.Features["content_similarity"] = 0.84
	it.PutLabel(utils.LabelRecallSource, utils.Label{Value: "content", Source: "recall"})
	rctx := &core.RecommendContext{
		User:       core.User{ID: 7, Email: "a@example.com"},
		OrderCount: 3,
		Limit:      5,
		Params:     map[string]any{"channel": "app"},
	}

	tests := []struct {
		expr    string
		want    bool
		wantErr bool
	}{
		{"", true, false},
		{`label.recall_source == "content"`, true, false},
		{`item.labels.recall_source.source == "recall"`, true, false},
		{"item.score > 0.4 && item.features.content_similarity > 0.8", true, false},
		{`item.id == "Boots" && rctx.user_email == "a@example.com"`, true, false},
		{"rctx.order_count >= 5", false, false},
		{`rctx.params.channel == "app"`, true, false},
		{`has(label.blend)`, false, false},
		{"item.score", false, true},
		{"label.blend == \"x\"", false, true},
	}
	for _, tt := range tests {
		got, err := NewEval(it, rctx).Evaluate(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("Evaluate(%q) err = %v, wantErr %v", tt.expr, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEval_NilContext(t *testing.T) {
	ok, err := NewEval(core.NewItem("A"), nil).Evaluate(`item.id == "A"`)
	if err != nil || !ok {
		t.Errorf("ok = %v, err = %v", ok, err)
	}
}
