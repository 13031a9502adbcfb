package filter

import (
	"context"
	"slices"
	"testing"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pkg/utils"
)

type fakeCatalog struct {
	products map[string]*core.Product
	err      error
}

func (c *fakeCatalog) Product(_ context.Context, name string) (*core.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[name]
	if !ok {
		return nil, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "product "+name+" not found")
	}
	return p, nil
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]*core.Product{
		"Boots": {Name: "Boots", Image: "boots.png", Properties: []core.ProductProperty{
			{Size: "40", TotalStock: 1, CanSale: true},
			{Size: "41", TotalStock: 5, CanSale: true},
		}},
		"Scarf": {Name: "Scarf", Properties: []core.ProductProperty{{TotalStock: 2, CanSale: true}}},
		"Hat":   {Name: "Hat", Properties: []core.ProductProperty{{TotalStock: 9, CanSale: false}}},
		"Bare":  {Name: "Bare"},
	}}
}

func ids(items []*core.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func items(names ...string) []*core.Item {
	out := make([]*core.Item, len(names))
	for i, n := range names {
		out[i] = core.NewItem(n)
	}
	return out
}

func TestAvailabilityFilter(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"default stock threshold", "", []string{"Boots", "Hat"}},
		{"stock and can_sale", "total_stock >= 3 && can_sale", []string{"Boots"}},
		{"any stock", "total_stock > 0", []string{"Boots", "Scarf", "Hat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewAvailabilityFilter(newCatalog(), tt.expr)
			if err != nil {
				t.Fatal(err)
			}
			n := &FilterNode{Filters: []Filter{f}}
			out, err := n.Process(context.Background(), &core.RecommendContext{}, items("Boots", "Scarf", "Hat", "Bare", "Gloves"))
			if err != nil {
				t.Fatal(err)
			}
			if got := ids(out); !slices.Equal(got, tt.want) {
				t.Errorf("kept %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAvailabilityFilter_AttachesProduct(t *testing.T) {
	f, err := NewAvailabilityFilter(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if f.Expr() != "total_stock >= 3" {
		t.Errorf("Expr() = %q", f.Expr())
	}
	it := core.NewItem("Boots")
	drop, err := f.ShouldFilter(context.Background(), &core.RecommendContext{Catalog: newCatalog()}, it)
	if err != nil || drop {
		t.Fatalf("drop = %v, err = %v", drop, err)
	}
	p, ok := it.Meta[MetaProduct].(*core.Product)
	if !ok || p.Image != "boots.png" {
		t.Errorf("meta product = %#v", it.Meta[MetaProduct])
	}
}

func TestAvailabilityFilter_Errors(t *testing.T) {
	if _, err := NewAvailabilityFilter(nil, "total_stock + 1"); err == nil {
		t.Error("non-bool expression compiled")
	}
	if _, err := NewAvailabilityFilter(nil, "stock >= 3"); err == nil {
		t.Error("unknown variable compiled")
	}

	f, _ := NewAvailabilityFilter(nil, "")
	if _, err := f.ShouldFilter(context.Background(), &core.RecommendContext{}, core.NewItem("Boots")); err == nil {
		t.Error("expected error without catalog")
	}

	unavailable := core.NewDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "db down")
	f.Catalog = &fakeCatalog{err: unavailable}
	n := &FilterNode{Filters: []Filter{f}}
	if _, err := n.Process(context.Background(), nil, items("Boots")); !core.IsUnavailable(err) {
		t.Errorf("err = %v, want UNAVAILABLE", err)
	}
}

func TestFilterNode_LimitAndLabels(t *testing.T) {
	f := NewBlacklistFilter([]string{"B"})
	in := items("A", "B", "C", "D")
	n := &FilterNode{Filters: []Filter{f}}
	out, err := n.Process(context.Background(), &core.RecommendContext{Limit: 2}, in)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(out); !slices.Equal(got, []string{"A", "C"}) {
		t.Errorf("kept %v", got)
	}
	lbl, ok := in[1].Labels[utils.LabelFiltered]
	if !ok || lbl.Source != "filter.blacklist" {
		t.Errorf("filtered label = %+v", lbl)
	}
	if _, ok := in[3].Labels[utils.LabelFiltered]; ok {
		t.Error("items after limit must not be inspected")
	}
}

func TestExprFilter(t *testing.T) {
	a := core.NewItem("A")
	a.Score = 0.9
	a.PutLabel(utils.LabelRecallSource, utils.Label{Value: core.SourceContent})
	b := core.NewItem("B")
	b.Score = 0.2
	b.PutLabel(utils.LabelRecallSource, utils.Label{Value: core.SourceCollaborative})

	tests := []struct {
		expr string
		want []string
	}{
		{`label.recall_source == "collaborative"`, []string{"A"}},
		{`item.score < 0.5 && rctx.order_count == 0`, []string{"A"}},
		{`rctx.order_count > 10`, []string{"A", "B"}},
		{``, []string{"A", "B"}},
	}
	for _, tt := range tests {
		n := &FilterNode{Filters: []Filter{&ExprFilter{Expr: tt.expr}}}
		out, err := n.Process(context.Background(), &core.RecommendContext{}, []*core.Item{a, b})
		if err != nil {
			t.Fatalf("%q: %v", tt.expr, err)
		}
		if got := ids(out); !slices.Equal(got, tt.want) {
			t.Errorf("%q kept %v, want %v", tt.expr, got, tt.want)
		}
	}

	bad := &FilterNode{Filters: []Filter{&ExprFilter{Expr: "item.score +"}}}
	if _, err := bad.Process(context.Background(), nil, []*core.Item{a}); err == nil {
		t.Error("expected compile error")
	}
}

func TestFilterNode_Empty(t *testing.T) {
	n := &FilterNode{Filters: []Filter{NewBlacklistFilter(nil)}}
	out, err := n.Process(context.Background(), nil, nil)
	if err != nil || len(out) != 0 {
		t.Errorf("out = %v, err = %v", out, err)
	}
	out, err = n.Process(context.Background(), nil, []*core.Item{nil})
	if err != nil || len(out) != 0 {
		t.Errorf("nil item: out = %v, err = %v", out, err)
	}
}
