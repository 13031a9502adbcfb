package feature

import (
	"math"
	"strings"
	"testing"

	"github.com/rushteam/shoprec/core"
)

func f(v float64) *float64 { return &v }
func id(v int64) *int64    { return &v }

func TestZScoreScaler(t *testing.T) {
	s := FitZScore([][]float64{{1, 5}, {3, 5}})
	tests := []struct {
		col  int
		in   float64
		want float64
	}{
		{0, 1, -1},
		{0, 3, 1},
		{0, 2, 0},
		{1, 5, 0},  // σ = 0 只去均值
		{1, 7, 2},
		{5, 9, 9}, // 未拟合的列原样返回
	}
	for _, tt := range tests {
		if got := s.TransformValue(tt.col, tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("TransformValue(%d, %v) = %v, want %v", tt.col, tt.in, got, tt.want)
		}
	}
}

func TestProfitMargin(t *testing.T) {
	tests := []struct {
		name      string
		buy, sell *float64
		want      float64
	}{
		{"normal", f(50), f(80), 0.6},
		{"loss", f(100), f(50), -0.5},
		{"zero buy", f(0), f(10), 0},
		{"missing buy", nil, f(10), 0},
		{"missing sell", f(10), nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProfitMargin(tt.buy, tt.sell); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ProfitMargin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		a, b []float64
		want float64
	}{
		{[]float64{1, 0}, []float64{1, 0}, 1},
		{[]float64{1, 0}, []float64{0, 1}, 0},
		{[]float64{1, 1}, []float64{-1, -1}, -1},
		{[]float64{0, 0}, []float64{1, 1}, 0},
		{[]float64{1}, []float64{1, 2}, 0},
	}
	for _, tt := range tests {
		if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if d := CosineDistance([]float64{1, 0}, []float64{0, 1}); d != 1 {
		t.Errorf("CosineDistance = %v, want 1", d)
	}
}

func TestMultiHotEncoder(t *testing.T) {
	enc := NewMultiHotEncoder([]string{"winter", "shoes"}, []string{" winter", ""}, nil, []string{"accessories"})
	if got := strings.Join(enc.Categories, ","); got != "accessories,shoes,winter" {
		t.Fatalf("Categories = %s", got)
	}
	vec := enc.Encode([]string{"winter", "shoes", "unknown"})
	want := []float64{0, 1, 1}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("Encode = %v, want %v", vec, want)
			break
		}
	}
	feats := enc.EncodeFeatures([]string{"accessories"})
	if feats["category_accessories"] != 1 || feats["category_winter"] != 0 || len(feats) != 3 {
		t.Errorf("EncodeFeatures = %v", feats)
	}
}

func sampleRecords() []core.Record {
	return []core.Record{
		{OrderID: 1, OrderStatus: "paid", UserID: id(1), ProductName: "A", BuyPrice: f(10), SellPrice: f(15), ProductAvgScore: f(4), UserRating: f(4), Categories: []string{"x"}},
		{OrderID: 1, OrderStatus: "paid", UserID: id(1), ProductName: "B", BuyPrice: f(10), SellPrice: f(20), ProductAvgScore: f(3), Categories: []string{"y"}},
		{OrderID: 2, OrderStatus: "delivered", UserID: id(2), ProductName: "A", BuyPrice: f(10), SellPrice: f(15), ProductAvgScore: f(4), UserRating: f(2)},
		{OrderID: 2, OrderStatus: "delivered", UserID: id(2), ProductName: "C"},
		{OrderID: 3, OrderStatus: "paid", ProductName: "B", ProductAvgScore: f(3)},
		{OrderID: 4, OrderStatus: "cancelled", UserID: id(1), ProductName: "D", UserRating: f(1)},
		{OrderID: 5, OrderStatus: "paid", UserID: id(2), ProductName: " "},
	}
}

func TestFillRatings(t *testing.T) {
	recs := sampleRecords()[:5]
	got := FillRatings(recs)
	want := []float64{4, 4, 2, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FillRatings[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPrepare(t *testing.T) {
	data := Prepare(sampleRecords())

	if len(data.Rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(data.Rows))
	}
	var names []string
	for _, p := range data.Products {
		names = append(names, p.Product)
	}
	if strings.Join(names, ",") != "A,B,C" {
		t.Errorf("products = %v", names)
	}
	if strings.Join(data.Categories, ",") != "x,y" {
		t.Errorf("categories = %v", data.Categories)
	}
	if data.Products[0].OneHot[0] != 1 || data.Products[0].OneHot[1] != 0 {
		t.Errorf("A one-hot = %v", data.Products[0].OneHot)
	}

	// 标准化后每列均值为 0
	for j := range core.ContentColumns {
		var sum float64
		for _, r := range data.Rows {
			sum += r.Values[j]
		}
		if math.Abs(sum) > 1e-9 {
			t.Errorf("column %s mean = %v, want 0", core.ContentColumns[j], sum/float64(len(data.Rows)))
		}
	}

	m := data.Matrix
	if len(m.Users) != 2 || len(m.Products) != 3 {
		t.Fatalf("matrix shape = %dx%d, want 2x3", len(m.Users), len(m.Products))
	}
	tests := []struct {
		user    int64
		product string
		want    float64
	}{
		{1, "A", 4}, {1, "B", 4}, {1, "C", 0},
		{2, "A", 2}, {2, "B", 0}, {2, "C", 2},
		{3, "A", 0},
	}
	for _, tt := range tests {
		if got := m.At(tt.user, tt.product); got != tt.want {
			t.Errorf("At(%d, %s) = %v, want %v", tt.user, tt.product, got, tt.want)
		}
	}
	if rows := data.UserRows(1); len(rows) != 2 {
		t.Errorf("user 1 rows = %d, want 2", len(rows))
	}
}

func TestBuildRatingMatrix_AveragesDuplicates(t *testing.T) {
	m := BuildRatingMatrix([]core.FeatureRow{
		{UserID: id(1), Product: "A", Rating: 5},
		{UserID: id(1), Product: "A", Rating: 3},
		{Product: "B", Rating: 1},
	})
	if got := m.At(1, "A"); got != 4 {
		t.Errorf("At(1, A) = %v, want 4", got)
	}
	if len(m.Products) != 1 {
		t.Errorf("anonymous product should not enter matrix: %v", m.Products)
	}
}

func TestPrepare_Empty(t *testing.T) {
	data := Prepare(nil)
	if len(data.Rows) != 0 || len(data.Products) != 0 || data.Matrix == nil {
		t.Errorf("Prepare(nil) = %+v", data)
	}
}
