package mining

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
)

func txs(sets ...[]string) []core.Transaction {
	out := make([]core.Transaction, len(sets))
	for i, s := range sets {
		out[i] = core.Transaction{OrderID: int64(i + 1), Products: s}
	}
	return out
}

func abcTransactions() []core.Transaction {
	return txs(
		[]string{"A", "B", "C"},
		[]string{"A", "B"},
		[]string{"A", "C"},
		[]string{"B", "C"},
		[]string{"A", "B", "C"},
	)
}

func TestMine_WorkedExample(t *testing.T) {
	m := NewMiner(1, zerolog.Nop())
	res, err := m.Mine(context.Background(), abcTransactions(), 2, 3)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if len(res.Levels) != 3 {
		t.Fatalf("levels = %d, want 3", len(res.Levels))
	}

	want := map[string]int{
		"A": 4, "B": 4, "C": 4,
		NewItemset("A", "B").Key(): 3,
		NewItemset("A", "C").Key(): 3,
		NewItemset("B", "C").Key(): 3,
		NewItemset("A", "B", "C").Key(): 2,
	}
	got := make(map[string]int)
	for _, fi := range res.All() {
		got[fi.Items.Key()] = fi.Support
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("frequent itemsets = %v, want %v", got, want)
	}
}

func TestMine_MaxK(t *testing.T) {
	m := NewMiner(1, zerolog.Nop())
	res, err := m.Mine(context.Background(), abcTransactions(), 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Levels) != 2 {
		t.Errorf("levels = %d, want 2", len(res.Levels))
	}
}

func TestMine_EdgeCases(t *testing.T) {
	m := NewMiner(1, zerolog.Nop())
	tests := []struct {
		name       string
		txs        []core.Transaction
		minSupport int
		wantLevels int
	}{
		{name: "empty", txs: nil, minSupport: 2, wantLevels: 0},
		{name: "threshold too high", txs: abcTransactions(), minSupport: 6, wantLevels: 0},
		{name: "min support clamped to one", txs: txs([]string{"A"}, []string{"B"}), minSupport: 0, wantLevels: 1},
		{name: "duplicates and blanks ignored", txs: txs([]string{"A", "A", " "}, []string{"A", ""}), minSupport: 2, wantLevels: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Mine(context.Background(), tt.txs, tt.minSupport, 3)
			if err != nil {
				t.Fatalf("Mine: %v", err)
			}
			if len(res.Levels) != tt.wantLevels {
				t.Errorf("levels = %d, want %d", len(res.Levels), tt.wantLevels)
			}
		})
	}
}

func TestMine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMiner(1, zerolog.Nop())
	_, err := m.Mine(ctx, abcTransactions(), 2, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func randomTransactions(seed int64, n int) []core.Transaction {
	r := rand.New(rand.NewSource(seed))
	products := []string{"apple", "bread", "cheese", "dates", "eggs", "flour", "grapes"}
	out := make([]core.Transaction, n)
	for i := range out {
		size := 1 + r.Intn(5)
		var items []string
		for j := 0; j < size; j++ {
			items = append(items, products[r.Intn(len(products))])
		}
		out[i] = core.Transaction{OrderID: int64(i), Products: items}
	}
	return out
}

func bruteSupport(txs []core.Transaction, items Itemset) int {
	sets := normalize(txs)
	n := 0
	for _, set := range sets {
		if containsAll(set, items) {
			n++
		}
	}
	return n
}

func TestMine_AntiMonotonicity(t *testing.T) {
	data := randomTransactions(7, 200)
	const minSupport = 12
	m := NewMiner(1, zerolog.Nop())
	res, err := m.Mine(context.Background(), data, minSupport, 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, fi := range res.All() {
		if fi.Support < minSupport {
			t.Errorf("%v support %d < %d", fi.Items, fi.Support, minSupport)
		}
		if got := bruteSupport(data, fi.Items); got != fi.Support {
			t.Errorf("%v support %d, brute force %d", fi.Items, fi.Support, got)
		}
		if len(fi.Items) < 2 {
			continue
		}
		for i := range fi.Items {
			sub := without(fi.Items, i)
			if _, ok := res.Support(sub); !ok {
				t.Errorf("%v frequent but subset %v is not", fi.Items, sub)
			}
		}
	}
}

func TestMine_ParallelMatchesSequential(t *testing.T) {
	data := randomTransactions(11, 500)
	seq, err := NewMiner(1, zerolog.Nop()).Mine(context.Background(), data, 20, 3)
	if err != nil {
		t.Fatal(err)
	}
	par, err := NewMiner(4, zerolog.Nop()).Mine(context.Background(), data, 20, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seq.Levels, par.Levels) {
		t.Error("parallel support counting differs from sequential")
	}
}

func TestSupportCount(t *testing.T) {
	tests := []struct {
		ratio float64
		total int
		want  int
	}{
		{ratio: 0.01, total: 150, want: 2}, // 1.5 向上取整
		{ratio: 0.01, total: 50, want: 1},  // max(1, 0.5)
		{ratio: 0.4, total: 5, want: 2},
		{ratio: 0.7, total: 10, want: 7}, // 浮点误差不得进位到 8
		{ratio: 0.5, total: 10, want: 5},
		{ratio: 0, total: 100, want: 1},
		{ratio: 0.3, total: 0, want: 1},
	}
	for _, tt := range tests {
		if got := SupportCount(tt.ratio, tt.total); got != tt.want {
			t.Errorf("SupportCount(%v, %d) = %d, want %d", tt.ratio, tt.total, got, tt.want)
		}
	}
}

func TestSupportCount_MatchesRatioComparison(t *testing.T) {
	// 阈值计数必须与 support >= total*ratio 的判定完全一致
	for total := 1; total <= 300; total += 7 {
		for _, ratio := range []float64{0.01, 0.05, 0.1, 0.25, 0.33} {
			c := SupportCount(ratio, total)
			for s := 0; s <= total; s++ {
				byRatio := float64(s) >= math.Max(1, float64(total)*ratio)-1e-9
				if byCount := s >= c; byCount != byRatio {
					t.Fatalf("total=%d ratio=%v support=%d: count says %v, ratio says %v", total, ratio, s, byCount, byRatio)
				}
			}
		}
	}
}
