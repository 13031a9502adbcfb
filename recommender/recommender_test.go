package recommender

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/catalog"
	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/extract"
	"github.com/rushteam/shoprec/filter"
	"github.com/rushteam/shoprec/internal/testdb"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/pkg/dbutil"
	"github.com/rushteam/shoprec/rank"
	"github.com/rushteam/shoprec/recall"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newSeeded(t *testing.T, opts ...Option) *Recommender {
	t.Helper()
	db := testdb.Open(t)
	testdb.Seed(t, db)
	c := catalog.NewSQLCatalog(db, dbutil.DriverSQLite)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	r, err := New(extract.NewSQLSource(db, zerolog.Nop()), c, c, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func names(recs []core.Recommendation) map[string]core.Recommendation {
	out := make(map[string]core.Recommendation, len(recs))
	for _, r := range recs {
		out[r.ProductName] = r
	}
	return out
}

func TestRecommend_Metadata(t *testing.T) {
	r := newSeeded(t)
	ctx := context.Background()

	tests := []struct {
		email  string
		orders int
		alpha  float64
		beta   float64
		reason string
	}{
		{"alice@example.com", 2, 0.5, 0.5, "few orders"},
		{"bob@example.com", 2, 0.5, 0.5, "few orders"}, // 已取消订单也计入
		{"carol@example.com", 0, 0.7, 0.3, "new user (cold start)"},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			snap, err := r.Recommend(ctx, tt.email)
			if err != nil {
				t.Fatalf("Recommend: %v", err)
			}
			m := snap.Metadata
			if m.UserOrderCount != tt.orders || m.Alpha != tt.alpha || m.Beta != tt.beta || m.Reason != tt.reason {
				t.Errorf("metadata = %+v", m)
			}
			if !snap.UpdatedAt.Equal(fixedNow) {
				t.Errorf("UpdatedAt = %v", snap.UpdatedAt)
			}
		})
	}
}

func TestRecommend_ColdStartUserWithoutHistory(t *testing.T) {
	r := newSeeded(t)
	snap, err := r.Recommend(context.Background(), "carol@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Recommendations) != 0 {
		t.Errorf("recommendations = %+v, want none", snap.Recommendations)
	}
	if snap.UserID != 3 {
		t.Errorf("UserID = %d", snap.UserID)
	}
}

func TestRecommend_UnknownUser(t *testing.T) {
	r := newSeeded(t)
	_, err := r.Recommend(context.Background(), "nobody@example.com")
	if !core.IsNotFound(err) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestRecommend_StockFilterAndScores(t *testing.T) {
	r := newSeeded(t)
	snap, err := r.Recommend(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	got := names(snap.Recommendations)
	// Scarf 库存 2，Hat 不可售且库存 1
	for _, p := range []string{"Scarf", "Hat"} {
		if _, ok := got[p]; ok {
			t.Errorf("%s should be filtered", p)
		}
	}
	if len(got) != 2 {
		t.Fatalf("recommendations = %+v, want Boots and Jacket", snap.Recommendations)
	}
	boots := got["Boots"]
	if boots.Image != "boots.png" || boots.AvgScore != 4.5 || boots.Source != core.SourceContent {
		t.Errorf("Boots = %+v", boots)
	}
	if jacket := got["Jacket"]; jacket.Image != "" || jacket.Source == "" {
		t.Errorf("Jacket without image = %+v", jacket)
	}
	for i, rec := range snap.Recommendations {
		if v := rec.Score * 1000; math.Abs(v-math.Round(v)) > 1e-6 {
			t.Errorf("score %v not rounded to 3 decimals", rec.Score)
		}
		if i > 0 && rec.Score > snap.Recommendations[i-1].Score {
			t.Errorf("not sorted by score: %+v", snap.Recommendations)
		}
	}
}

func TestRecommend_ContentWinsOverlap(t *testing.T) {
	r := newSeeded(t)
	snap, err := r.Recommend(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatal(err)
	}
	// Jacket 同时被近邻（alice）召回，但内容召回排在前面
	jacket, ok := names(snap.Recommendations)["Jacket"]
	if !ok {
		t.Fatalf("Jacket missing: %+v", snap.Recommendations)
	}
	if jacket.Source != core.SourceContent {
		t.Errorf("Jacket source = %s, want content", jacket.Source)
	}
}

func TestRecommend_CollaborativeOnly(t *testing.T) {
	p := &pipeline.Pipeline{Nodes: []pipeline.Node{
		&recall.Fanout{Sources: []recall.Source{&recall.NeighborRecall{}}, Dedup: true},
		&rank.BlendNode{},
		&filter.FilterNode{Filters: []filter.Filter{mustAvailability(t)}},
	}}
	r := newSeeded(t, WithPipeline(p))
	snap, err := r.Recommend(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Recommendations) != 1 {
		t.Fatalf("recommendations = %+v", snap.Recommendations)
	}
	rec := snap.Recommendations[0]
	if rec.ProductName != "Jacket" || rec.Source != core.SourceCollaborative || rec.Score != 0.5 {
		t.Errorf("rec = %+v, want Jacket collaborative 0.5", rec)
	}
}

func TestRecommend_PipelineBandsOverridePolicy(t *testing.T) {
	policy, err := rank.NewWeightPolicy([]rank.WeightBand{{MinOrders: 0, Alpha: 0.1, Beta: 0.9, Reason: "tuned"}})
	if err != nil {
		t.Fatal(err)
	}
	p := &pipeline.Pipeline{Nodes: []pipeline.Node{
		&recall.Fanout{Sources: []recall.Source{&recall.NeighborRecall{}}, Dedup: true},
		&rank.BlendNode{Policy: policy},
		&filter.FilterNode{Filters: []filter.Filter{mustAvailability(t)}},
	}}
	r := newSeeded(t, WithPipeline(p))
	snap, err := r.Recommend(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatal(err)
	}
	m := snap.Metadata
	if m.Alpha != 0.1 || m.Beta != 0.9 || m.Reason != "tuned" {
		t.Errorf("metadata = %+v, want node bands", m)
	}
	if len(snap.Recommendations) != 1 || snap.Recommendations[0].Score != 0.9 {
		t.Errorf("recommendations = %+v", snap.Recommendations)
	}
}

func TestRecommend_Limit(t *testing.T) {
	r := newSeeded(t, WithLimit(1))
	snap, err := r.Recommend(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Recommendations) != 1 {
		t.Errorf("len = %d, want 1", len(snap.Recommendations))
	}
}

func mustAvailability(t *testing.T) *filter.AvailabilityFilter {
	t.Helper()
	f, err := filter.NewAvailabilityFilter(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

type failingSource struct {
	err   error
	panic bool
}

func (s failingSource) Name() string { return "failing" }

func (s failingSource) Records(context.Context) ([]core.Record, error) {
	if s.panic {
		panic("boom")
	}
	return nil, s.err
}

func TestRecommend_SourceFailures(t *testing.T) {
	users := catalog.NewMemoryCatalog()
	users.PutUser(core.User{ID: 1, Email: "a@example.com"}, 0)

	tests := []struct {
		name  string
		src   failingSource
		check func(error) bool
	}{
		{"unavailable", failingSource{err: errors.New("connection refused")}, core.IsUnavailable},
		{"domain error kept", failingSource{err: core.NewDomainError(core.ModuleExtract, core.ErrorCodeInvalidInput, "bad")}, core.IsInvalidInput},
		{"panic", failingSource{panic: true}, func(err error) bool {
			de := core.GetDomainError(err)
			return de != nil && de.Code == core.ErrorCodeInternalError
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.src, users, users)
			if err != nil {
				t.Fatal(err)
			}
			_, err = r.Recommend(context.Background(), "a@example.com")
			if !tt.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestRecommendWith_Cancelled(t *testing.T) {
	r := newSeeded(t)
	data, err := r.LoadData(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.RecommendWith(ctx, data, core.User{ID: 1, Email: "alice@example.com"}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.12345, 0.123},
		{0.12351, 0.124},
		{-0.4444, -0.444},
		{0.5, 0.5},
	}
	for _, tt := range tests {
		if got := Round(tt.in, 3); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Round(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
