// Package recommender 组合内容召回与近邻协同召回，按用户订单数自适应融合并做库存过滤。
//
// 每次调用独立加载数据、拟合标准化参数、构建评分矩阵，调用之间不共享可变状态。
package recommender

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/feature"
	"github.com/rushteam/shoprec/filter"
	"github.com/rushteam/shoprec/metrics"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/rank"
	"github.com/rushteam/shoprec/recall"
	"github.com/rushteam/shoprec/rerank"
)

// DefaultLimit 默认返回的推荐数
const DefaultLimit = 5

// Recommender 是混合推荐器。
type Recommender struct {
	Source  core.RecordSource
	Users   core.UserDirectory
	Catalog core.Catalog

	Policy   *rank.WeightPolicy
	Pipeline *pipeline.Pipeline
	Limit    int

	Logger zerolog.Logger
	now    func() time.Time
}

// Option 调整 Recommender
type Option func(*Recommender)

// WithPipeline 使用自定义的节点链（例如从 YAML 加载）
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(r *Recommender) { r.Pipeline = p }
}

// WithPolicy 设置融合权重策略
func WithPolicy(p *rank.WeightPolicy) Option {
	return func(r *Recommender) { r.Policy = p }
}

// WithLimit 设置默认推荐数
func WithLimit(n int) Option {
	return func(r *Recommender) { r.Limit = n }
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(r *Recommender) { r.Logger = l }
}

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(r *Recommender) { r.now = now }
}

// New 创建推荐器，未指定 Pipeline 时使用 DefaultPipeline
func New(src core.RecordSource, users core.UserDirectory, catalog core.Catalog, opts ...Option) (*Recommender, error) {
	r := &Recommender{
		Source:  src,
		Users:   users,
		Catalog: catalog,
		Limit:   DefaultLimit,
		Logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Logger = r.Logger.With().Str("component", "recommender").Logger()
	if r.Policy == nil {
		r.Policy = rank.DefaultWeightPolicy()
	}
	if r.Pipeline == nil {
		p, err := DefaultPipeline(Options{Policy: r.Policy, Logger: r.Logger})
		if err != nil {
			return nil, err
		}
		r.Pipeline = p
	}
	return r, nil
}

// Options 是 DefaultPipeline 的可调参数
type Options struct {
	Policy       *rank.WeightPolicy
	Neighbors    int    // 近邻数，默认 5
	Availability string // 可售条件，默认 total_stock >= 3
	Logger       zerolog.Logger
}

// DefaultPipeline 构建默认节点链：
// 内容/协同并发召回 → 优先级合并（内容在前）→ 融合排序 → 可售过滤 → 截断
func DefaultPipeline(o Options) (*pipeline.Pipeline, error) {
	avail, err := filter.NewAvailabilityFilter(nil, o.Availability)
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{Nodes: []pipeline.Node{
		&recall.Fanout{
			Sources: []recall.Source{
				&recall.ContentRecall{},
				&recall.NeighborRecall{K: o.Neighbors},
			},
			Dedup:         true,
			MergeStrategy: recall.PriorityMergeStrategy{},
			Logger:        o.Logger,
		},
		&rank.BlendNode{Policy: o.Policy},
		&filter.FilterNode{Filters: []filter.Filter{avail}, Logger: o.Logger},
		&rerank.TopNNode{},
	}}, nil
}

// Recommend 按邮箱查找用户并计算推荐。用户不存在返回 NOT_FOUND。
func (r *Recommender) Recommend(ctx context.Context, email string) (snap *core.RecommendationSnapshot, err error) {
	defer core.Recover(core.ModuleRecommend, &err)

	user, err := r.Users.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return r.RecommendForUser(ctx, *user)
}

// RecommendForUser 加载数据并为已知用户计算推荐
func (r *Recommender) RecommendForUser(ctx context.Context, user core.User) (snap *core.RecommendationSnapshot, err error) {
	defer core.Recover(core.ModuleRecommend, &err)

	data, err := r.LoadData(ctx)
	if err != nil {
		return nil, err
	}
	return r.RecommendWith(ctx, data, user, r.Limit)
}

// LoadData 从数据源加载记录并构建特征。批量计算时可加载一次后对每个用户调用 RecommendWith。
func (r *Recommender) LoadData(ctx context.Context) (*core.FeatureData, error) {
	start := r.now()
	records, err := r.Source.Records(ctx)
	if err != nil {
		if core.IsDomainError(err) {
			return nil, err
		}
		return nil, core.WrapDomainError(core.ModuleRecommend, core.ErrorCodeUnavailable, "load records", err)
	}
	data := feature.Prepare(records)
	r.Logger.Debug().
		Int("records", len(records)).
		Int("rows", len(data.Rows)).
		Int("products", len(data.Products)).
		Int("users", len(data.Matrix.Users)).
		Dur("elapsed", r.now().Sub(start)).
		Msg("features prepared")
	return data, nil
}

// RecommendWith 在已准备好的数据上为 user 计算推荐，limit <= 0 时使用默认值
func (r *Recommender) RecommendWith(ctx context.Context, data *core.FeatureData, user core.User, limit int) (snap *core.RecommendationSnapshot, err error) {
	start := time.Now()
	defer func() { metrics.RecordRecommend(time.Since(start), err) }()
	defer core.Recover(core.ModuleRecommend, &err)

	if limit <= 0 {
		limit = r.Limit
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	orders, err := r.Users.OrderCount(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	rctx := &core.RecommendContext{
		User:       user,
		OrderCount: orders,
		Limit:      limit,
		Data:       data,
		Weights:    r.Policy.Weights(orders),
		Catalog:    r.Catalog,
	}

	items, err := r.Pipeline.Run(ctx, rctx, nil)
	if err != nil {
		if core.IsDomainError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, core.WrapDomainError(core.ModuleRecommend, core.ErrorCodeInternalError, "run pipeline", err)
	}

	recs := make([]core.Recommendation, 0, len(items))
	for _, it := range items {
		if len(recs) >= limit {
			break
		}
		p, err := r.product(ctx, it)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		recs = append(recs, core.Recommendation{
			ProductName: p.Name,
			Image:       p.Image,
			AvgScore:    p.AvgScore,
			Score:       Round(it.Score, 3),
			Source:      it.Source(),
		})
	}

	r.Logger.Info().
		Int64("user_id", user.ID).
		Int("orders", orders).
		Float64("alpha", rctx.Weights.Alpha).
		Float64("beta", rctx.Weights.Beta).
		Str("reason", rctx.Weights.Reason).
		Int("count", len(recs)).
		Msg("hybrid recommendations computed")

	return &core.RecommendationSnapshot{
		UserID:          user.ID,
		Recommendations: recs,
		Metadata: core.Metadata{
			UserOrderCount: orders,
			Alpha:          rctx.Weights.Alpha,
			Beta:           rctx.Weights.Beta,
			Reason:         rctx.Weights.Reason,
		},
		UpdatedAt: r.now().UTC(),
	}, nil
}

// product 优先使用过滤节点挂在 Meta 上的商品，节点链中没有可售过滤时再查目录
func (r *Recommender) product(ctx context.Context, it *core.Item) (*core.Product, error) {
	if p, ok := it.Meta[filter.MetaProduct].(*core.Product); ok {
		return p, nil
	}
	if r.Catalog == nil {
		return &core.Product{Name: it.ID}, nil
	}
	return r.Catalog.Product(ctx, it.ID)
}

// Round 四舍五入到 places 位小数
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
