// Package rank 按用户订单数决定内容与协同两路召回的融合权重并排序。
package rank

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/pkg/utils"
)

// WeightBand 是一个订单数区间的融合权重，MinOrders 为区间下界（含）。
type WeightBand struct {
	MinOrders int     `koanf:"min_orders" yaml:"min_orders" json:"min_orders"`
	Alpha     float64 `koanf:"alpha" yaml:"alpha" json:"alpha"`
	Beta      float64 `koanf:"beta" yaml:"beta" json:"beta"`
	Reason    string  `koanf:"reason" yaml:"reason" json:"reason"`
}

// WeightPolicy 按订单数选择融合权重：取 MinOrders <= 订单数的最后一个区间。
type WeightPolicy struct {
	Bands []WeightBand
}

// DefaultBands 新用户偏内容，老用户偏协同
func DefaultBands() []WeightBand {
	return []WeightBand{
		{MinOrders: 0, Alpha: 0.7, Beta: 0.3, Reason: "new user (cold start)"},
		{MinOrders: 1, Alpha: 0.5, Beta: 0.5, Reason: "few orders"},
		{MinOrders: 5, Alpha: 0.3, Beta: 0.7, Reason: "experienced user"},
	}
}

func DefaultWeightPolicy() *WeightPolicy {
	return &WeightPolicy{Bands: DefaultBands()}
}

// NewWeightPolicy 校验并创建策略，bands 为空时使用默认区间
func NewWeightPolicy(bands []WeightBand) (*WeightPolicy, error) {
	if len(bands) == 0 {
		return DefaultWeightPolicy(), nil
	}
	p := &WeightPolicy{Bands: slices.Clone(bands)}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate 检查区间从 0 开始、严格递增，权重在 [0,1] 内，且 β 不随订单数下降。
func (p *WeightPolicy) Validate() error {
	if len(p.Bands) == 0 {
		return errors.New("weight policy has no bands")
	}
	if p.Bands[0].MinOrders != 0 {
		return errors.New("first weight band must start at 0 orders")
	}
	for i, b := range p.Bands {
		if b.Alpha < 0 || b.Alpha > 1 || b.Beta < 0 || b.Beta > 1 {
			return fmt.Errorf("band %d: alpha and beta must be within [0,1]", i)
		}
		if i == 0 {
			continue
		}
		prev := p.Bands[i-1]
		if b.MinOrders <= prev.MinOrders {
			return fmt.Errorf("band %d: min_orders must be increasing", i)
		}
		if b.Beta < prev.Beta {
			return fmt.Errorf("band %d: beta must not decrease as order count grows", i)
		}
	}
	return nil
}

// Weights 返回 orderCount 对应的权重，负数按 0 处理
func (p *WeightPolicy) Weights(orderCount int) core.BlendWeights {
	if len(p.Bands) == 0 {
		return core.BlendWeights{}
	}
	b := p.Bands[0]
	for _, band := range p.Bands[1:] {
		if orderCount >= band.MinOrders {
			b = band
		}
	}
	return core.BlendWeights{Alpha: b.Alpha, Beta: b.Beta, Reason: b.Reason}
}

// BlendNode 是融合排序 Node。
//   - 内容召回的商品：score = 相似度 × α
//   - 仅协同召回的商品：score = β
//   - 写入 labels：blend
//
// 同一商品两路都召回时以上游合并结果为准（内容在前则内容胜出）。
// 按分数稳定降序排序，分数相同保持上游顺序。
//
// 权重来源优先级：Policy（非空时覆盖并回写 rctx.Weights）> rctx.Weights 预设 > 默认区间。
type BlendNode struct {
	Policy *WeightPolicy
}

func (n *BlendNode) Name() string        { return "rank.blend" }
func (n *BlendNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *BlendNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if rctx == nil {
		return items, nil
	}
	switch {
	case n.Policy != nil:
		rctx.Weights = n.Policy.Weights(rctx.OrderCount)
	case rctx.Weights == (core.BlendWeights{}):
		rctx.Weights = DefaultWeightPolicy().Weights(rctx.OrderCount)
	}
	if rctx.OrderCount == 0 {
		rctx.PutLabel(utils.LabelColdStart, utils.Label{Value: "true", Source: "rank"})
	}

	w := rctx.Weights
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		it.Features["recall_score"] = it.Score
		switch it.Source() {
		case core.SourceContent:
			it.Score *= w.Alpha
			it.PutLabel(utils.LabelBlend, utils.Label{Value: "alpha=" + strconv.FormatFloat(w.Alpha, 'f', -1, 64), Source: "rank"})
		case core.SourceCollaborative:
			it.Score = w.Beta
			it.PutLabel(utils.LabelBlend, utils.Label{Value: "beta=" + strconv.FormatFloat(w.Beta, 'f', -1, 64), Source: "rank"})
		default:
			continue
		}
		out = append(out, it)
	}

	slices.SortStableFunc(out, func(a, b *core.Item) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}
