package recall

import (
	"context"
	"slices"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/feature"
)

// DefaultNeighbors 默认近邻数
const DefaultNeighbors = 5

// NeighborRecall 是基于用户的协同过滤召回源（User-based CF）。
//
// 核心思想："兴趣相似的用户，喜欢相似的商品"
//
// 算法流程：
//  1. 在评分矩阵中按余弦距离找 K 个最近的其他用户（暴力计算）
//  2. 每个商品取这些近邻评分的均值
//  3. 排除目标用户已评分的商品，均值降序取 TopK
//
// 用户不在矩阵中（没有任何具名订单行）时返回空结果。
type NeighborRecall struct {
	// K 近邻数，<= 0 时使用 DefaultNeighbors
	K int

	// TopK 返回的商品数，<= 0 时取 RecommendContext.Limit
	TopK int
}

func (r *NeighborRecall) Name() string { return core.SourceCollaborative }

type neighbor struct {
	index    int
	distance float64
}

func (r *NeighborRecall) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if rctx == nil || rctx.Data == nil || rctx.Data.Matrix == nil {
		return nil, nil
	}
	m := rctx.Data.Matrix
	target, self, ok := m.Row(rctx.User.ID)
	if !ok {
		return nil, nil
	}

	neighbors := r.nearest(m, target, self)
	if len(neighbors) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]*core.Item, 0, len(m.Products))
	for j, product := range m.Products {
		if target[j] != 0 {
			continue
		}
		var sum float64
		for _, nb := range neighbors {
			sum += m.Values[nb.index][j]
		}
		it := core.NewItem(product)
		it.Score = sum / float64(len(neighbors))
		it.Features["neighbor_mean_rating"] = it.Score
		items = append(items, it)
	}

	slices.SortStableFunc(items, func(a, b *core.Item) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return truncate(items, topK(rctx, r.TopK)), nil
}

// nearest 返回与 target 余弦距离最近的 K 个其他用户，距离相同按矩阵行序
func (r *NeighborRecall) nearest(m *core.RatingMatrix, target []float64, self int) []neighbor {
	k := r.K
	if k <= 0 {
		k = DefaultNeighbors
	}
	all := make([]neighbor, 0, len(m.Users))
	for i, row := range m.Values {
		if i == self {
			continue
		}
		all = append(all, neighbor{index: i, distance: feature.CosineDistance(target, row)})
	}
	slices.SortStableFunc(all, func(a, b neighbor) int {
		switch {
		case a.distance < b.distance:
			return -1
		case a.distance > b.distance:
			return 1
		default:
			return 0
		}
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}
