package recall

import (
	"context"
	"slices"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/feature"
)

// ContentRecall 是基于内容的召回源（Content-Based Recommendation）。
//
// 核心思想："用户喜欢具有某些特征的商品，推荐特征相似的商品"
//
// 算法流程：
//  1. 用户画像 = 该用户所有订单行标准化特征的均值
//  2. 计算画像与每个商品内容向量的余弦相似度
//  3. 相似度降序取 TopK
//
// 用户没有任何订单行时返回空结果。
type ContentRecall struct {
	// TopK 返回的商品数，<= 0 时取 RecommendContext.Limit
	TopK int
}

func (r *ContentRecall) Name() string { return core.SourceContent }

func (r *ContentRecall) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if rctx == nil || rctx.Data == nil {
		return nil, nil
	}
	rows := rctx.Data.UserRows(rctx.User.ID)
	if len(rows) == 0 {
		return nil, nil
	}

	values := make([][]float64, len(rows))
	for i, row := range rows {
		values[i] = row.Values
	}
	profile := feature.Mean(values)

	items := make([]*core.Item, 0, len(rctx.Data.Products))
	for i := range rctx.Data.Products {
		pv := &rctx.Data.Products[i]
		sim := feature.Cosine(profile, pv.Values)

		it := core.NewItem(pv.Product)
		it.Score = sim
		it.Features["content_similarity"] = sim
		for j, c := range rctx.Data.Categories {
			if j < len(pv.OneHot) && pv.OneHot[j] > 0 {
				it.Features["category_"+c] = 1
			}
		}
		items = append(items, it)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
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
