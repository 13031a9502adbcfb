package recall

import (
	"context"

	"github.com/rushteam/shoprec/core"
)

// Source 表示一个可复用的召回源（内容相似 / 近邻协同 ...）。
// 可以把它理解为“可并发 fan-out 的策略单元”。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

func topK(rctx *core.RecommendContext, k int) int {
	if k > 0 {
		return k
	}
	if rctx != nil && rctx.Limit > 0 {
		return rctx.Limit
	}
	return 0
}

func truncate(items []*core.Item, k int) []*core.Item {
	if k > 0 && len(items) > k {
		return items[:k]
	}
	return items
}
