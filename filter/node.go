package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/pkg/utils"
)

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该商品就会被过滤掉。
//
// 输入已按分数排好序，保留的商品数达到 Limit 后不再检查后续商品
// （Limit <= 0 时取 RecommendContext.Limit，仍 <= 0 则检查全部）。
// 过滤器返回的错误会中止整个 Node。
type FilterNode struct {
	Filters []Filter
	Limit   int

	Logger zerolog.Logger
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	limit := n.Limit
	if limit <= 0 && rctx != nil {
		limit = rctx.Limit
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}

		reason := ""
		for _, f := range n.Filters {
			drop, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				return nil, err
			}
			if drop {
				reason = f.Name()
				break
			}
		}

		if reason != "" {
			item.PutLabel(utils.LabelFiltered, utils.Label{Value: "true", Source: reason})
			n.Logger.Debug().Str("product", item.ID).Str("filter", reason).Msg("candidate filtered")
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
