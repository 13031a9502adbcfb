package rerank

import (
	"context"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/filter"
	"github.com/rushteam/shoprec/pipeline"
)

// Diversity 按类别打散：每个类别最多保留 MaxPerCategory 个商品（默认 1），保持原有顺序。
// 类别来源优先级：
//   - label[LabelKey].Value
//   - meta["product"] 的首个类别（由可售过滤写入）
//
// 取不到类别的商品总是保留。默认节点链不包含它，需在 pipeline 配置中启用。
type Diversity struct {
	LabelKey       string // 默认 "category"
	MaxPerCategory int
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	limit := n.MaxPerCategory
	if limit <= 0 {
		limit = 1
	}

	seen := make(map[string]int, len(items))
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		cate := n.category(it)
		if cate == "" {
			out = append(out, it)
			continue
		}
		if seen[cate] >= limit {
			continue
		}
		seen[cate]++
		out = append(out, it)
	}
	return out, nil
}

func (n *Diversity) category(it *core.Item) string {
	key := n.LabelKey
	if key == "" {
		key = "category"
	}
	if lbl, ok := it.Labels[key]; ok && lbl.Value != "" {
		return lbl.Value
	}
	if p, ok := it.Meta[filter.MetaProduct].(*core.Product); ok && len(p.Categories) > 0 {
		return p.Categories[0]
	}
	return ""
}
