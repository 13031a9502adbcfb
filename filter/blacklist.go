package filter

import (
	"context"
	"slices"

	"github.com/rushteam/shoprec/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉运营下架或禁止推荐的商品。
type BlacklistFilter struct {
	// Products 是黑名单商品名列表
	Products []string
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(products []string) *BlacklistFilter {
	return &BlacklistFilter{Products: products}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(
	_ context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	return slices.Contains(f.Products, item.ID), nil
}
