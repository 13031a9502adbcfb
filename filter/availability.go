package filter

import (
	"context"
	"errors"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pkg/dsl"
)

// MetaProduct 是保留下来的商品在 Item.Meta 中的 key，值为 *core.Product
const MetaProduct = "product"

// AvailabilityFilter 过滤目录中不存在、或没有任何规格满足可售条件的商品。
// 默认条件为 dsl.DefaultAvailability。
type AvailabilityFilter struct {
	// Catalog 为空时使用 RecommendContext.Catalog
	Catalog core.Catalog

	expr *dsl.PropertyExpr
}

// NewAvailabilityFilter 编译可售条件，expr 为空时使用默认条件
func NewAvailabilityFilter(catalog core.Catalog, expr string) (*AvailabilityFilter, error) {
	compiled, err := dsl.CompileProperty(expr)
	if err != nil {
		return nil, err
	}
	return &AvailabilityFilter{Catalog: catalog, expr: compiled}, nil
}

func (f *AvailabilityFilter) Name() string {
	return "filter.availability"
}

// Expr 返回生效的可售条件
func (f *AvailabilityFilter) Expr() string { return f.expr.String() }

func (f *AvailabilityFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	catalog := f.Catalog
	if catalog == nil && rctx != nil {
		catalog = rctx.Catalog
	}
	if catalog == nil {
		return false, errors.New("availability filter has no catalog")
	}

	product, err := catalog.Product(ctx, item.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	ok, err := f.expr.MatchAny(product.Properties)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	item.Meta[MetaProduct] = product
	return false, nil
}
