package core

import "github.com/rushteam/shoprec/pkg/utils"

// RecommendContext 承载一次推荐调用的用户与数据集，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	User       User
	OrderCount int
	Limit      int

	// Data 是本次调用独立加载的特征数据
	Data *FeatureData

	// Weights 由融合策略按订单数决定
	Weights BlendWeights

	// Catalog 供过滤节点查询商品与库存；节点自身配置了 Catalog 时优先使用节点的
	Catalog Catalog

	// Labels 是用户级标签，例如 cold_start
	Labels map[string]utils.Label

	// Params 请求级参数
	Params map[string]any
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
