// Package builders 在 init 中把内置 Node 注册到 config 注册表，供 YAML pipeline 使用。
package builders

import (
	"fmt"
	"time"

	"github.com/rushteam/shoprec/config"
	"github.com/rushteam/shoprec/filter"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/pkg/conv"
	"github.com/rushteam/shoprec/rank"
	"github.com/rushteam/shoprec/recall"
	"github.com/rushteam/shoprec/rerank"
)

func init() {
	config.Register("recall.fanout", BuildFanoutNode)
	config.Register("recall.content", BuildContentNode)
	config.Register("recall.neighbor", BuildNeighborNode)
	config.Register("rank.blend", BuildBlendNode)
	config.Register("filter.availability", BuildAvailabilityNode)
	config.Register("filter", BuildFilterNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("rerank.diversity", BuildDiversityNode)
}

// BuildFanoutNode 配置示例：
//
//	type: recall.fanout
//	config:
//	  sources: [{type: content}, {type: neighbor, k: 5}]
//	  merge_strategy: priority
//	  timeout: 2s
func BuildFanoutNode(cfg map[string]any) (pipeline.Node, error) {
	sourcesConfig, ok := cfg["sources"].([]any)
	if !ok || len(sourcesConfig) == 0 {
		return nil, fmt.Errorf("sources not found or invalid")
	}
	sources := make([]recall.Source, 0, len(sourcesConfig))
	for _, sc := range sourcesConfig {
		sourceMap, ok := sc.(map[string]any)
		if !ok {
			continue
		}
		src, err := buildSource(sourceMap)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	fanout := &recall.Fanout{
		Sources: sources,
		Dedup:   conv.ConfigGet(cfg, "dedup", true),
	}
	timeout, err := duration(cfg, "timeout")
	if err != nil {
		return nil, err
	}
	fanout.Timeout = timeout
	if n := conv.ConfigGetInt64(cfg, "max_concurrent", 0); n > 0 {
		fanout.MaxConcurrent = int(n)
	}
	switch s := conv.ConfigGet(cfg, "merge_strategy", "priority"); s {
	case "priority", "":
		fanout.MergeStrategy = recall.PriorityMergeStrategy{}
	case "union":
		fanout.MergeStrategy = recall.UnionMergeStrategy{}
	default:
		return nil, fmt.Errorf("unknown merge strategy: %s", s)
	}
	return fanout, nil
}

func buildSource(cfg map[string]any) (recall.Source, error) {
	switch t := conv.ConfigGet(cfg, "type", ""); t {
	case "content":
		return &recall.ContentRecall{TopK: int(conv.ConfigGetInt64(cfg, "top_k", 0))}, nil
	case "neighbor", "collaborative":
		return &recall.NeighborRecall{
			K:    int(conv.ConfigGetInt64(cfg, "k", 0)),
			TopK: int(conv.ConfigGetInt64(cfg, "top_k", 0)),
		}, nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", t)
	}
}

// BuildContentNode 单独使用内容召回（不经 fanout）
func BuildContentNode(cfg map[string]any) (pipeline.Node, error) {
	src, _ := buildSource(map[string]any{"type": "content", "top_k": cfg["top_k"]})
	return &recall.Fanout{Sources: []recall.Source{src}, Dedup: true}, nil
}

// BuildNeighborNode 单独使用近邻协同召回（不经 fanout）
func BuildNeighborNode(cfg map[string]any) (pipeline.Node, error) {
	src, _ := buildSource(map[string]any{"type": "neighbor", "k": cfg["k"], "top_k": cfg["top_k"]})
	return &recall.Fanout{Sources: []recall.Source{src}, Dedup: true}, nil
}

// BuildBlendNode 读取可选的 bands。
// 配置了 bands 时节点权重优先于推荐器按订单数预设的权重，结果元数据随之更新；
// 未配置时沿用推荐器的权重策略。
func BuildBlendNode(cfg map[string]any) (pipeline.Node, error) {
	raw, _ := cfg["bands"].([]any)
	if len(raw) == 0 {
		return &rank.BlendNode{}, nil
	}
	bands := make([]rank.WeightBand, 0, len(raw))
	for _, b := range raw {
		m, ok := b.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid band: %v", b)
		}
		bands = append(bands, rank.WeightBand{
			MinOrders: int(conv.ConfigGetInt64(m, "min_orders", 0)),
			Alpha:     conv.ConfigGetFloat64(m, "alpha", 0),
			Beta:      conv.ConfigGetFloat64(m, "beta", 0),
			Reason:    conv.ConfigGet(m, "reason", ""),
		})
	}
	policy, err := rank.NewWeightPolicy(bands)
	if err != nil {
		return nil, err
	}
	return &rank.BlendNode{Policy: policy}, nil
}

// BuildAvailabilityNode 配置项 expr 为 CEL 可售条件，limit 为保留数上限
func BuildAvailabilityNode(cfg map[string]any) (pipeline.Node, error) {
	f, err := filter.NewAvailabilityFilter(nil, conv.ConfigGet(cfg, "expr", ""))
	if err != nil {
		return nil, err
	}
	return &filter.FilterNode{
		Filters: []filter.Filter{f},
		Limit:   int(conv.ConfigGetInt64(cfg, "limit", 0)),
	}, nil
}

// BuildFilterNode 组合多个过滤器：availability / blacklist / expr
func BuildFilterNode(cfg map[string]any) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]any)
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}
	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		switch t := conv.ConfigGet(filterMap, "type", ""); t {
		case "availability":
			f, err := filter.NewAvailabilityFilter(nil, conv.ConfigGet(filterMap, "expr", ""))
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		case "blacklist":
			filters = append(filters, filter.NewBlacklistFilter(conv.SliceAnyToString(filterMap["products"])))
		case "expr":
			expr := conv.ConfigGet(filterMap, "expr", "")
			if expr == "" {
				return nil, fmt.Errorf("expr filter requires expr")
			}
			filters = append(filters, &filter.ExprFilter{Expr: expr})
		default:
			return nil, fmt.Errorf("unknown filter type: %s", t)
		}
	}
	return &filter.FilterNode{
		Filters: filters,
		Limit:   int(conv.ConfigGetInt64(cfg, "limit", 0)),
	}, nil
}

func BuildTopNNode(cfg map[string]any) (pipeline.Node, error) {
	return &rerank.TopNNode{N: int(conv.ConfigGetInt64(cfg, "n", 0))}, nil
}

// BuildDiversityNode 配置项 label_key 与 max_per_category
func BuildDiversityNode(cfg map[string]any) (pipeline.Node, error) {
	return &rerank.Diversity{
		LabelKey:       conv.ConfigGet(cfg, "label_key", ""),
		MaxPerCategory: int(conv.ConfigGetInt64(cfg, "max_per_category", 0)),
	}, nil
}

// duration 兼容 "2s" 形式与整数秒
func duration(cfg map[string]any, key string) (time.Duration, error) {
	switch v := cfg[key].(type) {
	case nil:
		return 0, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	default:
		return time.Duration(conv.ConfigGetInt64(cfg, key, 0)) * time.Second, nil
	}
}
