package core

import "github.com/rushteam/shoprec/pkg/utils"

// Item 是推荐链路中的候选商品：分数、特征、元信息、标签。
// Labels 用于解释（召回来源、过滤原因）；Score 用于排序决策。
type Item struct {
	ID       string // 商品名
	Score    float64
	Features map[string]float64
	Meta     map[string]any
	Labels   map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:       id,
		Features: make(map[string]float64),
		Meta:     make(map[string]any),
		Labels:   make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// Source 返回召回来源（content / collaborative），取首个来源
func (it *Item) Source() string {
	lbl, ok := it.Labels[utils.LabelRecallSource]
	if !ok {
		return ""
	}
	return lbl.First()
}
