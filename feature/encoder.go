package feature

import (
	"slices"
	"strings"
)

// MultiHotEncoder 把商品的类别列表编码为 0/1 向量，每个类别对应一个维度。
// 与 One-Hot 不同，一个商品可以同时命中多个类别。
type MultiHotEncoder struct {
	Categories []string // 升序、去重
	Prefix     string   // 特征名前缀，默认 "category_"

	index map[string]int
}

// NewMultiHotEncoder 从所有商品的类别列表中收集类别表
func NewMultiHotEncoder(lists ...[]string) *MultiHotEncoder {
	seen := make(map[string]struct{})
	var cats []string
	for _, list := range lists {
		for _, c := range list {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			cats = append(cats, c)
		}
	}
	slices.Sort(cats)

	e := &MultiHotEncoder{
		Categories: cats,
		Prefix:     "category_",
		index:      make(map[string]int, len(cats)),
	}
	for i, c := range cats {
		e.index[c] = i
	}
	return e
}

// Encode 返回与 Categories 对齐的向量，未知类别忽略
func (e *MultiHotEncoder) Encode(categories []string) []float64 {
	out := make([]float64, len(e.Categories))
	for _, c := range categories {
		if i, ok := e.index[strings.TrimSpace(c)]; ok {
			out[i] = 1
		}
	}
	return out
}

// EncodeFeatures 以 map 形式返回编码结果，key 为 Prefix + 类别名
func (e *MultiHotEncoder) EncodeFeatures(categories []string) map[string]float64 {
	vec := e.Encode(categories)
	out := make(map[string]float64, len(vec))
	for i, c := range e.Categories {
		out[e.Prefix+c] = vec[i]
	}
	return out
}
