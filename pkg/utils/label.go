package utils

import "strings"

// 常用 Label key
const (
	LabelRecallSource = "recall_source"
	LabelFiltered     = "filtered"
	LabelBlend        = "blend"
	LabelColdStart    = "cold_start"
)

// Label 是推荐链路中可解释、可追踪的标记。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / rank / filter / rerank ...
}

// MergeLabel 合并同名 Label：Value 以 '|' 累积，Source 以 ',' 累积。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}

// First 返回累积 Value 中的第一个值
func (l Label) First() string {
	v, _, _ := strings.Cut(l.Value, "|")
	return v
}
