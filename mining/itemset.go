package mining

import (
	"slices"
	"strings"
)

// keySep 用于拼接规范化项集的 key，商品名中不会出现该字符
const keySep = "\x1f"

// Itemset 是规范化（排序、去重）后的商品集合。
// 相等集合无论生成顺序如何都有相同的 Key。
type Itemset []string

// NewItemset 去重并排序
func NewItemset(items ...string) Itemset {
	s := slices.Clone(items)
	slices.Sort(s)
	return Itemset(slices.Compact(s))
}

// Key 返回规范 key
func (s Itemset) Key() string { return strings.Join(s, keySep) }

// Compare 按字典序比较两个规范项集
func (s Itemset) Compare(o Itemset) int { return slices.Compare(s, o) }

// union 合并两个有序项集
func union(a, b Itemset) Itemset {
	out := make(Itemset, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// without 返回去掉第 i 个元素后的子集
func without(s Itemset, i int) Itemset {
	out := make(Itemset, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// combinations 按字典序枚举 s 中大小为 k 的子集
func combinations(s Itemset, k int) []Itemset {
	if k <= 0 || k > len(s) {
		return nil
	}
	var out []Itemset
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		c := make(Itemset, k)
		for i, x := range idx {
			c[i] = s[x]
		}
		out = append(out, c)

		i := k - 1
		for i >= 0 && idx[i] == len(s)-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// difference 返回 s 中不属于 sub 的元素（两者均有序）
func difference(s, sub Itemset) Itemset {
	out := make(Itemset, 0, len(s)-len(sub))
	j := 0
	for _, x := range s {
		if j < len(sub) && sub[j] == x {
			j++
			continue
		}
		out = append(out, x)
	}
	return out
}
