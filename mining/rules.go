package mining

import "github.com/rushteam/shoprec/core"

// GenerateRules 对每个大小 >= 2 的频繁项集枚举所有非空的前件/后件划分，
// 保留 confidence >= minConfidence 的规则。
//
// 前件支持度查不到时视为 confidence 0 并丢弃该规则；任一边际支持度为 0 时 lift 为 0。
// 输出顺序由项集的规范顺序决定，同一输入总是得到同一规则集。
func GenerateRules(res *Result, minConfidence float64) []core.AssociationRule {
	if res == nil || res.Transactions == 0 {
		return nil
	}
	n := res.Transactions

	var out []core.AssociationRule
	for _, lvl := range res.Levels {
		for _, fi := range lvl {
			if len(fi.Items) < 2 {
				continue
			}
			for size := 1; size < len(fi.Items); size++ {
				for _, ant := range combinations(fi.Items, size) {
					antSup, ok := res.Support(ant)
					if !ok || antSup == 0 {
						continue
					}
					confidence := float64(fi.Support) / float64(antSup)
					if confidence < minConfidence {
						continue
					}
					cons := difference(fi.Items, ant)
					consSup, _ := res.Support(cons)
					out = append(out, core.AssociationRule{
						Antecedent: []string(ant),
						Consequent: []string(cons),
						Support:    float64(fi.Support) / float64(n),
						Confidence: confidence,
						Lift:       lift(fi.Support, antSup, consSup, n),
					})
				}
			}
		}
	}
	return out
}

// lift = (s/N) / ((a/N)(c/N)) = s·N / (a·c)，用整数乘积避免浮点误差
func lift(support, antSup, consSup, n int) float64 {
	if antSup == 0 || consSup == 0 {
		return 0
	}
	return float64(support) * float64(n) / (float64(antSup) * float64(consSup))
}
