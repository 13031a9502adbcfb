package core

import (
	"context"
	"time"
)

// AssociationRule 是一条关联规则 Antecedent → Consequent。
//
// Antecedent 与 Consequent 均为排序后的商品名，非空且不相交。
type AssociationRule struct {
	ID         int64
	Antecedent []string
	Consequent []string
	Support    float64 // rule_support / N
	Confidence float64 // rule_support / antecedent_support
	Lift       float64
	CreatedAt  time.Time
}

// Size 返回规则涉及的商品数（即成员行数）
func (r *AssociationRule) Size() int {
	return len(r.Antecedent) + len(r.Consequent)
}

// RelatedProduct 是 "经常一起购买" 查询的一条结果。
type RelatedProduct struct {
	Product    string  `json:"product"`
	Confidence float64 `json:"confidence"`
	Support    float64 `json:"support"`
	Lift       float64 `json:"lift"`
}

// RuleStore 是关联规则的持久化接口。
//
// ReplaceAll 必须整体原子替换：读者只能看到旧规则集或新规则集。
// 单条规则写入失败时跳过该条，返回实际保存的条数。
type RuleStore interface {
	Name() string
	ReplaceAll(ctx context.Context, rules []AssociationRule) (saved int, err error)
	FindByAntecedent(ctx context.Context, products []string) ([]AssociationRule, error)
	Stats(ctx context.Context) (rules int, memberships int, err error)
	Close() error
}
