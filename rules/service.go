package rules

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
)

// ReplaceReport 统计一次规则替换的结果
type ReplaceReport struct {
	Attempted int `json:"attempted"`
	Saved     int `json:"saved"`
	Skipped   int `json:"skipped"`
}

// Service 在 RuleStore 之上做规则校验与关联商品排序。
type Service struct {
	Store core.RuleStore

	// Catalog 不为空时，写入前确认规则里的每个商品都存在
	Catalog core.Catalog

	Logger zerolog.Logger
}

func NewService(store core.RuleStore, catalog core.Catalog, logger zerolog.Logger) *Service {
	return &Service{
		Store:   store,
		Catalog: catalog,
		Logger:  logger.With().Str("component", "rules").Logger(),
	}
}

// ValidateRule 检查规则不变量：两侧非空且不相交，confidence ∈ [0,1]，lift >= 0
func ValidateRule(r *core.AssociationRule) error {
	if len(r.Antecedent) == 0 || len(r.Consequent) == 0 {
		return errors.New("empty antecedent or consequent")
	}
	for _, p := range r.Antecedent {
		if strings.TrimSpace(p) == "" {
			return errors.New("blank product in antecedent")
		}
		if slices.Contains(r.Consequent, p) {
			return errors.New("antecedent and consequent overlap")
		}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.New("confidence out of [0,1]")
	}
	if r.Lift < 0 || r.Support < 0 {
		return errors.New("negative lift or support")
	}
	return nil
}

// Replace 用新规则集整体替换旧规则集。
// 无效或商品查不到（NOT_FOUND）的规则记录日志后跳过，不影响其余规则；
// 目录查询出现其他错误时直接返回，存储中的规则保持不变。
func (s *Service) Replace(ctx context.Context, rules []core.AssociationRule) (ReplaceReport, error) {
	report := ReplaceReport{Attempted: len(rules)}
	resolved := make(map[string]error)

	valid := make([]core.AssociationRule, 0, len(rules))
	for i := range rules {
		r := &rules[i]
		if err := ValidateRule(r); err != nil {
			s.Logger.Warn().Err(err).Strs("antecedent", r.Antecedent).Strs("consequent", r.Consequent).Msg("skip invalid rule")
			continue
		}
		if err := s.resolve(ctx, r, resolved); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			// 目录不可用时放弃本次替换，保留已有规则
			if !core.IsNotFound(err) {
				return report, err
			}
			s.Logger.Warn().Err(err).Strs("antecedent", r.Antecedent).Strs("consequent", r.Consequent).Msg("skip rule with unresolved product")
			continue
		}
		valid = append(valid, *r)
	}

	saved, err := s.Store.ReplaceAll(ctx, valid)
	if err != nil {
		return report, err
	}
	report.Saved = saved
	report.Skipped = report.Attempted - saved
	return report, nil
}

func (s *Service) resolve(ctx context.Context, r *core.AssociationRule, cache map[string]error) error {
	if s.Catalog == nil {
		return nil
	}
	for _, p := range slices.Concat(r.Antecedent, r.Consequent) {
		err, ok := cache[p]
		if !ok {
			_, err = s.Catalog.Product(ctx, p)
			cache[p] = err
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RelatedProducts 返回与 product 经常一起购买的商品。
//
// 取前件包含 product 的规则，收集后件商品并按商品去重（保留 lift 最高的一条，
// 相同时取 confidence、support 较高者），按 lift、confidence 降序排列。
// 没有规则时返回空列表；limit <= 0 表示不截断。
func (s *Service) RelatedProducts(ctx context.Context, product string, limit int) ([]core.RelatedProduct, error) {
	return s.RelatedToBasket(ctx, []string{product}, limit)
}

// RelatedToBasket 与 RelatedProducts 相同，但以一组商品为输入，结果排除输入中的所有商品。
func (s *Service) RelatedToBasket(ctx context.Context, products []string, limit int) ([]core.RelatedProduct, error) {
	if len(products) == 0 {
		return nil, nil
	}
	rules, err := s.Store.FindByAntecedent(ctx, products)
	if err != nil {
		return nil, err
	}
	return Rank(rules, products, limit), nil
}

// Rank 把规则聚合为按商品去重的排序结果，exclude 中的商品不会出现在结果里
func Rank(rules []core.AssociationRule, exclude []string, limit int) []core.RelatedProduct {
	best := make(map[string]core.RelatedProduct)
	for _, r := range rules {
		for _, p := range r.Consequent {
			if slices.Contains(exclude, p) {
				continue
			}
			cand := core.RelatedProduct{Product: p, Confidence: r.Confidence, Support: r.Support, Lift: r.Lift}
			if old, ok := best[p]; !ok || better(cand, old) {
				best[p] = cand
			}
		}
	}

	out := make([]core.RelatedProduct, 0, len(best))
	for _, rp := range best {
		out = append(out, rp)
	}
	slices.SortFunc(out, func(a, b core.RelatedProduct) int {
		switch {
		case better(a, b):
			return -1
		case better(b, a):
			return 1
		default:
			return strings.Compare(a.Product, b.Product)
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func better(a, b core.RelatedProduct) bool {
	if a.Lift != b.Lift {
		return a.Lift > b.Lift
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Support > b.Support
}
