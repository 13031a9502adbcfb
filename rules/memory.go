// Package rules 持久化关联规则并提供 "经常一起购买" 查询。
package rules

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rushteam/shoprec/core"
)

// MemoryStore 是内存实现的 RuleStore，用于测试/单机部署。
// 整个规则集通过 atomic.Pointer 一次性替换，读者只会看到完整的旧集或新集。
type MemoryStore struct {
	current atomic.Pointer[ruleSet]
	nextID  atomic.Int64
	now     func() time.Time
}

type ruleSet struct {
	rules        []core.AssociationRule
	byAntecedent map[string][]int
	memberships  int
}

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{now: time.Now}
	m.current.Store(&ruleSet{byAntecedent: map[string][]int{}})
	return m
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) ReplaceAll(ctx context.Context, rules []core.AssociationRule) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := m.now()
	next := &ruleSet{
		rules:        make([]core.AssociationRule, 0, len(rules)),
		byAntecedent: make(map[string][]int),
	}
	for _, r := range rules {
		r.ID = m.nextID.Add(1)
		r.CreatedAt = now
		r.Antecedent = slices.Clone(r.Antecedent)
		r.Consequent = slices.Clone(r.Consequent)
		idx := len(next.rules)
		next.rules = append(next.rules, r)
		next.memberships += r.Size()
		for _, p := range r.Antecedent {
			next.byAntecedent[p] = append(next.byAntecedent[p], idx)
		}
	}
	m.current.Store(next)
	return len(next.rules), nil
}

func (m *MemoryStore) FindByAntecedent(ctx context.Context, products []string) ([]core.AssociationRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := m.current.Load()
	seen := make(map[int]struct{})
	var out []core.AssociationRule
	for _, p := range products {
		for _, i := range set.byAntecedent[p] {
			if _, ok := seen[i]; ok {
				continue
			}
			seen[i] = struct{}{}
			out = append(out, set.rules[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (int, int, error) {
	set := m.current.Load()
	return len(set.rules), set.memberships, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ core.RuleStore = (*MemoryStore)(nil)
