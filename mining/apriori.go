// Package mining 实现 Apriori 频繁项集挖掘与关联规则生成。
package mining

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/shoprec/core"
)

// FrequentItemset 是一个频繁项集及其支持度计数。
type FrequentItemset struct {
	Items   Itemset
	Support int
}

// Result 是一次挖掘的结果：按层（k=1..）排列的频繁项集。
type Result struct {
	Levels       [][]FrequentItemset
	Transactions int
	MinSupport   int

	support map[string]int
}

// Support 查询项集的支持度计数，不是频繁项集时 ok 为 false
func (r *Result) Support(items Itemset) (int, bool) {
	if r == nil || r.support == nil {
		return 0, false
	}
	n, ok := r.support[items.Key()]
	return n, ok
}

// All 按层序返回全部频繁项集
func (r *Result) All() []FrequentItemset {
	var out []FrequentItemset
	for _, lvl := range r.Levels {
		out = append(out, lvl...)
	}
	return out
}

// UniqueProducts 返回交易中出现过的不同商品数
func UniqueProducts(txs []core.Transaction) int {
	seen := make(map[string]struct{})
	for _, tx := range txs {
		for _, p := range tx.Products {
			if p = strings.TrimSpace(p); p != "" {
				seen[p] = struct{}{}
			}
		}
	}
	return len(seen)
}

// Miner 执行逐层 Apriori。
//
// 支持度计数是 O(|候选| × |交易|)，Workers > 1 时按交易分片并发计数后合并。
type Miner struct {
	// Workers 计数并发数，<= 1 表示顺序执行
	Workers int
	Logger  zerolog.Logger
}

// NewMiner 创建挖掘器
func NewMiner(workers int, logger zerolog.Logger) *Miner {
	return &Miner{
		Workers: workers,
		Logger:  logger.With().Str("component", "apriori").Logger(),
	}
}

// SupportCount 把支持度比例换算为绝对计数阈值：max(1, ceil(total × ratio))。
//
// 项集保留条件是 support >= 阈值，与 "support >= total × ratio" 的浮点比较等价。
// 减去 1e-9 是为了吸收 10 × 0.7 = 7.000000000000001 这类浮点误差。
func SupportCount(ratio float64, total int) int {
	if total <= 0 || ratio <= 0 {
		return 1
	}
	n := int(math.Ceil(float64(total)*ratio - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// Mine 对交易集执行 Apriori，minSupport 为绝对计数（< 1 时按 1 处理），
// maxK <= 0 表示不限制项集大小。每层之间检查 ctx，取消时返回 ctx.Err()。
func (m *Miner) Mine(ctx context.Context, txs []core.Transaction, minSupport, maxK int) (*Result, error) {
	if minSupport < 1 {
		minSupport = 1
	}
	sets := normalize(txs)
	res := &Result{
		Transactions: len(sets),
		MinSupport:   minSupport,
		support:      make(map[string]int),
	}
	if len(sets) == 0 {
		return res, nil
	}

	level := m.firstLevel(sets, minSupport)
	for k := 1; len(level) > 0; k++ {
		res.Levels = append(res.Levels, level)
		for _, fi := range level {
			res.support[fi.Items.Key()] = fi.Support
		}
		m.Logger.Debug().Int("k", k).Int("frequent", len(level)).Msg("apriori level done")

		if maxK > 0 && k >= maxK {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cands := generateCandidates(level, k+1, res.support)
		if len(cands) == 0 {
			break
		}
		counts, err := m.countSupport(ctx, sets, cands)
		if err != nil {
			return nil, err
		}
		level = level[:0:0]
		for i, c := range cands {
			if counts[i] >= minSupport {
				level = append(level, FrequentItemset{Items: c, Support: counts[i]})
			}
		}
	}
	return res, nil
}

// normalize 把交易转为商品集合，去除空白与重复
func normalize(txs []core.Transaction) []map[string]struct{} {
	sets := make([]map[string]struct{}, 0, len(txs))
	for _, tx := range txs {
		set := make(map[string]struct{}, len(tx.Products))
		for _, p := range tx.Products {
			if p = strings.TrimSpace(p); p != "" {
				set[p] = struct{}{}
			}
		}
		sets = append(sets, set)
	}
	return sets
}

func (m *Miner) firstLevel(sets []map[string]struct{}, minSupport int) []FrequentItemset {
	counts := make(map[string]int)
	for _, set := range sets {
		for p := range set {
			counts[p]++
		}
	}
	out := make([]FrequentItemset, 0, len(counts))
	for p, n := range counts {
		if n >= minSupport {
			out = append(out, FrequentItemset{Items: Itemset{p}, Support: n})
		}
	}
	slices.SortFunc(out, func(a, b FrequentItemset) int { return a.Items.Compare(b.Items) })
	return out
}

// generateCandidates 两两合并上一层频繁项集，保留大小恰为 k 且所有 (k-1) 子集均频繁的候选。
func generateCandidates(prev []FrequentItemset, k int, frequent map[string]int) []Itemset {
	seen := make(map[string]struct{})
	var out []Itemset
	for i := 0; i < len(prev); i++ {
		for j := i + 1; j < len(prev); j++ {
			u := union(prev[i].Items, prev[j].Items)
			if len(u) != k {
				continue
			}
			key := u.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if !subsetsFrequent(u, frequent) {
				continue
			}
			out = append(out, u)
		}
	}
	slices.SortFunc(out, Itemset.Compare)
	return out
}

func subsetsFrequent(c Itemset, frequent map[string]int) bool {
	for i := range c {
		if _, ok := frequent[without(c, i).Key()]; !ok {
			return false
		}
	}
	return true
}

func (m *Miner) countSupport(ctx context.Context, sets []map[string]struct{}, cands []Itemset) ([]int, error) {
	workers := m.Workers
	if workers <= 1 || len(sets) < workers {
		return countRange(ctx, sets, cands)
	}

	partial := make([][]int, workers)
	chunk := (len(sets) + workers - 1) / workers
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(sets))
		if lo >= hi {
			continue
		}
		eg.Go(func() error {
			counts, err := countRange(egCtx, sets[lo:hi], cands)
			partial[w] = counts
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	total := make([]int, len(cands))
	for _, p := range partial {
		for i, n := range p {
			total[i] += n
		}
	}
	return total, nil
}

func countRange(ctx context.Context, sets []map[string]struct{}, cands []Itemset) ([]int, error) {
	counts := make([]int, len(cands))
	for n, set := range sets {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for i, c := range cands {
			if len(c) > len(set) {
				continue
			}
			if containsAll(set, c) {
				counts[i]++
			}
		}
	}
	return counts, nil
}

func containsAll(set map[string]struct{}, items Itemset) bool {
	for _, p := range items {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
