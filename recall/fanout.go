package recall

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/pkg/utils"
)

// MergeStrategy 合并各召回源的结果，groups 与 Fanout.Sources 一一对应。
type MergeStrategy interface {
	Merge(groups [][]*core.Item, dedup bool) []*core.Item
}

// PriorityMergeStrategy 按 Sources 顺序合并：相同 ID 时保留排在前面的源的结果，
// 后来者只贡献 label。
type PriorityMergeStrategy struct{}

func (PriorityMergeStrategy) Merge(groups [][]*core.Item, dedup bool) []*core.Item {
	var out []*core.Item
	seen := make(map[string]*core.Item)
	for _, items := range groups {
		for _, it := range items {
			if it == nil {
				continue
			}
			if !dedup {
				out = append(out, it)
				continue
			}
			if old, ok := seen[it.ID]; ok {
				for k, v := range it.Labels {
					old.PutLabel(k, v)
				}
				continue
			}
			seen[it.ID] = it
			out = append(out, it)
		}
	}
	return out
}

// UnionMergeStrategy 合并所有结果，不去重（用于需要保留所有来源的场景）。
type UnionMergeStrategy struct{}

func (UnionMergeStrategy) Merge(groups [][]*core.Item, _ bool) []*core.Item {
	var out []*core.Item
	for _, items := range groups {
		out = append(out, items...)
	}
	return out
}

// Fanout 是一个 Recall Node：并发执行多个召回源，并合并结果。
// 支持超时、限流；合并顺序只取决于 Sources 的顺序，与完成先后无关。
type Fanout struct {
	Sources       []Source
	Dedup         bool
	Timeout       time.Duration // 每个召回源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	MergeStrategy MergeStrategy // 为空时使用 PriorityMergeStrategy

	Logger zerolog.Logger
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	groups := make([][]*core.Item, len(n.Sources))
	eg := new(errgroup.Group)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}

	for i, src := range n.Sources {
		eg.Go(func() error {
			recallCtx := ctx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(ctx, n.Timeout)
				defer cancel()
			}

			items, err := src.Recall(recallCtx, rctx)
			if err != nil {
				// 单个召回源失败返回空结果，不中断其他召回源
				n.Logger.Warn().Err(err).Str("source", src.Name()).Msg("recall source failed")
				return nil
			}

			// 记录召回来源 label，方便 explain / 观测
			for _, it := range items {
				it.PutLabel(utils.LabelRecallSource, utils.Label{Value: src.Name(), Source: "recall"})
			}
			groups[i] = items
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	strategy := n.MergeStrategy
	if strategy == nil {
		strategy = PriorityMergeStrategy{}
	}
	return strategy.Merge(groups, n.Dedup), nil
}
