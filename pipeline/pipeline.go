package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/shoprec/core"
)

// Pipeline 把推荐逻辑拆成可组合的 Node 链，按顺序执行。
type Pipeline struct {
	Nodes []Node

	// Hook 在每个 Node 执行完后调用，可用于打点与调试
	Hook func(node Node, in, out int)
}

// Run 依次执行所有 Node，任一 Node 出错即中止；每个 Node 之间检查 ctx。
func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		if p.Hook != nil {
			p.Hook(node, len(cur), len(next))
		}
		cur = next
	}
	return cur, nil
}
