// Package dsl 提供基于 CEL (Common Expression Language) 的规则表达式。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/shoprec/core"
)

var (
	// itemEnv 是全局的 CEL 环境，线程安全，可复用
	itemEnv     *cel.Env
	itemEnvErr  error
	itemEnvOnce sync.Once
)

func getItemEnv() (*cel.Env, error) {
	itemEnvOnce.Do(func() {
		itemEnv, itemEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return itemEnv, itemEnvErr
}

// Eval 是候选商品上的表达式解释器。
//
// 表达式语法（CEL 标准语法）：
//   - 基础：label.recall_source == "content"
//   - 数值：item.score > 0.5 / rctx.order_count >= 5
//   - 逻辑：label.recall_source == "collaborative" && item.score < 0.4
//   - 存在性：label.blend != null
//
// 同一个 Eval 可多次调用 Evaluate；编译结果按表达式缓存。
type Eval struct {
	item *core.Item
	rctx *core.RecommendContext
}

func NewEval(item *core.Item, rctx *core.RecommendContext) *Eval {
	return &Eval{item: item, rctx: rctx}
}

var programs sync.Map // expr -> cel.Program

func compileItemExpr(expr string) (cel.Program, error) {
	if prg, ok := programs.Load(expr); ok {
		return prg.(cel.Program), nil
	}
	env, err := getItemEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	programs.Store(expr, prg)
	return prg, nil
}

// Evaluate 执行表达式并返回布尔结果，空表达式恒为 true。
func (e *Eval) Evaluate(expr string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := compileItemExpr(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(e.buildInput())
	if err != nil {
		// 访问不存在的 key 会报错，应先用 label.key != null 判断
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

func (e *Eval) buildInput() map[string]any {
	labels := make(map[string]any)
	label := make(map[string]any)
	for k, v := range e.item.Labels {
		labels[k] = map[string]any{"value": v.Value, "source": v.Source}
		label[k] = v.Value
	}

	item := map[string]any{
		"id":       e.item.ID,
		"score":    e.item.Score,
		"features": e.item.Features,
		"labels":   labels,
	}

	rctx := map[string]any{}
	if e.rctx != nil {
		rctx = map[string]any{
			"user_id":     e.rctx.User.ID,
			"user_email":  e.rctx.User.Email,
			"order_count": int64(e.rctx.OrderCount),
			"limit":       int64(e.rctx.Limit),
			"params":      e.rctx.Params,
		}
	}

	return map[string]any{
		"item":  item,
		"label": label,
		"rctx":  rctx,
	}
}
