package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/shoprec/core"
)

// DefaultAvailability 默认可售条件：某个规格库存不少于 3 件
const DefaultAvailability = "total_stock >= 3"

var (
	propertyEnv     *cel.Env
	propertyEnvErr  error
	propertyEnvOnce sync.Once
)

func getPropertyEnv() (*cel.Env, error) {
	propertyEnvOnce.Do(func() {
		propertyEnv, propertyEnvErr = cel.NewEnv(
			cel.Variable("total_stock", cel.IntType),
			cel.Variable("can_sale", cel.BoolType),
			cel.Variable("size", cel.StringType),
			cel.Variable("color", cel.StringType),
			cel.Variable("buy_price", cel.DoubleType),
			cel.Variable("sell_price", cel.DoubleType),
			cel.Variable("weight", cel.DoubleType),
		)
	})
	return propertyEnv, propertyEnvErr
}

// PropertyExpr 是编译好的商品规格条件，例如 `total_stock >= 3 && can_sale`。
// 变量：total_stock, can_sale, size, color, buy_price, sell_price, weight。
// 编译期做类型检查，返回值必须是 bool。
type PropertyExpr struct {
	source string
	prg    cel.Program
}

// CompileProperty 编译规格条件，空表达式使用 DefaultAvailability
func CompileProperty(expr string) (*PropertyExpr, error) {
	if expr == "" {
		expr = DefaultAvailability
	}
	env, err := getPropertyEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &PropertyExpr{source: expr, prg: prg}, nil
}

func (e *PropertyExpr) String() string { return e.source }

// Match 判断单个规格是否满足条件
func (e *PropertyExpr) Match(p core.ProductProperty) (bool, error) {
	out, _, err := e.prg.Eval(map[string]any{
		"total_stock": int64(p.TotalStock),
		"can_sale":    p.CanSale,
		"size":        p.Size,
		"color":       p.Color,
		"buy_price":   p.BuyPrice,
		"sell_price":  p.SellPrice,
		"weight":      p.Weight,
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", e.source, err)
	}
	ok, _ := out.Value().(bool)
	return ok, nil
}

// MatchAny 判断商品是否至少有一个规格满足条件
func (e *PropertyExpr) MatchAny(props []core.ProductProperty) (bool, error) {
	for _, p := range props {
		ok, err := e.Match(p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
