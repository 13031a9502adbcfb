// Package engine 把抽取、挖掘、规则查询、混合推荐与缓存组合成对外操作，
// 供命令行与调度任务调用。
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/shoprec/cache"
	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/extract"
	"github.com/rushteam/shoprec/metrics"
	"github.com/rushteam/shoprec/mining"
	"github.com/rushteam/shoprec/recommender"
	"github.com/rushteam/shoprec/rules"
)

// DefaultRelatedLimit "经常一起购买" 默认返回数
const DefaultRelatedLimit = 5

// MiningParams 挖掘参数，MinSupport 为比例
type MiningParams struct {
	MinSupport     float64
	MinConfidence  float64
	MaxItemsetSize int
}

// DefaultMiningParams 与离线任务的默认参数一致
func DefaultMiningParams() MiningParams {
	return MiningParams{MinSupport: 0.01, MinConfidence: 0.5, MaxItemsetSize: 3}
}

// MineReport 是一次挖掘的汇总
type MineReport struct {
	RunID           string        `json:"run_id"`
	Transactions    int           `json:"transactions"`
	Products        int           `json:"products"`
	MinSupportCount int           `json:"min_support_count"`
	Itemsets        []int         `json:"itemsets_per_level"`
	Rules           int           `json:"rules"`
	Saved           int           `json:"saved"`
	Skipped         int           `json:"skipped"`
	Duration        time.Duration `json:"duration"`
}

// Engine 持有各组件，自身不保存请求间状态。
type Engine struct {
	// Source 提供已完成订单的数据集（挖掘、推荐）
	Source core.RecordSource
	// ExportSource 提供全部状态的数据集，为空时 Export 返回 NOT_SUPPORTED
	ExportSource core.RecordSource

	Catalog     core.Catalog
	Users       core.UserDirectory
	Rules       *rules.Service
	Miner       *mining.Miner
	Recommender *recommender.Recommender
	Cache       *cache.Cache

	Mining MiningParams
	// RefreshWorkers 批量刷新并发数
	RefreshWorkers int

	Logger zerolog.Logger
}

// MineRules 抽取交易、挖掘频繁项集、生成规则并整体替换已存规则。
// 挖掘被取消时已存规则保持不变。
func (e *Engine) MineRules(ctx context.Context) (report *MineReport, err error) {
	start := time.Now()
	report = &MineReport{RunID: uuid.NewString()}
	logger := e.Logger.With().Str("run_id", report.RunID).Logger()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = "canceled"
			}
		}
		report.Duration = time.Since(start)
		metrics.RecordMining(status, report.Duration, report.Saved)
	}()
	defer core.Recover(core.ModuleMining, &err)

	p := e.Mining
	if p.MinSupport <= 0 || p.MinSupport > 1 {
		return report, core.NewDomainError(core.ModuleMining, core.ErrorCodeInvalidInput, "min support must be within (0,1]")
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return report, core.NewDomainError(core.ModuleMining, core.ErrorCodeInvalidInput, "min confidence must be within [0,1]")
	}

	records, err := e.Source.Records(ctx)
	if err != nil {
		return report, err
	}
	txs := extract.Transactions(records)
	report.Transactions = len(txs)
	report.Products = mining.UniqueProducts(txs)
	report.MinSupportCount = mining.SupportCount(p.MinSupport, len(txs))
	logger.Info().
		Int("transactions", report.Transactions).
		Int("products", report.Products).
		Int("min_support_count", report.MinSupportCount).
		Int("max_k", p.MaxItemsetSize).
		Msg("mining started")

	res, err := e.Miner.Mine(ctx, txs, report.MinSupportCount, p.MaxItemsetSize)
	if err != nil {
		return report, err
	}
	for _, lvl := range res.Levels {
		report.Itemsets = append(report.Itemsets, len(lvl))
	}

	generated := mining.GenerateRules(res, p.MinConfidence)
	report.Rules = len(generated)

	rep, err := e.Rules.Replace(ctx, generated)
	if err != nil {
		return report, err
	}
	report.Saved, report.Skipped = rep.Saved, rep.Skipped

	logger.Info().
		Ints("itemsets", report.Itemsets).
		Int("rules", report.Rules).
		Int("saved", report.Saved).
		Int("skipped", report.Skipped).
		Dur("elapsed", time.Since(start)).
		Msg("mining finished")
	return report, nil
}

// RelatedProducts 返回 "经常一起购买" 的商品。
// 商品不在目录中或没有任何以它为前件的规则时返回 NOT_FOUND。
func (e *Engine) RelatedProducts(ctx context.Context, product string, limit int) (out []core.RelatedProduct, err error) {
	defer core.Recover(core.ModuleRules, &err)

	product = strings.TrimSpace(product)
	if product == "" {
		return nil, core.NewDomainError(core.ModuleRules, core.ErrorCodeInvalidInput, "product name is required")
	}
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	if e.Catalog != nil {
		if _, err := e.Catalog.Product(ctx, product); err != nil {
			return nil, err
		}
	}
	out, err = e.Rules.RelatedProducts(ctx, product, limit)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, core.NewDomainError(core.ModuleRules, core.ErrorCodeNotFound, "no association rules for product "+product)
	}
	return out, nil
}

// HybridRecommendations 返回用户的推荐快照，新鲜窗口内直接读缓存。
// 用户不存在时返回 NOT_FOUND。
func (e *Engine) HybridRecommendations(ctx context.Context, email string) (snap *core.RecommendationSnapshot, err error) {
	defer core.Recover(core.ModuleRecommend, &err)

	user, err := e.Users.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if e.Cache == nil {
		return e.Recommender.RecommendForUser(ctx, *user)
	}
	return e.Cache.GetOrCompute(ctx, *user, 0)
}

// RefreshRecommendations 重算并写入推荐快照。email 为空时刷新全部用户：
// 数据集只加载一次，单个用户失败记录在结果中，不影响其他用户。
func (e *Engine) RefreshRecommendations(ctx context.Context, email string) (out []core.Outcome, err error) {
	defer core.Recover(core.ModuleRecommend, &err)

	var users []core.User
	if email != "" {
		u, err := e.Users.UserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		users = []core.User{*u}
	} else {
		users, err = e.Users.Users(ctx)
		if err != nil {
			return nil, err
		}
	}

	data, err := e.Recommender.LoadData(ctx)
	if err != nil {
		return nil, err
	}

	out = make([]core.Outcome, len(users))
	eg, egCtx := errgroup.WithContext(ctx)
	workers := e.RefreshWorkers
	if workers <= 0 {
		workers = 4
	}
	eg.SetLimit(workers)
	for i, u := range users {
		eg.Go(func() error {
			out[i] = e.refreshOne(egCtx, data, u)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return out, err
	}

	failed := 0
	for _, o := range out {
		if !o.Success {
			failed++
		}
	}
	e.Logger.Info().Int("users", len(out)).Int("failed", failed).Msg("recommendations refreshed")
	return out, nil
}

func (e *Engine) refreshOne(ctx context.Context, data *core.FeatureData, u core.User) core.Outcome {
	o := core.Outcome{Email: u.Email}
	snap, err := e.Recommender.RecommendWith(ctx, data, u, 0)
	if err == nil && e.Cache != nil {
		metrics.RecordCache("refresh")
		err = e.Cache.Put(ctx, snap)
	}
	if err != nil {
		o.Error = err.Error()
		e.Logger.Warn().Err(err).Str("email", u.Email).Msg("refresh recommendations failed")
		return o
	}
	o.Success = true
	o.Count = len(snap.Recommendations)
	return o
}

// Export 把全部订单行导出为 CSV，返回写入的行数
func (e *Engine) Export(ctx context.Context, path string) (n int, err error) {
	defer core.Recover(core.ModuleExtract, &err)

	if e.ExportSource == nil {
		return 0, core.NewDomainError(core.ModuleExtract, core.ErrorCodeNotSupported, "export requires a database source")
	}
	if strings.TrimSpace(path) == "" {
		return 0, core.NewDomainError(core.ModuleExtract, core.ErrorCodeInvalidInput, "export path is required")
	}
	n, err = extract.Export(ctx, e.ExportSource, path)
	if err != nil {
		return 0, err
	}
	e.Logger.Info().Str("path", path).Int("rows", n).Msg("dataset exported")
	return n, nil
}
