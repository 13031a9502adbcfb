// Command shoprec 是推荐核心的命令行入口。
//
// 用法:
//
//	shoprec [-config shoprec.yaml] export --out data/dataset.csv
//	shoprec mine --min-support 0.01 --min-confidence 0.5 --max-itemset-size 3
//	shoprec recommend [--user-email a@b.c]   # 重算并写入推荐快照，缺省为全部用户
//	shoprec related --product Boots --limit 5
//	shoprec hybrid --user-email a@b.c
//	shoprec serve                             # 周期任务 + /metrics
//
// 启动时先加载当前目录的 .env（不存在则忽略），再按 config.Load 的顺序合并配置。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/config"
	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/engine"
	"github.com/rushteam/shoprec/pkg/logging"
	"github.com/rushteam/shoprec/scheduler"
)

const usage = `usage: shoprec [-config file] <command> [flags]

commands:
  export     export all orders to CSV
  mine       mine association rules and replace the stored rule set
  recommend  recompute cached recommendations (all users or --user-email)
  related    list products frequently bought together with --product
  hybrid     show hybrid recommendations for --user-email
  serve      run scheduled jobs and the metrics endpoint
`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "shoprec:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode 输入类错误返回 2，其余返回 1
func exitCode(err error) int {
	if core.IsInvalidInput(err) || core.IsNotFound(err) {
		return 2
	}
	return 1
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("shoprec", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", os.Getenv("SHOPREC_CONFIG"), "path to YAML config file")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return flag.ErrHelp
	}
	cmd, cmdArgs := global.Arg(0), global.Args()[1:]

	c, ok := commands[cmd]
	if !ok {
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	apply := c.flags(fs)
	if err := fs.Parse(cmdArgs); err != nil {
		return err
	}

	st, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if st.Log.Output == nil {
		st.Log.Output = stderr
	}
	logger, err := logging.New(st.Log)
	if err != nil {
		return err
	}

	eng, closeFn, err := engine.New(ctx, st, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			logger.Warn().Err(cerr).Msg("close resources")
		}
	}()

	return apply(ctx, &env{engine: eng, settings: st, logger: logger, out: stdout})
}

type env struct {
	engine   *engine.Engine
	settings *config.Settings
	logger   zerolog.Logger
	out      io.Writer
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type action func(ctx context.Context, e *env) error

type command struct {
	// flags 注册子命令参数，返回解析后执行的动作
	flags func(fs *flag.FlagSet) action
}

var commands = map[string]*command{
	"export":    {flags: exportCmd},
	"mine":      {flags: mineCmd},
	"recommend": {flags: recommendCmd},
	"related":   {flags: relatedCmd},
	"hybrid":    {flags: hybridCmd},
	"serve":     {flags: serveCmd},
}

func exportCmd(fs *flag.FlagSet) action {
	out := fs.String("out", "", "output CSV path (default scheduler.export_path)")
	return func(ctx context.Context, e *env) error {
		path := *out
		if path == "" {
			path = e.settings.Scheduler.ExportPath
		}
		n, err := e.engine.Export(ctx, path)
		if err != nil {
			return err
		}
		return e.print(map[string]any{"path": path, "rows": n})
	}
}

func mineCmd(fs *flag.FlagSet) action {
	minSupport := fs.Float64("min-support", 0, "minimum support ratio (default mining.min_support)")
	minConfidence := fs.Float64("min-confidence", -1, "minimum confidence (default mining.min_confidence)")
	maxK := fs.Int("max-itemset-size", 0, "maximum itemset size (default mining.max_itemset_size)")
	return func(ctx context.Context, e *env) error {
		if *minSupport != 0 {
			e.engine.Mining.MinSupport = *minSupport
		}
		if *minConfidence >= 0 {
			e.engine.Mining.MinConfidence = *minConfidence
		}
		if *maxK > 0 {
			e.engine.Mining.MaxItemsetSize = *maxK
		}
		report, err := e.engine.MineRules(ctx)
		if err != nil {
			return err
		}
		return e.print(report)
	}
}

func recommendCmd(fs *flag.FlagSet) action {
	email := fs.String("user-email", "", "refresh a single user (default all users)")
	return func(ctx context.Context, e *env) error {
		outcomes, err := e.engine.RefreshRecommendations(ctx, *email)
		if err != nil {
			return err
		}
		return e.print(outcomes)
	}
}

func relatedCmd(fs *flag.FlagSet) action {
	product := fs.String("product", "", "product name")
	limit := fs.Int("limit", engine.DefaultRelatedLimit, "maximum number of related products")
	return func(ctx context.Context, e *env) error {
		related, err := e.engine.RelatedProducts(ctx, *product, *limit)
		if err != nil {
			return err
		}
		return e.print(map[string]any{"product": *product, "related": related})
	}
}

func hybridCmd(fs *flag.FlagSet) action {
	email := fs.String("user-email", "", "user email")
	return func(ctx context.Context, e *env) error {
		if *email == "" {
			return core.NewDomainError(core.ModuleRecommend, core.ErrorCodeInvalidInput, "--user-email is required")
		}
		snap, err := e.engine.HybridRecommendations(ctx, *email)
		if err != nil {
			return err
		}
		return e.print(snap)
	}
}

func serveCmd(*flag.FlagSet) action {
	return func(ctx context.Context, e *env) error {
		sup := scheduler.FromSettings(e.engine, e.settings, e.logger)
		e.logger.Info().
			Dur("export_interval", e.settings.Scheduler.ExportInterval).
			Dur("mining_interval", e.settings.Scheduler.MiningInterval).
			Dur("refresh_interval", e.settings.Scheduler.RefreshInterval).
			Bool("metrics", e.settings.Metrics.Enabled).
			Msg("shoprec serving")
		err := sup.Serve(ctx)
		e.logger.Info().Msg("shoprec stopped")
		return err
	}
}
