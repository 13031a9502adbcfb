package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/rushteam/shoprec/cache"
	"github.com/rushteam/shoprec/catalog"
	"github.com/rushteam/shoprec/config"
	_ "github.com/rushteam/shoprec/config/builders"
	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/extract"
	"github.com/rushteam/shoprec/mining"
	"github.com/rushteam/shoprec/pkg/dbutil"
	"github.com/rushteam/shoprec/rank"
	"github.com/rushteam/shoprec/recommender"
	"github.com/rushteam/shoprec/rules"
	"github.com/rushteam/shoprec/store"
)

type directory interface {
	core.Catalog
	core.UserDirectory
}

// New 按配置装配 Engine，返回的 close 释放数据库与缓存连接
func New(ctx context.Context, s *config.Settings, logger zerolog.Logger) (eng *Engine, closeFn func() error, err error) {
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = closeAll()
		}
	}()

	var db *sql.DB
	if s.Dataset.Source == "sql" || s.Catalog.Kind == "sql" {
		db, err = dbutil.Open(ctx, s.Database.Driver, s.Database.DSN, dbutil.WithMaxOpenConns(s.Database.MaxOpenConns))
		if err != nil {
			return nil, nil, core.WrapDomainError(core.ModuleExtract, core.ErrorCodeUnavailable, "open database", err)
		}
		closers = append(closers, db.Close)
	}

	eng = &Engine{
		Mining: MiningParams{
			MinSupport:     s.Mining.MinSupport,
			MinConfidence:  s.Mining.MinConfidence,
			MaxItemsetSize: s.Mining.MaxItemsetSize,
		},
		Logger: logger.With().Str("component", "engine").Logger(),
	}

	switch s.Dataset.Source {
	case "sql":
		eng.Source = extract.NewSQLSource(db, logger)
		all := extract.NewSQLSource(db, logger)
		all.Statuses = nil
		eng.ExportSource = all
	case "csv":
		eng.Source = extract.NewCSVSource(s.Dataset.CSVPath, logger)
	}

	dir, err := newDirectory(ctx, s, db, logger)
	if err != nil {
		return nil, nil, err
	}
	eng.Catalog, eng.Users = dir, dir

	ruleStore, err := newRuleStore(s, logger)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, ruleStore.Close)
	eng.Rules = rules.NewService(ruleStore, dir, logger)
	eng.Miner = mining.NewMiner(s.Mining.Workers, logger)

	eng.Recommender, err = newRecommender(s, eng.Source, dir, logger)
	if err != nil {
		return nil, nil, err
	}

	kv, err := store.New(store.Options{
		Kind:          s.Cache.Store,
		RedisAddr:     s.Cache.RedisAddr,
		RedisPassword: s.Cache.RedisPassword,
		RedisDB:       s.Cache.RedisDB,
		BadgerDir:     s.Cache.BadgerDir,
	})
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, kv.Close)
	eng.Cache = cache.New(kv, eng.Recommender, s.Cache.Window, logger)
	if s.Cache.Prefix != "" {
		eng.Cache.Prefix = s.Cache.Prefix
	}

	return eng, closeAll, nil
}

func newDirectory(ctx context.Context, s *config.Settings, db *sql.DB, logger zerolog.Logger) (directory, error) {
	var users directory
	switch {
	case s.Catalog.Kind == "sql" || (s.Catalog.Kind == "feast" && db != nil):
		users = catalog.NewSQLCatalog(db, s.Database.Driver)
	default:
		// CSV 部署：从导出文件（全部状态）构建目录与订单数
		src := extract.NewCSVSource(s.Dataset.CSVPath, logger)
		src.Statuses = nil
		records, err := src.Records(ctx)
		if err != nil {
			return nil, err
		}
		users = catalog.FromRecords(records)
	}
	if s.Catalog.Kind != "feast" {
		return users, nil
	}

	f := s.Catalog.Feast
	reader, err := catalog.NewFeastReader(f.Host, f.Port, f.Project, f.Token)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCatalog, core.ErrorCodeUnavailable, "connect feast", err)
	}
	return &catalog.FeastCatalog{
		Reader:        reader,
		View:          f.View,
		EntityKey:     f.EntityKey,
		UserDirectory: users,
	}, nil
}

func newRuleStore(s *config.Settings, logger zerolog.Logger) (core.RuleStore, error) {
	if s.Rules.Store == "memory" {
		return rules.NewMemoryStore(), nil
	}
	driver, dsn := s.RulesDSN()
	db, err := rules.OpenGorm(driver, dsn)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleRules, core.ErrorCodeUnavailable, "open rule store", err)
	}
	return rules.NewGormStore(db, logger), nil
}

func newRecommender(s *config.Settings, src core.RecordSource, dir directory, logger zerolog.Logger) (*recommender.Recommender, error) {
	policy, err := rank.NewWeightPolicy(s.Recommender.Bands)
	if err != nil {
		return nil, err
	}
	opts := []recommender.Option{
		recommender.WithPolicy(policy),
		recommender.WithLimit(s.Recommender.Limit),
		recommender.WithLogger(logger),
	}
	if s.Recommender.PipelineFile != "" {
		p, err := config.LoadPipeline(s.Recommender.PipelineFile)
		if err != nil {
			return nil, fmt.Errorf("load pipeline %s: %w", s.Recommender.PipelineFile, err)
		}
		opts = append(opts, recommender.WithPipeline(p))
	} else {
		p, err := recommender.DefaultPipeline(recommender.Options{
			Policy:       policy,
			Neighbors:    s.Recommender.Neighbors,
			Availability: s.Recommender.Availability,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, recommender.WithPipeline(p))
	}
	return recommender.New(src, dir, dir, opts...)
}
