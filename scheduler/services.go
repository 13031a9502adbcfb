// Package scheduler 以 suture 服务的形式周期执行离线任务：CSV 导出、规则挖掘与推荐刷新。
//
// 每个服务是一个 ticker 循环，单次失败只记录日志，循环继续；
// 服务本身 panic 或返回错误时由 Supervisor 按退避策略重启。
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/engine"
)

// DefaultJobTimeout 单次任务的超时
const DefaultJobTimeout = 30 * time.Minute

// Exporter 由 engine.Engine 实现
type Exporter interface {
	Export(ctx context.Context, path string) (int, error)
}

// RuleMiner 由 engine.Engine 实现
type RuleMiner interface {
	MineRules(ctx context.Context) (*engine.MineReport, error)
}

// Refresher 由 engine.Engine 实现
type Refresher interface {
	RefreshRecommendations(ctx context.Context, email string) ([]core.Outcome, error)
}

// PeriodicService 按固定间隔执行 run。
type PeriodicService struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	// RunOnStart 为 true 时启动后立即执行一次
	RunOnStart bool
	run        func(ctx context.Context) error
	logger     zerolog.Logger
}

// NewPeriodicService interval 必须大于 0
func NewPeriodicService(name string, interval time.Duration, run func(ctx context.Context) error, logger zerolog.Logger) *PeriodicService {
	return &PeriodicService{
		name:     name,
		interval: interval,
		timeout:  DefaultJobTimeout,
		run:      run,
		logger:   logger.With().Str("service", name).Logger(),
	}
}

// WithTimeout 设置单次任务超时
func (s *PeriodicService) WithTimeout(d time.Duration) *PeriodicService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Serve 实现 suture.Service
func (s *PeriodicService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Bool("run_on_start", s.RunOnStart).Msg("service starting")

	if s.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("service shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *PeriodicService) tick(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.run(jobCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("scheduled job failed")
		return
	}
	s.logger.Debug().Dur("elapsed", time.Since(start)).Msg("scheduled job finished")
}

// String 供 suture 日志识别服务
func (s *PeriodicService) String() string {
	return s.name
}

// NewExportService 周期把订单数据集导出到 path
func NewExportService(e Exporter, path string, interval time.Duration, logger zerolog.Logger) *PeriodicService {
	return NewPeriodicService("export-service", interval, func(ctx context.Context) error {
		_, err := e.Export(ctx, path)
		return err
	}, logger)
}

// NewMiningService 周期重新挖掘关联规则
func NewMiningService(m RuleMiner, interval time.Duration, logger zerolog.Logger) *PeriodicService {
	return NewPeriodicService("mining-service", interval, func(ctx context.Context) error {
		_, err := m.MineRules(ctx)
		return err
	}, logger)
}

// NewRefreshService 周期重算全部用户的推荐快照；单个用户失败只计数
func NewRefreshService(r Refresher, interval time.Duration, logger zerolog.Logger) *PeriodicService {
	svc := NewPeriodicService("refresh-service", interval, nil, logger)
	svc.run = func(ctx context.Context) error {
		outcomes, err := r.RefreshRecommendations(ctx, "")
		if err != nil {
			return err
		}
		failed := 0
		for _, o := range outcomes {
			if !o.Success {
				failed++
			}
		}
		if failed > 0 {
			svc.logger.Warn().Int("users", len(outcomes)).Int("failed", failed).Msg("some users failed to refresh")
		}
		return nil
	}
	return svc
}
