package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/shoprec/config"
	"github.com/rushteam/shoprec/engine"
)

// TreeConfig 失败阈值与退避参数，零值使用 suture 默认值
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig 与 suture 内置默认值一致
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Supervisor 分两层：jobs 运行周期任务，api 运行指标端点。
// 任务层崩溃不影响指标端点。
type Supervisor struct {
	root   *suture.Supervisor
	jobs   *suture.Supervisor
	api    *suture.Supervisor
	logger zerolog.Logger
}

// NewSupervisor 创建监督树
func NewSupervisor(cfg TreeConfig, logger zerolog.Logger) *Supervisor {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	logger = logger.With().Str("component", "scheduler").Logger()

	spec := suture.Spec{
		EventHook:        eventHook(logger),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	child := spec
	child.EventHook = nil

	root := suture.New("shoprec", spec)
	jobs := suture.New("jobs", child)
	api := suture.New("api", child)
	root.Add(jobs)
	root.Add(api)

	return &Supervisor{root: root, jobs: jobs, api: api, logger: logger}
}

// eventHook 把 suture 事件写入 zerolog
func eventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		ev := logger.Warn()
		if e.Type() == suture.EventTypeResume {
			ev = logger.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}

// AddJob 把服务加入任务层
func (s *Supervisor) AddJob(svc suture.Service) suture.ServiceToken {
	return s.jobs.Add(svc)
}

// AddAPI 把服务加入 api 层
func (s *Supervisor) AddAPI(svc suture.Service) suture.ServiceToken {
	return s.api.Add(svc)
}

// Serve 阻塞直到 ctx 取消
func (s *Supervisor) Serve(ctx context.Context) error {
	err := s.root.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ServeBackground 在后台运行，返回结束时的错误
func (s *Supervisor) ServeBackground(ctx context.Context) <-chan error {
	return s.root.ServeBackground(ctx)
}

// FromSettings 按配置注册周期任务与指标端点，间隔为 0 的任务不启用
func FromSettings(eng *engine.Engine, st *config.Settings, logger zerolog.Logger) *Supervisor {
	sup := NewSupervisor(TreeConfig{}, logger)
	sc := st.Scheduler

	if sc.ExportInterval > 0 && eng.ExportSource != nil {
		svc := NewExportService(eng, sc.ExportPath, sc.ExportInterval, sup.logger)
		svc.RunOnStart = true
		sup.AddJob(svc)
	}
	if sc.MiningInterval > 0 {
		sup.AddJob(NewMiningService(eng, sc.MiningInterval, sup.logger))
	}
	if sc.RefreshInterval > 0 {
		sup.AddJob(NewRefreshService(eng, sc.RefreshInterval, sup.logger))
	}
	if st.Metrics.Enabled {
		sup.AddAPI(NewMetricsService(st.Metrics.Addr, st.Metrics.Path, 0))
	}
	return sup
}

// HTTPServer 与 *http.Server 的生命周期方法一致
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService 把 HTTP 服务包装为 suture 服务
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPService shutdownTimeout 为 0 时取 10s
func NewHTTPService(name string, server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout, name: name}
}

// NewMetricsService 在 addr 的 path 上暴露 Prometheus 指标，并提供 /healthz
func NewMetricsService(addr, path string, shutdownTimeout time.Duration) *HTTPService {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return NewHTTPService("metrics-server", server, shutdownTimeout)
}

// Serve 实现 suture.Service，正常关闭时返回 ctx.Err()
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s failed: %w", h.name, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s shutdown failed: %w", h.name, err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string {
	return h.name
}
