// Package app 负责应用级编排:加载配置、初始化依赖、按模式启动 HTTP 网关或 MCP 服务。
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ordermind/internal/config"
	"ordermind/internal/learning"
	"ordermind/internal/logger"
	"ordermind/internal/policy"
	"ordermind/internal/scheduler"
	"ordermind/internal/trace"
	"ordermind/internal/transport/httpgw"
	"ordermind/internal/transport/mcpsrv"
)

// App 持有全部已装配的组件。
type App struct {
	cfg *config.Config

	httpServer  *httpgw.Server
	mcpServer   *mcpsrv.Server
	learningSvc *learning.Service
	policyStore *policy.Store
	policyIndex *policy.Index
	traceStore  *trace.Store
}

// NewApp 根据配置构建应用对象(不启动)。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动已配置的服务,直到 ctx 取消或某个组件失败。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	stop := make(chan struct{})
	group.Go(func() error {
		<-ctx.Done()
		close(stop)
		a.close()
		return nil
	})
	if err := a.policyStore.Watch(stop); err != nil {
		logger.Warnf("policy watch disabled: %v", err)
	}

	if interval, ok := scheduler.ParseInterval(a.cfg.Learning.Interval); ok {
		sched := scheduler.NewIntervalScheduler(ctx, interval)
		group.Go(func() error {
			sched.Start(func() { a.learningSvc.RunScheduled(ctx) })
			return nil
		})
	} else if a.cfg.Learning.Interval != "" {
		logger.Warnf("invalid learning interval %q, scheduled learning disabled", a.cfg.Learning.Interval)
	}

	switch a.cfg.App.Mode {
	case config.ModeStdio:
		group.Go(func() error {
			if err := a.mcpServer.Serve(); err != nil {
				return fmt.Errorf("mcp server error: %w", err)
			}
			return nil
		})
	default:
		group.Go(func() error {
			if err := a.httpServer.Start(ctx); err != nil {
				return fmt.Errorf("http gateway error: %w", err)
			}
			return nil
		})
	}

	return group.Wait()
}

func (a *App) close() {
	if a.traceStore != nil {
		if err := a.traceStore.Close(); err != nil {
			logger.Warnf("close trace store: %v", err)
		}
	}
	if a.policyIndex != nil {
		if err := a.policyIndex.Close(); err != nil {
			logger.Warnf("close policy index: %v", err)
		}
	}
}

// Learning 暴露学习服务,CLI 子命令直接调用。
func (a *App) Learning() *learning.Service {
	if a == nil {
		return nil
	}
	return a.learningSvc
}
