package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ordermind/internal/config"
	"ordermind/internal/correction"
	"ordermind/internal/learning"
	"ordermind/internal/logger"
	"ordermind/internal/optimizer"
	"ordermind/internal/parser"
	"ordermind/internal/policy"
	"ordermind/internal/provider"
	"ordermind/internal/refdata"
	"ordermind/internal/strategy"
	"ordermind/internal/trace"
	"ordermind/internal/transport/httpgw"
	"ordermind/internal/transport/mcpsrv"
)

// AppBuilder 装配全部组件。构造函数字段可在测试里替换。
type AppBuilder struct {
	cfg *config.Config

	modelFn func(config.LLMConfig) provider.ModelProvider
	traceFn func(string) (*trace.Store, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:     cfg,
		modelFn: buildModelProvider,
		traceFn: trace.Open,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithModelProvider 替换模型后端,测试用。
func WithModelProvider(model provider.ModelProvider) AppBuilderOption {
	return func(b *AppBuilder) {
		b.modelFn = func(config.LLMConfig) provider.ModelProvider { return model }
	}
}

func buildModelProvider(cfg config.LLMConfig) provider.ModelProvider {
	if !cfg.Enabled() {
		logger.Infof("LLM disabled (no API key), rule fallback only")
		return provider.Disabled()
	}
	logger.Infof("LLM enabled model=%s azure=%v", cfg.Model, cfg.APIVersion != "")
	return provider.NewOpenAIChatClient(cfg.APIURL, cfg.APIKey, cfg.Model, cfg.APIVersion, cfg.Timeout(), cfg.MaxRetries)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	table, err := refdata.Load(cfg.RefData.Path)
	if err != nil {
		return nil, fmt.Errorf("load refdata: %w", err)
	}
	logger.Infof("✓ refdata loaded securities=%d", len(table.Securities()))

	policyStore := policy.NewStore(cfg.PromptsDir(), parseVersionOverride(cfg.Policy.ActiveVersion))
	policyIndex, err := policy.OpenIndex(cfg.PolicyIndexPath())
	if err != nil {
		return nil, err
	}
	corrections := correction.NewStore(cfg.CorrectionsDir())

	model := b.modelFn(cfg.LLM)

	var traceStore *trace.Store
	var tracer strategy.Tracer
	var rewards httpgw.RewardSink
	if cfg.Trace.Enabled {
		traceStore, err = b.traceFn(cfg.TracePath())
		if err != nil {
			return nil, err
		}
		tracer = traceStore
		rewards = traceStore
		logger.Infof("✓ trace store enabled path=%s", cfg.TracePath())
	}

	recommender := strategy.NewRecommender(model, policyStore, table, cfg.LLM.Temperature, tracer)
	orderParser := parser.NewOrderParser(model, table)

	var opt learning.Optimizer
	if cfg.LLM.Enabled() {
		opt = optimizer.NewLLMOptimizer(model, cfg.LLM.Temperature)
	}
	trainer := learning.NewTrainer(corrections, policyStore, policyIndex, opt,
		cfg.Learning.WindowDays, cfg.Learning.MinCorrections)
	learningSvc := learning.NewService(corrections, policyStore, trainer,
		cfg.AnalysisDir(), cfg.Learning.WindowDays, cfg.Learning.TrainOnSchedule)

	a := &App{
		cfg:         cfg,
		learningSvc: learningSvc,
		policyStore: policyStore,
		policyIndex: policyIndex,
		traceStore:  traceStore,
	}

	switch cfg.App.Mode {
	case config.ModeStdio:
		a.mcpServer = mcpsrv.New(mcpsrv.Deps{
			Recommender: recommender,
			Parser:      orderParser,
			Corrections: corrections,
			Table:       table,
		})
	default:
		router := &httpgw.Router{
			Recommender: recommender,
			Parser:      orderParser,
			Corrections: corrections,
			Learning:    learningSvc,
			Rewards:     rewards,
			Table:       table,
		}
		a.httpServer, err = httpgw.NewServer(httpgw.ServerConfig{Addr: cfg.App.HTTPAddr, Router: router})
		if err != nil {
			return nil, err
		}
	}

	logger.Infof("✓ app built mode=%s active_prompt=v%d", cfg.App.Mode, policyStore.ActiveVersion())
	return a, nil
}

// parseVersionOverride 接受 "v2" 或 "2" 两种写法,非法输入忽略。
func parseVersionOverride(s string) int {
	s = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v"))
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		logger.Warnf("invalid policy.active_version %q, ignored", s)
		return 0
	}
	return v
}
