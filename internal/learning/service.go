package learning

import (
	"context"
	"errors"

	"ordermind/internal/correction"
	"ordermind/internal/logger"
	"ordermind/internal/policy"
)

// Service 把分析、训练与报告编排成对外的学习入口,
// HTTP 管理接口与定时任务都走这里。
type Service struct {
	corrections *correction.Store
	policy      *policy.Store
	trainer     *Trainer

	analysisDir     string
	windowDays      int
	trainOnSchedule bool
}

func NewService(cs *correction.Store, ps *policy.Store, trainer *Trainer, analysisDir string, windowDays int, trainOnSchedule bool) *Service {
	return &Service{
		corrections:     cs,
		policy:          ps,
		trainer:         trainer,
		analysisDir:     analysisDir,
		windowDays:      windowDays,
		trainOnSchedule: trainOnSchedule,
	}
}

// Analyze 对窗口内纠正做一次分析并落报告,返回分析结果与报告路径。
func (s *Service) Analyze(ctx context.Context) (Analysis, string, error) {
	records, err := s.corrections.Load(s.windowDays)
	if err != nil {
		return Analysis{}, "", err
	}
	analysis := Analyze(records, s.windowDays)
	path, err := WriteReport(s.analysisDir, analysis)
	if err != nil {
		return analysis, "", err
	}
	return analysis, path, nil
}

// Train 训练一个新版本提示词。样本不足返回 ErrNotEnoughCorrections。
func (s *Service) Train(ctx context.Context) (TrainResult, error) {
	return s.trainer.Train(ctx)
}

// Policy 暴露提示词存储,部署与回滚接口直接用它。
func (s *Service) Policy() *policy.Store { return s.policy }

// RunScheduled 是定时任务入口:先分析,配置允许时接着训练。
// 任何失败只打日志,下个周期重来。
func (s *Service) RunScheduled(ctx context.Context) {
	analysis, path, err := s.Analyze(ctx)
	if err != nil {
		logger.Errorf("[learning] scheduled analysis failed: %v", err)
		return
	}
	logger.Infof("[learning] scheduled analysis done corrections=%d patterns=%d report=%s",
		analysis.TotalCorrections, len(analysis.Patterns), path)

	if !s.trainOnSchedule {
		return
	}
	res, err := s.trainer.Train(ctx)
	if err != nil {
		var need *ErrNotEnoughCorrections
		if errors.As(err, &need) {
			logger.Infof("[learning] scheduled training skipped: %v", need)
			return
		}
		logger.Errorf("[learning] scheduled training failed: %v", err)
		return
	}
	logger.Infof("[learning] scheduled training produced v%d", res.Version)
}
