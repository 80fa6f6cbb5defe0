// Package trace 把每次策略建议记成一条 rollout span,
// 纠正与采纳回填奖励,为后续策略训练积累样本。
package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ordermind/internal/logger"
	"ordermind/internal/strategy"
)

// 奖励约定:被采纳 1.0,被纠正 0.0。
const (
	RewardAccepted  = 1.0
	RewardCorrected = 0.0

	// 已回填奖励的 span 达到该数量才值得跑一轮策略训练。
	MinTrainingSpans = 10
)

// Span 是一条建议的完整轨迹。
type Span struct {
	ID            uint           `gorm:"primaryKey"`
	RolloutID     string         `gorm:"uniqueIndex;size:64"`
	CreatedAt     time.Time      `gorm:"index"`
	Security      string         `gorm:"index;size:16"`
	Quantity      float64        ``
	Strategy      string         `gorm:"size:8"`
	Risk          string         `gorm:"size:16"`
	Source        string         `gorm:"size:8"`
	PromptVersion int            ``
	Reward        *float64       `gorm:"index"`
	RewardedAt    *time.Time     ``
	Payload       datatypes.JSON ``
}

func (Span) TableName() string { return "rollout_spans" }

// Store 基于 sqlite 的 span 存储。
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}
	if err := db.AutoMigrate(&Span{}); err != nil {
		return nil, fmt.Errorf("migrate trace store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EmitSuggestion 实现 strategy.Tracer。落库失败只打日志,
// 绝不把错误抛回推荐路径;返回 rollout id 供纠正侧引用。
func (s *Store) EmitSuggestion(ctx context.Context, order strategy.Order, sug strategy.Suggestion) string {
	rolloutID := uuid.NewString()
	payload, err := json.Marshal(map[string]any{"order": order, "suggestion": sug})
	if err != nil {
		logger.Warnf("[trace] marshal span payload: %v", err)
		return ""
	}
	span := Span{
		RolloutID:     rolloutID,
		CreatedAt:     time.Now().UTC(),
		Security:      order.Security,
		Quantity:      order.Quantity,
		Strategy:      sug.Strategy,
		Risk:          sug.Risk,
		Source:        sug.Source,
		PromptVersion: sug.PromptVersion,
		Payload:       datatypes.JSON(payload),
	}
	if err := s.db.WithContext(ctx).Create(&span).Error; err != nil {
		logger.Warnf("[trace] persist span: %v", err)
		return ""
	}
	return rolloutID
}

// RecordAccepted 把 rollout 标记为被采纳。
func (s *Store) RecordAccepted(ctx context.Context, rolloutID string) error {
	return s.setReward(ctx, rolloutID, RewardAccepted)
}

// RecordCorrected 把 rollout 标记为被纠正。
func (s *Store) RecordCorrected(ctx context.Context, rolloutID string) error {
	return s.setReward(ctx, rolloutID, RewardCorrected)
}

func (s *Store) setReward(ctx context.Context, rolloutID string, reward float64) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Span{}).
		Where("rollout_id = ?", rolloutID).
		Updates(map[string]any{"reward": reward, "rewarded_at": now})
	if res.Error != nil {
		return fmt.Errorf("set reward: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rollout %s not found", rolloutID)
	}
	return nil
}

// TrainingReadyCount 统计已回填奖励的 span 数。
func (s *Store) TrainingReadyCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Span{}).Where("reward IS NOT NULL").Count(&n).Error
	return n, err
}

// ReadyForTraining 判断样本量是否达到训练门槛。
func (s *Store) ReadyForTraining(ctx context.Context) (bool, int64, error) {
	n, err := s.TrainingReadyCount(ctx)
	if err != nil {
		return false, 0, err
	}
	return n >= MinTrainingSpans, n, nil
}

// Recent 返回最近的至多 limit 条 span,新的在前。
func (s *Store) Recent(ctx context.Context, limit int) ([]Span, error) {
	if limit <= 0 {
		limit = 50
	}
	var spans []Span
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&spans).Error
	return spans, err
}
