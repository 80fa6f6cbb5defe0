package config

import (
	"path/filepath"
	"strings"
	"time"
)

// 运行模式。
const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// Config 是 ordermind 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	LLM      LLMConfig      `toml:"llm"`
	Policy   PolicyConfig   `toml:"policy"`
	RefData  RefDataConfig  `toml:"refdata"`
	Learning LearningConfig `toml:"learning"`
	Trace    TraceConfig    `toml:"trace"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	Mode     string `toml:"mode"` // "http" | "stdio"
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
	DataDir  string `toml:"data_dir"`
}

// LLMConfig 描述聊天补全后端（OpenAI 兼容，含 Azure 部署形式）。
// APIKey 为空时进程终身走规则回退，不再尝试调用模型。
type LLMConfig struct {
	APIURL         string  `toml:"api_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	APIVersion     string  `toml:"api_version"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxRetries     int     `toml:"max_retries"`
	Temperature    float64 `toml:"temperature"`
}

func (l LLMConfig) Enabled() bool {
	return strings.TrimSpace(l.APIKey) != ""
}

func (l LLMConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

type PolicyConfig struct {
	// ActiveVersion 为空时由 strategy_current.txt 头部决定，缺省 v1。
	ActiveVersion string `toml:"active_version"`
}

type RefDataConfig struct {
	Path string `toml:"path"`
}

// LearningConfig 控制离线学习批处理。
type LearningConfig struct {
	WindowDays      int    `toml:"window_days"`
	MinCorrections  int    `toml:"min_corrections"`
	Interval        string `toml:"interval"` // 如 "24h"；空串关闭定时任务
	TrainOnSchedule bool   `toml:"train_on_schedule"`
}

type TraceConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// CorrectionsDir / PromptsDir / AnalysisDir 统一从 data_dir 派生，
// 与磁盘工件布局保持一处定义。
func (c *Config) CorrectionsDir() string { return filepath.Join(c.App.DataDir, "corrections") }
func (c *Config) PromptsDir() string     { return filepath.Join(c.App.DataDir, "prompts") }
func (c *Config) AnalysisDir() string    { return filepath.Join(c.App.DataDir, "analysis") }

func (c *Config) PolicyIndexPath() string { return filepath.Join(c.App.DataDir, "policy_index.db") }

func (c *Config) TracePath() string {
	if strings.TrimSpace(c.Trace.Path) != "" {
		return c.Trace.Path
	}
	return filepath.Join(c.App.DataDir, "traces.db")
}
