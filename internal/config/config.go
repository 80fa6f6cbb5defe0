package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 YAML 配置并应用环境变量覆盖。
// path 为空时仅用默认值 + 环境变量（stdio 模式常见）。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides 让部署脚本无需改配置文件即可切换关键项。
// 变量名沿用上游网关的习惯（AZURE_OPENAI_*、STRATEGY_PROMPT_VERSION）。
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AZURE_OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
		c.LLM.APIURL = v
	}
	if v := os.Getenv("AZURE_OPENAI_CHAT_DEPLOYMENT"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("AZURE_OPENAI_API_VERSION"); v != "" {
		c.LLM.APIVersion = v
	}
	if v := os.Getenv("STRATEGY_PROMPT_VERSION"); v != "" {
		c.Policy.ActiveVersion = v
	}
	if v := os.Getenv("ORDERMIND_DATA_DIR"); v != "" {
		c.App.DataDir = v
	}
	if v := os.Getenv("ORDERMIND_MODE"); v != "" {
		c.App.Mode = v
	}
}

func validate(c *Config) error {
	switch strings.ToLower(strings.TrimSpace(c.App.Mode)) {
	case "http", "stdio":
	default:
		return fmt.Errorf("app.mode must be http or stdio, got %q", c.App.Mode)
	}
	if strings.TrimSpace(c.App.DataDir) == "" {
		return fmt.Errorf("app.data_dir cannot be empty")
	}
	if c.Learning.WindowDays <= 0 {
		return fmt.Errorf("learning.window_days must be positive")
	}
	if c.Learning.MinCorrections <= 0 {
		return fmt.Errorf("learning.min_corrections must be positive")
	}
	return nil
}
