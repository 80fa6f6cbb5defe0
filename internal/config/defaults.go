package config

import "strings"

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.Env) == "" {
		c.App.Env = "dev"
	}
	if strings.TrimSpace(c.App.Mode) == "" {
		c.App.Mode = "http"
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if strings.TrimSpace(c.App.HTTPAddr) == "" {
		c.App.HTTPAddr = ":8000"
	}
	if strings.TrimSpace(c.App.DataDir) == "" {
		c.App.DataDir = "data"
	}
	if strings.TrimSpace(c.LLM.APIURL) == "" {
		c.LLM.APIURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 2
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.3
	}
	if c.Learning.WindowDays <= 0 {
		c.Learning.WindowDays = 30
	}
	if c.Learning.MinCorrections <= 0 {
		c.Learning.MinCorrections = 3
	}
}
