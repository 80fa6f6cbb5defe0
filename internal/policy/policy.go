// Package policy 管理策略提示词的版本化工件:编号版本文件、当前部署指针、
// 备份与部署日志。版本号以文件名扫描与 sqlite 索引取较大者,保证单调递增。
package policy

import (
	"encoding/json"
	"time"
)

const (
	versionFilePattern = "strategy_v%d.txt"
	metadataPattern    = "strategy_v%d_metadata.json"
	currentFile        = "strategy_current.txt"
	deployLogPattern   = "deployment_log_v%d.json"
	backupDirName      = "backups"
)

// Metadata 随每个训练出的版本一同落盘。
// BaseVersion 是训练时生效的提示词版本,TopPairs 是本轮最高频的纠正组合。
type Metadata struct {
	Version              int             `json:"version"`
	BaseVersion          int             `json:"base_version,omitempty"`
	Created              time.Time       `json:"created"`
	CorrectionCount      int             `json:"correction_count"`
	PatternsFound        int             `json:"patterns_found"`
	FewShotExamplesAdded int             `json:"few_shot_examples_added"`
	Insights             []string        `json:"insights,omitempty"`
	TopPairs             json.RawMessage `json:"top_pairs,omitempty"`
	Analysis             json.RawMessage `json:"analysis,omitempty"`
}

// DeploymentRecord 记录一次部署或回滚。
type DeploymentRecord struct {
	Version        int       `json:"version"`
	DeployedAt     time.Time `json:"deployed_at"`
	Backup         string    `json:"backup,omitempty"`
	DryRun         bool      `json:"dry_run"`
	RolledBackFrom int       `json:"rolled_back_from,omitempty"`
}
