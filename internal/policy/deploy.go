package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

var backupNameRe = regexp.MustCompile(`^strategy_v(\d+)_backup_(\d{8}_\d{6})\.txt$`)

// LatestBackupVersion 扫描 backups/ 目录,返回时间戳最新的那份备份对应的版本号。
// 没有任何备份时返回错误。
func (s *Store) LatestBackupVersion() (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, backupDirName))
	if err != nil {
		return 0, fmt.Errorf("no backups available: %w", err)
	}
	var bestStamp string
	var bestVersion int
	for _, e := range entries {
		m := backupNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if m[2] > bestStamp {
			bestStamp = m[2]
			bestVersion, _ = strconv.Atoi(m[1])
		}
	}
	if bestVersion == 0 {
		return 0, fmt.Errorf("no backups available")
	}
	return bestVersion, nil
}

// SaveVersion 写入版本文件与元数据。先写临时文件再改名,读方不会看到半截内容。
func (s *Store) SaveVersion(version int, text string, meta Metadata) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.dir, fmt.Sprintf(versionFilePattern, version)), []byte(text)); err != nil {
		return fmt.Errorf("save prompt v%d: %w", version, err)
	}
	meta.Version = version
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.dir, fmt.Sprintf(metadataPattern, version)), b); err != nil {
		return fmt.Errorf("save metadata v%d: %w", version, err)
	}
	return nil
}

// LoadMetadata 读取指定版本的元数据,不存在时返回 os.ErrNotExist。
func (s *Store) LoadMetadata(version int) (Metadata, error) {
	var meta Metadata
	b, err := os.ReadFile(filepath.Join(s.dir, fmt.Sprintf(metadataPattern, version)))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("parse metadata v%d: %w", version, err)
	}
	return meta, nil
}

// Deploy 把指定版本推为当前生效版本:
// 已有的 current 先备份到 backups/,再写带版本头的新 current,最后落部署日志。
// dryRun 只校验版本存在并返回将要执行的记录,不碰任何文件。
func (s *Store) Deploy(version int, dryRun bool) (DeploymentRecord, error) {
	rec := DeploymentRecord{Version: version, DeployedAt: time.Now().UTC(), DryRun: dryRun}
	text, err := s.PromptText(version)
	if err != nil {
		return rec, err
	}
	if dryRun {
		return rec, nil
	}
	if err := os.MkdirAll(filepath.Join(s.dir, backupDirName), 0o755); err != nil {
		return rec, err
	}

	currentPath := filepath.Join(s.dir, currentFile)
	// 原地重新部署同一版本不产备份
	if prev, _, err := s.readCurrentHeader(); err == nil && prev != version {
		backupName := fmt.Sprintf("strategy_v%d_backup_%s.txt", prev, rec.DeployedAt.Format("20060102_150405"))
		backupPath := filepath.Join(s.dir, backupDirName, backupName)
		if b, rerr := os.ReadFile(currentPath); rerr == nil {
			if werr := writeAtomic(backupPath, b); werr != nil {
				return rec, fmt.Errorf("backup current: %w", werr)
			}
			rec.Backup = backupPath
		}
	}

	header := fmt.Sprintf("# VERSION: v%d\n# DEPLOYED: %s\n", version, rec.DeployedAt.Format(time.RFC3339))
	if err := writeAtomic(currentPath, []byte(header+text)); err != nil {
		return rec, fmt.Errorf("write %s: %w", currentFile, err)
	}
	s.SetActiveVersion(0) // 清掉运行时覆盖,让指针文件生效

	logBytes, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return rec, err
	}
	logPath := filepath.Join(s.dir, fmt.Sprintf(deployLogPattern, version))
	if err := writeAtomic(logPath, logBytes); err != nil {
		return rec, fmt.Errorf("write deployment log: %w", err)
	}
	return rec, nil
}

// CurrentVersion 返回指针文件声明的版本与部署时间。
// 没有指针文件时按内置基础版 v1 计。
func (s *Store) CurrentVersion() (int, time.Time) {
	v, deployed, err := s.readCurrentHeader()
	if err != nil {
		return 1, time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, deployed)
	return v, t
}

// Rollback 回滚到指定版本。toVersion 传 0 时取最近一次备份对应的版本。
// 目标必须是已存在的版本文件。
func (s *Store) Rollback(toVersion int) (DeploymentRecord, error) {
	if toVersion <= 0 {
		v, err := s.LatestBackupVersion()
		if err != nil {
			return DeploymentRecord{}, err
		}
		toVersion = v
	}
	from, _ := s.CurrentVersion()
	if from > 0 && from == toVersion {
		return DeploymentRecord{}, fmt.Errorf("already on v%d", toVersion)
	}
	rec, err := s.Deploy(toVersion, false)
	if err != nil {
		return rec, err
	}
	rec.RolledBackFrom = from
	logBytes, merr := json.MarshalIndent(rec, "", "  ")
	if merr == nil {
		_ = writeAtomic(filepath.Join(s.dir, fmt.Sprintf(deployLogPattern, toVersion)), logBytes)
	}
	return rec, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
