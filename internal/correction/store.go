package correction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"ordermind/internal/logger"
)

const dateLayout = "2006-01-02"

// Store 以日期分片目录存放纠正记录。
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// Capture 落盘一条纠正并返回落盘路径。调用方传 interaction_id 则沿用,
// 缺省生成 uuid;时间戳一律以服务端为准。
// 写入先到临时文件再改名,读方不会扫到半截 JSON。
func (s *Store) Capture(rec Record) (Record, string, error) {
	if rec.InteractionID == "" {
		rec.InteractionID = uuid.NewString()
	}
	rec.Timestamp = time.Now().UTC()
	if rec.Metadata.CorrectionType == "" {
		rec.Metadata.CorrectionType = TypeStrategySuggestion
	}

	dir := filepath.Join(s.root, rec.Timestamp.Format(dateLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rec, "", fmt.Errorf("create correction dir: %w", err)
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return rec, "", err
	}
	path := filepath.Join(dir, rec.InteractionID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return rec, "", fmt.Errorf("write correction: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return rec, "", fmt.Errorf("finalize correction: %w", err)
	}
	logger.Infof("[correction] captured interaction_id=%s security=%s %s->%s",
		rec.InteractionID, rec.Security(), rec.SuggestedStrategy(), rec.CorrectedStrategy())
	return rec, path, nil
}

// Load 返回窗口内的全部纠正,按时间升序。sinceDays<=0 表示不限窗口。
// 解析失败的单个文件跳过并打日志,不让一条坏数据拖垮整个回放。
func (s *Store) Load(sinceDays int) ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read correction root: %w", err)
	}

	var cutoff time.Time
	if sinceDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -sinceDays)
	}

	var out []Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, derr := time.Parse(dateLayout, e.Name())
		if derr != nil {
			continue
		}
		if sinceDays > 0 && day.Before(cutoff.Truncate(24*time.Hour)) {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		files, ferr := os.ReadDir(dir)
		if ferr != nil {
			logger.Warnf("[correction] skip day %s: %v", e.Name(), ferr)
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			path := filepath.Join(dir, f.Name())
			b, rerr := os.ReadFile(path)
			if rerr != nil {
				logger.Warnf("[correction] skip %s: %v", path, rerr)
				continue
			}
			var rec Record
			if uerr := json.Unmarshal(b, &rec); uerr != nil {
				logger.Warnf("[correction] skip malformed %s: %v", path, uerr)
				continue
			}
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Count 返回窗口内纠正条数。
func (s *Store) Count(sinceDays int) (int, error) {
	recs, err := s.Load(sinceDays)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
