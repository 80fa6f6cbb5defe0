package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"ordermind/internal/logger"
)

//go:embed base_prompt.txt
var basePrompt string

var versionFileRe = regexp.MustCompile(`^strategy_v(\d+)\.txt$`)

// Store 负责提示词版本文件的读写与当前生效版本的解析。
// 生效版本的优先级:显式 override > strategy_current.txt 头部 > 内置 v1。
// 训练出但未部署的版本文件不参与解析,提升必须经过 Deploy。
type Store struct {
	dir      string
	override int

	mu     sync.RWMutex
	forced int // SetActiveVersion 运行时覆盖,0 表示未设置
}

func NewStore(dir string, overrideVersion int) *Store {
	return &Store{dir: dir, override: overrideVersion}
}

func (s *Store) Dir() string { return s.dir }

// SetActiveVersion 在运行时原子切换生效版本,0 恢复默认解析。
func (s *Store) SetActiveVersion(v int) {
	s.mu.Lock()
	s.forced = v
	s.mu.Unlock()
}

// ActiveVersion 解析当前应当生效的版本号。找不到任何工件时返回 1(内置模板)。
func (s *Store) ActiveVersion() int {
	s.mu.RLock()
	forced := s.forced
	s.mu.RUnlock()
	if forced > 0 {
		return forced
	}
	if s.override > 0 {
		return s.override
	}
	if v, _, err := s.readCurrentHeader(); err == nil && v > 0 {
		return v
	}
	return 1
}

// ActivePrompt 返回生效版本号与对应模板文本。
// 版本文件缺失时回退到内置模板,保证推荐路径永远拿得到提示词。
func (s *Store) ActivePrompt() (int, string) {
	v := s.ActiveVersion()
	text, err := s.PromptText(v)
	if err != nil {
		logger.Warnf("[policy] prompt v%d unavailable, falling back to built-in: %v", v, err)
		return 1, basePrompt
	}
	return v, text
}

// PromptText 读取指定版本的模板。v<=1 且文件不存在时返回内置模板。
func (s *Store) PromptText(version int) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf(versionFilePattern, version))
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && version <= 1 {
			return basePrompt, nil
		}
		return "", fmt.Errorf("read prompt v%d: %w", version, err)
	}
	return string(b), nil
}

// Versions 扫描目录返回升序排列的所有版本号。
func (s *Store) Versions() []int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var out []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m := versionFileRe.FindStringSubmatch(e.Name()); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

// Watch 监听目录变化,指针文件被外部改写时打日志提示。
// 解析本身每次都走文件系统,这里只负责可见性。
func (s *Store) Watch(stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		w.Close()
		return err
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == currentFile && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logger.Infof("[policy] %s changed, active version now v%d", currentFile, s.ActiveVersion())
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnf("[policy] watcher error: %v", err)
			}
		}
	}()
	return nil
}

// readCurrentHeader 解析 strategy_current.txt 头部的版本与部署时间。
func (s *Store) readCurrentHeader() (int, string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		return 0, "", err
	}
	var version int
	var deployed string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "# VERSION: v"); ok {
			version, _ = strconv.Atoi(strings.TrimSpace(rest))
		} else if rest, ok := strings.CutPrefix(line, "# DEPLOYED: "); ok {
			deployed = strings.TrimSpace(rest)
		}
		if !strings.HasPrefix(line, "#") && line != "" {
			break
		}
	}
	if version == 0 {
		return 0, "", fmt.Errorf("no version header in %s", currentFile)
	}
	return version, deployed, nil
}
