package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *Index) {
	t.Helper()
	dir := t.TempDir()
	s := NewStore(dir, 0)
	ix, err := OpenIndex(filepath.Join(dir, "policy_index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return s, ix
}

func TestStore_FallbackToBuiltin(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	v, text := s.ActivePrompt()
	assert.Equal(t, 1, v)
	assert.Contains(t, text, "{security}")
	assert.Contains(t, text, "Return ONLY valid JSON")
}

// 内置模板占住 v1,第一个训练产物必须从 v2 起。
func TestIndex_FirstAllocatedVersionIsTwo(t *testing.T) {
	s, ix := newTestStore(t)
	v, err := ix.NextVersion(s)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestIndex_VersionsAreMonotonic(t *testing.T) {
	s, ix := newTestStore(t)

	v1, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v1, "prompt one", Metadata{Created: time.Now()}))

	v2, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v2, "prompt two", Metadata{Created: time.Now()}))

	v3, err := ix.NextVersion(s)
	require.NoError(t, err)

	assert.Equal(t, v1+1, v2)
	assert.Equal(t, v2+1, v3)
	assert.Equal(t, []int{v1, v2}, s.Versions())
}

func TestIndex_SurvivesDeletedVersionFiles(t *testing.T) {
	s, ix := newTestStore(t)
	v1, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v1, "one", Metadata{}))
	v2, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v2, "two", Metadata{}))

	// 手工删掉文件后,索引仍保证不复用旧号
	require.NoError(t, os.Remove(filepath.Join(s.Dir(), fmt.Sprintf("strategy_v%d.txt", v2))))
	v3, err := ix.NextVersion(s)
	require.NoError(t, err)
	assert.Equal(t, v2+1, v3)
}

func TestStore_DeployAndRollback(t *testing.T) {
	s, ix := newTestStore(t)
	v1, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v1, "first prompt", Metadata{}))
	v2, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v2, "second prompt", Metadata{}))

	rec, err := s.Deploy(v1, false)
	require.NoError(t, err)
	assert.Equal(t, v1, rec.Version)
	cur, _ := s.CurrentVersion()
	assert.Equal(t, v1, cur)

	rec, err = s.Deploy(v2, false)
	require.NoError(t, err)
	assert.Equal(t, v2, rec.Version)
	assert.NotEmpty(t, rec.Backup, "second deploy must back up the current pointer")
	cur, _ = s.CurrentVersion()
	assert.Equal(t, v2, cur)

	b, err := os.ReadFile(filepath.Join(s.Dir(), "strategy_current.txt"))
	require.NoError(t, err)
	text := string(b)
	assert.True(t, strings.HasPrefix(text, "# VERSION: v"))
	assert.Contains(t, text, "# DEPLOYED: ")
	assert.Contains(t, text, "second prompt")

	rb, err := s.Rollback(v1)
	require.NoError(t, err)
	assert.Equal(t, v2, rb.RolledBackFrom)
	cur, _ = s.CurrentVersion()
	assert.Equal(t, v1, cur)
	_, prompt := s.ActivePrompt()
	assert.Equal(t, "first prompt", prompt)
}

func TestStore_RollbackToLatestBackup(t *testing.T) {
	s, ix := newTestStore(t)
	v1, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v1, "first prompt", Metadata{}))
	v2, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v2, "second prompt", Metadata{}))

	_, err = s.Rollback(0)
	assert.Error(t, err, "no backups yet")

	_, err = s.Deploy(v1, false)
	require.NoError(t, err)
	_, err = s.Deploy(v2, false)
	require.NoError(t, err)

	latest, err := s.LatestBackupVersion()
	require.NoError(t, err)
	assert.Equal(t, v1, latest)

	rb, err := s.Rollback(0)
	require.NoError(t, err)
	assert.Equal(t, v1, rb.Version)
	cur, _ := s.CurrentVersion()
	assert.Equal(t, v1, cur)
}

func TestStore_DeployDryRun(t *testing.T) {
	s, ix := newTestStore(t)
	v1, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v1, "only prompt", Metadata{}))

	rec, err := s.Deploy(v1, true)
	require.NoError(t, err)
	assert.True(t, rec.DryRun)
	_, statErr := os.Stat(filepath.Join(s.Dir(), "strategy_current.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_RollbackToSameVersion(t *testing.T) {
	s, ix := newTestStore(t)
	v1, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v1, "p", Metadata{}))
	_, err = s.Deploy(v1, false)
	require.NoError(t, err)

	_, err = s.Rollback(v1)
	assert.Error(t, err)
}

func TestStore_ActiveVersionOverride(t *testing.T) {
	s, ix := newTestStore(t)
	v1, _ := ix.NextVersion(s)
	require.NoError(t, s.SaveVersion(v1, "p1", Metadata{}))
	v2, _ := ix.NextVersion(s)
	require.NoError(t, s.SaveVersion(v2, "p2", Metadata{}))
	_, err := s.Deploy(v1, false)
	require.NoError(t, err)

	assert.Equal(t, v1, s.ActiveVersion())
	s.SetActiveVersion(v2)
	assert.Equal(t, v2, s.ActiveVersion())
	s.SetActiveVersion(0)
	assert.Equal(t, v1, s.ActiveVersion())
}

// 训练出但未部署的版本文件不改变生效提示词,提升必须经过 Deploy。
func TestStore_UndeployedVersionNotActive(t *testing.T) {
	s, ix := newTestStore(t)
	v, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v, "trained but not promoted", Metadata{}))

	assert.Equal(t, 1, s.ActiveVersion())
	_, prompt := s.ActivePrompt()
	assert.NotContains(t, prompt, "trained but not promoted")
	assert.Contains(t, prompt, "Return ONLY valid JSON")

	_, err = s.Deploy(v, false)
	require.NoError(t, err)
	assert.Equal(t, v, s.ActiveVersion())
	_, prompt = s.ActivePrompt()
	assert.Equal(t, "trained but not promoted", prompt)
}

func TestStore_CurrentVersionDefaultsToBuiltin(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	v, deployedAt := s.CurrentVersion()
	assert.Equal(t, 1, v)
	assert.True(t, deployedAt.IsZero())
}

// 原地重新部署同一版本不应产生备份。
func TestStore_RedeploySameVersionSkipsBackup(t *testing.T) {
	s, ix := newTestStore(t)
	v, err := ix.NextVersion(s)
	require.NoError(t, err)
	require.NoError(t, s.SaveVersion(v, "p", Metadata{}))

	_, err = s.Deploy(v, false)
	require.NoError(t, err)
	rec, err := s.Deploy(v, false)
	require.NoError(t, err)
	assert.Empty(t, rec.Backup)
	entries, _ := os.ReadDir(filepath.Join(s.Dir(), "backups"))
	assert.Empty(t, entries)
}

func TestStore_Metadata(t *testing.T) {
	s, ix := newTestStore(t)
	v1, _ := ix.NextVersion(s)
	created := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveVersion(v1, "p", Metadata{Created: created, CorrectionCount: 7}))

	meta, err := s.LoadMetadata(v1)
	require.NoError(t, err)
	assert.Equal(t, v1, meta.Version)
	assert.Equal(t, 7, meta.CorrectionCount)
	assert.True(t, created.Equal(meta.Created))
}
