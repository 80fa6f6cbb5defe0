package policy

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Index 是版本号的 sqlite 计数器。文件名扫描可能因手工删除出现空洞,
// 索引保证发号只增不减;NextVersion 同时参考两边取较大基数。
type Index struct {
	db *sql.DB
}

func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open policy index: %w", err)
	}
	db.SetMaxOpenConns(1)
	const schema = `CREATE TABLE IF NOT EXISTS policy_versions (
		version    INTEGER PRIMARY KEY,
		created_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init policy index: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

// MaxVersion 返回已发号的最大版本,空表为 0。
func (ix *Index) MaxVersion() (int, error) {
	var v sql.NullInt64
	if err := ix.db.QueryRow(`SELECT MAX(version) FROM policy_versions`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// Record 登记一个已写盘的版本。重复登记同一版本是幂等的。
func (ix *Index) Record(version int, at time.Time) error {
	_, err := ix.db.Exec(
		`INSERT OR IGNORE INTO policy_versions(version, created_at) VALUES(?, ?)`,
		version, at.UTC().Format(time.RFC3339))
	return err
}

// NextVersion 结合文件名扫描与索引计算下一个版本号并登记。
// 内置模板占住 v1,首个训练产物从 v2 起。
func (ix *Index) NextVersion(store *Store) (int, error) {
	base, err := ix.MaxVersion()
	if err != nil {
		return 0, err
	}
	if vs := store.Versions(); len(vs) > 0 && vs[len(vs)-1] > base {
		base = vs[len(vs)-1]
	}
	if base < 1 {
		base = 1
	}
	next := base + 1
	if err := ix.Record(next, time.Now()); err != nil {
		return 0, err
	}
	return next, nil
}
