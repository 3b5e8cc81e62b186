// Package dbtest 为测试提供迁移完毕的内存 SQLite 数据库。
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"chatapp/internal/db"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq atomic.Int64

// New 打开一个测试独占的内存库，测试结束时关闭。
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:chatapp_test_%d?mode=memory&cache=shared&_busy_timeout=5000", seq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), db.Options())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// 单连接：避免 SQLite 并发写锁冲突，同时保持内存库存活。
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}
