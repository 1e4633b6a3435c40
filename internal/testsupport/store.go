// Package testsupport はテスト用のストア準備を提供する。
package testsupport

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/hitoshi/rundown/internal/database"
)

// MustOpenStore は一時ディレクトリにマイグレーション済みのSQLiteストアを作成し、
// テスト終了時に閉じる。戻り値のURLはRunMigrationsやOpenにそのまま渡せる。
func MustOpenStore(t testing.TB) (*sql.DB, string) {
	t.Helper()

	dbURL := filepath.Join(t.TempDir(), "magic_rundown.db")
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("database.RunMigrations: %v", err)
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db, dbURL
}

// MustExec はテストデータ投入用のSQLを実行する。
func MustExec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()

	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// CountRows は指定テーブルの行数を返す。
func CountRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT count(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
