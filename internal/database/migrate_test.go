package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

var pipelineTables = []string{"stories", "selected_stories", "radio_scripts"}

// setupSQLiteURL はテスト用の一時SQLiteファイルのURLを返す。
func setupSQLiteURL(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "magic_rundown.db")
}

func sqliteTableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&count)
	if err != nil {
		t.Fatalf("テーブル存在確認クエリに失敗: %v", err)
	}
	return count == 1
}

func TestRunMigrations_SQLite_Up(t *testing.T) {
	dbURL := setupSQLiteURL(t)

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	db, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open に失敗: %v", err)
	}
	defer db.Close()

	for _, table := range pipelineTables {
		t.Run("テーブル存在確認_"+table, func(t *testing.T) {
			if !sqliteTableExists(t, db, table) {
				t.Errorf("テーブル %q が存在しません", table)
			}
		})
	}
}

func TestRunMigrations_SQLite_Idempotent(t *testing.T) {
	dbURL := setupSQLiteURL(t)

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("1回目のマイグレーション実行に失敗: %v", err)
	}
	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("2回目のマイグレーション実行に失敗（冪等性の問題）: %v", err)
	}
}

func TestSchemaVersion_SQLite(t *testing.T) {
	dbURL := setupSQLiteURL(t)

	version, dirty, err := SchemaVersion(dbURL)
	if err != nil || version != 0 || dirty {
		t.Fatalf("適用前: SchemaVersion() = (%d, %v, %v), want (0, false, nil)", version, dirty, err)
	}

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	version, dirty, err = SchemaVersion(dbURL)
	if err != nil || version != 1 || dirty {
		t.Errorf("適用後: SchemaVersion() = (%d, %v, %v), want (1, false, nil)", version, dirty, err)
	}
}

func TestRunMigrations_SQLite_RefusesDirtySchema(t *testing.T) {
	dbURL := setupSQLiteURL(t)
	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	db, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open に失敗: %v", err)
	}
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatalf("dirtyフラグの設定に失敗: %v", err)
	}
	db.Close()

	if err := RunMigrations(dbURL); !errors.Is(err, ErrDirtySchema) {
		t.Errorf("RunMigrations() = %v, want ErrDirtySchema", err)
	}
}

func TestMigrations_SQLite_UpAndDown(t *testing.T) {
	dbURL := setupSQLiteURL(t)

	m, err := NewMigrator(dbURL)
	if err != nil {
		t.Fatalf("Migrator生成に失敗: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		t.Fatalf("Up マイグレーション実行に失敗: %v", err)
	}
	if err := m.Down(); err != nil {
		t.Fatalf("Down マイグレーション実行に失敗: %v", err)
	}

	db, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open に失敗: %v", err)
	}
	defer db.Close()

	for _, table := range pipelineTables {
		if sqliteTableExists(t, db, table) {
			t.Errorf("Down後もテーブル %q が残っています", table)
		}
	}
}

func TestRadioScriptsDefaults_SQLite(t *testing.T) {
	dbURL := setupSQLiteURL(t)
	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	db, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open に失敗: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO radio_scripts (id, tease, full_story, timestamp) VALUES ('a1', 't', 's', '2026-01-01 00:00:00')`)
	if err != nil {
		t.Fatalf("INSERT に失敗: %v", err)
	}

	var aired int
	var category string
	if err := db.QueryRow(`SELECT is_aired, category FROM radio_scripts WHERE id = 'a1'`).Scan(&aired, &category); err != nil {
		t.Fatalf("SELECT に失敗: %v", err)
	}
	if aired != 0 {
		t.Errorf("is_aired のデフォルト = %d, want 0", aired)
	}
	if category != "general" {
		t.Errorf("category のデフォルト = %q, want %q", category, "general")
	}
}

func TestRadioScriptsAiredCheck_SQLite(t *testing.T) {
	dbURL := setupSQLiteURL(t)
	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	db, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open に失敗: %v", err)
	}
	defer db.Close()

	for _, aired := range []int{0, 1} {
		id := fmt.Sprintf("ok%d", aired)
		if _, err := db.Exec(`INSERT INTO radio_scripts (id, tease, full_story, timestamp, is_aired) VALUES (?, 't', 's', '2026-01-01 00:00:00', ?)`, id, aired); err != nil {
			t.Errorf("is_aired=%d の INSERT に失敗: %v", aired, err)
		}
	}
	if _, err := db.Exec(`INSERT INTO radio_scripts (id, tease, full_story, timestamp, is_aired) VALUES ('ng', 't', 's', '2026-01-01 00:00:00', 2)`); err == nil {
		t.Error("is_aired=2 がCHECK制約で拒否されなかった")
	}
}

// 両方言のスキーマは同じ列と制約を持つ。
func TestMigrations_DialectsInSync(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations/sqlite")
	if err != nil {
		t.Fatalf("ReadDir に失敗: %v", err)
	}
	for _, e := range entries {
		sqlite, err := migrationsFS.ReadFile("migrations/sqlite/" + e.Name())
		if err != nil {
			t.Fatalf("%s の読み込みに失敗: %v", e.Name(), err)
		}
		postgres, err := migrationsFS.ReadFile("migrations/postgres/" + e.Name())
		if err != nil {
			t.Errorf("postgres 側に %s がない: %v", e.Name(), err)
			continue
		}
		if string(sqlite) != string(postgres) {
			t.Errorf("%s が方言間で異なる", e.Name())
		}
	}
}

// TestRunMigrations_Postgres はTEST_DATABASE_URLが設定されている場合のみ実行する。
func TestRunMigrations_Postgres(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}

	cleanupSQL := `
		DROP TABLE IF EXISTS radio_scripts CASCADE;
		DROP TABLE IF EXISTS selected_stories CASCADE;
		DROP TABLE IF EXISTS stories CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`
	if _, err := db.Exec(cleanupSQL); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	for _, table := range pipelineTables {
		var exists bool
		err := db.QueryRow(
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
			table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("テーブル存在確認クエリに失敗: %v", err)
		}
		if !exists {
			t.Errorf("テーブル %q が存在しません", table)
		}
	}
}
