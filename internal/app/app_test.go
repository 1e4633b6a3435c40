package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

// setTestEnv はテスト用の一時SQLiteストアを指す環境変数を設定し、そのパスを返す。
func setTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "magic_rundown.db")
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("DATABASE_URL", dbPath)
	t.Setenv("RUN_LOCK_FILE", filepath.Join(dir, "rundown.lock"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("SOURCES_FILE", "")
	t.Setenv("RETENTION_DAYS", "7")
	return dbPath
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	dbPath := setTestEnv(t)

	var buf bytes.Buffer
	cfg, log, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil || log == nil {
		t.Fatal("expected non-nil config and logger")
	}
	if cfg.DatabaseURL != dbPath {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, dbPath)
	}

	// グローバルロガーがJSON出力に設定されている
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_LogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	if _, _, err := Init(&buf); err != nil {
		t.Fatalf("Init() がエラーを返した: %v", err)
	}

	slog.Default().Info("suppressed")
	slog.Default().Warn("visible")
	if strings.Contains(buf.String(), "suppressed") {
		t.Error("LOG_LEVEL=warnでINFOが出力された")
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Error("WARNが出力されていない")
	}
}

func TestInit_UnknownLogLevel_WarnsAndUsesInfo(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "loud")

	var buf bytes.Buffer
	if _, _, err := Init(&buf); err != nil {
		t.Fatalf("Init() がエラーを返した: %v", err)
	}
	if !strings.Contains(buf.String(), `"log_level":"loud"`) {
		t.Errorf("解釈できないLOG_LEVELの警告がない: %s", buf.String())
	}
}

func TestInit_WithInvalidConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("RETENTION_DAYS", "0")

	var buf bytes.Buffer
	cfg, _, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for invalid RETENTION_DAYS, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "SQLiteのパスはそのまま", in: "data/magic_rundown.db", want: "data/magic_rundown.db"},
		{name: "PostgreSQLの認証情報を隠す", in: "postgres://user:secret@db:5432/rundown?sslmode=disable", want: "postgres://***@db:5432/rundown?sslmode=disable"},
		{name: "認証情報なし", in: "postgres://db:5432/rundown", want: "postgres://db:5432/rundown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maskDatabaseURL(tt.in)
			if got != tt.want {
				t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.Contains(got, "secret") {
				t.Error("パスワードが含まれている")
			}
		})
	}
}
