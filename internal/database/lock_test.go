package database

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquireRunLock_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rundown.lock")

	first, err := AcquireRunLock(path)
	if err != nil {
		t.Fatalf("1回目のロック取得に失敗: %v", err)
	}
	defer first.Release()

	_, err = AcquireRunLock(path)
	if !errors.Is(err, ErrRunLocked) {
		t.Fatalf("2回目のロック取得は ErrRunLocked を返すべき: got %v", err)
	}
}

func TestAcquireRunLock_ReacquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rundown.lock")

	first, err := AcquireRunLock(path)
	if err != nil {
		t.Fatalf("ロック取得に失敗: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("ロック解放に失敗: %v", err)
	}

	second, err := AcquireRunLock(path)
	if err != nil {
		t.Fatalf("解放後のロック取得に失敗: %v", err)
	}
	second.Release()
}

func TestDefaultLockPath(t *testing.T) {
	if got := DefaultLockPath("data/magic_rundown.db", "/tmp/rundown.lock"); got != "data/magic_rundown.db.lock" {
		t.Errorf("SQLite: got %q", got)
	}
	if got := DefaultLockPath("postgres://localhost/rundown", "/tmp/rundown.lock"); got != "/tmp/rundown.lock" {
		t.Errorf("Postgres: got %q", got)
	}
}

func TestRunLock_ReleaseNil(t *testing.T) {
	var l *RunLock
	if err := l.Release(); err != nil {
		t.Errorf("nil RunLock の Release はエラーを返すべきではない: %v", err)
	}
}
