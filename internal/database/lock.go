package database

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrRunLocked は別のバッチ処理が同じストアに対して実行中であることを示す。
var ErrRunLocked = errors.New("another batch run holds the lock")

// RunLock はバッチステージを直列化するためのファイルロック。
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock はロックファイルの排他ロックを非ブロッキングで取得する。
// 取得できない場合はErrRunLockedを返す。
func AcquireRunLock(path string) (*RunLock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunLocked, path)
	}
	return &RunLock{lock: lock}, nil
}

// Release はロックを解放する。
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// DefaultLockPath は接続URLから既定のロックファイルパスを導出する。
// SQLiteはDBファイルの隣、PostgreSQLはfallbackを使う。
func DefaultLockPath(databaseURL, fallback string) string {
	if DetectDialect(databaseURL) == DialectSQLite {
		return SQLitePath(databaseURL) + ".lock"
	}
	return fallback
}
