package repository

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/rundown/internal/database"
	"github.com/hitoshi/rundown/internal/model"
)

// Builder はDialectに合わせたプレースホルダ形式のクエリビルダーを返す。
func Builder(dialect database.Dialect) sq.StatementBuilderType {
	if dialect == database.DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// upsertSuffix は主キー衝突時に指定カラムを上書きするON CONFLICT句を返す。
// SQLite(3.24+)とPostgreSQLの両方で同じ構文が使える。
func upsertSuffix(columns ...string) string {
	s := "ON CONFLICT (id) DO UPDATE SET "
	for i, col := range columns {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s = excluded.%s", col, col)
	}
	return s
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// parseStoredTimestamp はストアのタイムスタンプ文字列を解析する。
func parseStoredTimestamp(id, value string) (time.Time, error) {
	ts, err := model.ParseTimestamp(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("タイムスタンプの解析に失敗しました (id=%s): %w", id, err)
	}
	return ts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
