package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect は接続先データベースの種類を表す。
type Dialect string

const (
	// DialectSQLite はローカルファイルのSQLite。
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres はPostgreSQL。
	DialectPostgres Dialect = "postgres"
)

// DetectDialect は接続URLからDialectを判定する。
// postgres:// または postgresql:// で始まるURLはPostgreSQL、それ以外はSQLiteのファイルパスとして扱う。
func DetectDialect(databaseURL string) Dialect {
	lower := strings.ToLower(databaseURL)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// SQLitePath は接続URLからSQLiteのファイルパスを取り出す。
func SQLitePath(databaseURL string) string {
	return strings.TrimPrefix(databaseURL, "sqlite://")
}

// sqlitePragmas はSQLite接続ごとに適用するPRAGMA。
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout = 5000",
}

// Open はデータベース接続を開く。
// PostgreSQLの場合、sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
// SQLiteの場合はファイルを開き、PRAGMAを適用したうえで接続数を1に制限する。
func Open(databaseURL string) (*sql.DB, error) {
	if DetectDialect(databaseURL) == DialectPostgres {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil
	}

	db, err := sql.Open("sqlite", SQLitePath(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 書き込みは単一プロセス・逐次実行のため1接続で足りる
	db.SetMaxOpenConns(1)

	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	return db, nil
}
