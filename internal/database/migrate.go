// Package database はデータベース接続、マイグレーション、実行ロックを提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// Dialectに応じて埋め込みのマイグレーションディレクトリを切り替える。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	dialect := DetectDialect(databaseURL)

	source, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// ErrDirtySchema は前回のマイグレーションが途中で失敗し、手動の修復が必要な状態を表す。
var ErrDirtySchema = errors.New("database schema is dirty")

// RunMigrations は未適用のマイグレーションをすべて適用する。
// 最新であればエラーなしで返る。dirtyな状態からは進めずErrDirtySchemaを返す。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if _, dirty, err := m.Version(); err == nil && dirty {
		return ErrDirtySchema
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SchemaVersion は適用済みの最新マイグレーション番号を返す。
// 未適用なら0を返す。
func SchemaVersion(databaseURL string) (version uint, dirty bool, err error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// migrateURL はgolang-migrateのドライバが解釈できるURLに変換する。
func migrateURL(databaseURL string) string {
	if DetectDialect(databaseURL) == DialectPostgres {
		return databaseURL
	}
	return "sqlite://" + SQLitePath(databaseURL)
}
