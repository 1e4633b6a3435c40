package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/rundown/internal/database"
	"github.com/hitoshi/rundown/internal/model"
)

var scriptColumns = []string{"id", "tease", "full_story", "source_name", "link", "timestamp", "is_aired", "category"}

// ScriptRepo はradio_scriptsテーブルのリポジトリ。
type ScriptRepo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewScriptRepo はScriptRepoを生成する。
func NewScriptRepo(db *sql.DB, dialect database.Dialect) *ScriptRepo {
	return &ScriptRepo{db: db, sb: Builder(dialect)}
}

// Upsert は原稿を挿入または置換する。
func (r *ScriptRepo) Upsert(ctx context.Context, script *model.RadioScript) error {
	query, args, err := r.sb.Insert("radio_scripts").
		Columns(scriptColumns...).
		Values(script.ID, script.Tease, script.FullStory, script.SourceName, script.Link,
			model.FormatTimestamp(script.Timestamp), boolToInt(script.IsAired), string(script.Category)).
		Suffix(upsertSuffix("tease", "full_story", "source_name", "link", "timestamp", "is_aired", "category")).
		ToSql()
	if err != nil {
		return fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("原稿の保存に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの原稿を取得する。見つからない場合はnilを返す。
func (r *ScriptRepo) FindByID(ctx context.Context, id string) (*model.RadioScript, error) {
	query, args, err := r.sb.Select(scriptColumns...).From("radio_scripts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	var script model.RadioScript
	var ts, category string
	var aired int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&script.ID, &script.Tease, &script.FullStory, &script.SourceName, &script.Link,
		&ts, &aired, &category,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("原稿の取得に失敗しました: %w", err)
	}

	parsed, err := parseStoredTimestamp(script.ID, ts)
	if err != nil {
		return nil, err
	}
	script.Timestamp = parsed
	script.IsAired = aired == 1
	script.Category = model.Category(category)
	return &script, nil
}

// SetAired はオンエア済みフラグを更新する。該当する原稿がない場合はfalseを返す。
func (r *ScriptRepo) SetAired(ctx context.Context, id string, aired bool) (bool, error) {
	query, args, err := r.sb.Update("radio_scripts").
		Set("is_aired", boolToInt(aired)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("オンエア状態の更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}
