package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/rundown/internal/database"
	"github.com/hitoshi/rundown/internal/model"
)

var selectedColumns = []string{"id", "title", "score", "summary", "link", "timestamp", "category"}

// SelectedStoryRepo はselected_storiesテーブルのリポジトリ。
type SelectedStoryRepo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewSelectedStoryRepo はSelectedStoryRepoを生成する。
func NewSelectedStoryRepo(db *sql.DB, dialect database.Dialect) *SelectedStoryRepo {
	return &SelectedStoryRepo{db: db, sb: Builder(dialect)}
}

// Upsert はスコア付きストーリーを挿入または置換する。
// timestampは呼び出し側が渡した収集時刻をそのまま保存する。
func (r *SelectedStoryRepo) Upsert(ctx context.Context, story *model.SelectedStory) error {
	query, args, err := r.sb.Insert("selected_stories").
		Columns(selectedColumns...).
		Values(story.ID, story.Title, story.Score, story.Summary, story.Link,
			model.FormatTimestamp(story.Timestamp), string(story.Category)).
		Suffix(upsertSuffix("title", "score", "summary", "link", "timestamp", "category")).
		ToSql()
	if err != nil {
		return fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("スコア付きストーリーの保存に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのスコア付きストーリーを取得する。見つからない場合はnilを返す。
func (r *SelectedStoryRepo) FindByID(ctx context.Context, id string) (*model.SelectedStory, error) {
	query, args, err := r.sb.Select(selectedColumns...).From("selected_stories").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	story, err := scanSelected(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スコア付きストーリーの取得に失敗しました: %w", err)
	}
	return story, nil
}

// ListScriptCandidates はスコアがminScore以上で原稿が未作成のストーリーを返す。
// スコアの高い順、同点は新しい順。
func (r *SelectedStoryRepo) ListScriptCandidates(ctx context.Context, category model.Category, minScore int, date string) ([]model.SelectedStory, error) {
	builder := r.sb.Select(selectedColumns...).
		From("selected_stories").
		Where(sq.Eq{"category": string(category)}).
		Where(sq.GtOrEq{"score": minScore}).
		Where("id NOT IN (SELECT id FROM radio_scripts)")
	if date != "" {
		builder = builder.Where(sq.Expr("substr(timestamp, 1, 10) = ?", date))
	}

	query, args, err := builder.OrderBy("score DESC", "timestamp DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("原稿生成候補の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stories []model.SelectedStory
	for rows.Next() {
		story, err := scanSelected(rows)
		if err != nil {
			return nil, fmt.Errorf("原稿生成候補のスキャンに失敗しました: %w", err)
		}
		stories = append(stories, *story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("原稿生成候補の走査に失敗しました: %w", err)
	}
	return stories, nil
}

// ListByDate は収集日とカテゴリで絞り込み、スコアの高い順に原稿の状態付きで返す。
func (r *SelectedStoryRepo) ListByDate(ctx context.Context, date string, category model.Category) ([]model.StoryListEntry, error) {
	query, args, err := r.sb.Select(
		"s.id", "s.title", "s.score", "s.summary", "s.link", "s.timestamp", "s.category",
		"CASE WHEN r.id IS NULL THEN 0 ELSE 1 END",
		"COALESCE(r.is_aired, 0)",
	).
		From("selected_stories s").
		LeftJoin("radio_scripts r ON r.id = s.id").
		Where(sq.Expr("substr(s.timestamp, 1, 10) = ?", date)).
		Where(sq.Eq{"s.category": string(category)}).
		OrderBy("s.score DESC", "s.timestamp DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ストーリー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.StoryListEntry
	for rows.Next() {
		var e model.StoryListEntry
		var ts, cat string
		var prepped, aired int
		if err := rows.Scan(&e.ID, &e.Title, &e.Score, &e.Summary, &e.Link, &ts, &cat, &prepped, &aired); err != nil {
			return nil, fmt.Errorf("ストーリー一覧のスキャンに失敗しました: %w", err)
		}
		parsed, err := parseStoredTimestamp(e.ID, ts)
		if err != nil {
			return nil, err
		}
		e.Timestamp = parsed
		e.Category = model.Category(cat)
		e.Prepped = prepped == 1
		e.Aired = aired == 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ストーリー一覧の走査に失敗しました: %w", err)
	}
	return entries, nil
}

// ListDates はスコア付きストーリーが存在する日付を新しい順に返す。
func (r *SelectedStoryRepo) ListDates(ctx context.Context) ([]string, error) {
	query, args, err := r.sb.Select("DISTINCT substr(timestamp, 1, 10) AS story_date").
		From("selected_stories").
		OrderBy("story_date DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("日付一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("日付一覧のスキャンに失敗しました: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("日付一覧の走査に失敗しました: %w", err)
	}
	return dates, nil
}

func scanSelected(row rowScanner) (*model.SelectedStory, error) {
	var story model.SelectedStory
	var ts, category string
	if err := row.Scan(&story.ID, &story.Title, &story.Score, &story.Summary, &story.Link, &ts, &category); err != nil {
		return nil, err
	}
	parsed, err := parseStoredTimestamp(story.ID, ts)
	if err != nil {
		return nil, err
	}
	story.Timestamp = parsed
	story.Category = model.Category(category)
	return &story, nil
}
