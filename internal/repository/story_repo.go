package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/rundown/internal/database"
	"github.com/hitoshi/rundown/internal/model"
)

var storyColumns = []string{"id", "title", "summary", "link", "timestamp", "raw_date", "category"}

// StoryRepo はstoriesテーブルのリポジトリ。
type StoryRepo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewStoryRepo はStoryRepoを生成する。
func NewStoryRepo(db *sql.DB, dialect database.Dialect) *StoryRepo {
	return &StoryRepo{db: db, sb: Builder(dialect)}
}

// Exists は指定IDのストーリーが既に存在するかを返す。
func (r *StoryRepo) Exists(ctx context.Context, id string) (bool, error) {
	query, args, err := r.sb.Select("1").From("stories").Where(sq.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ストーリーの存在確認に失敗しました: %w", err)
	}
	return true, nil
}

// Insert はストーリーを挿入する。同一IDが存在する場合は上書きする。
func (r *StoryRepo) Insert(ctx context.Context, story *model.Story) error {
	rawDate := story.RawDate
	if rawDate == "" {
		rawDate = model.FormatDate(story.Timestamp)
	}

	query, args, err := r.sb.Insert("stories").
		Columns(storyColumns...).
		Values(story.ID, story.Title, story.Summary, story.Link,
			model.FormatTimestamp(story.Timestamp), rawDate, string(story.Category)).
		Suffix(upsertSuffix("title", "summary", "link", "timestamp", "raw_date", "category")).
		ToSql()
	if err != nil {
		return fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ストーリーの保存に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
func (r *StoryRepo) FindByID(ctx context.Context, id string) (*model.Story, error) {
	query, args, err := r.sb.Select(storyColumns...).From("stories").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	story, err := scanStory(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ストーリーの取得に失敗しました: %w", err)
	}
	return story, nil
}

// ListUnscored はカテゴリ内でまだselected_storiesに存在しないストーリーを新しい順に返す。
func (r *StoryRepo) ListUnscored(ctx context.Context, category model.Category) ([]model.Story, error) {
	query, args, err := r.sb.Select(storyColumns...).
		From("stories").
		Where(sq.Eq{"category": string(category)}).
		Where("id NOT IN (SELECT id FROM selected_stories)").
		OrderBy("timestamp DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("未評価ストーリーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stories []model.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("未評価ストーリーのスキャンに失敗しました: %w", err)
		}
		stories = append(stories, *story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("未評価ストーリーの走査に失敗しました: %w", err)
	}
	return stories, nil
}

func scanStory(row rowScanner) (*model.Story, error) {
	var story model.Story
	var ts, category string
	if err := row.Scan(&story.ID, &story.Title, &story.Summary, &story.Link, &ts, &story.RawDate, &category); err != nil {
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
