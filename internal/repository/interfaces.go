// Package repository はデータ永続化のインターフェースと実装を提供する。
// 3つのテーブル（stories, selected_stories, radio_scripts）は同じIDで連結される。
package repository

import (
	"context"

	"github.com/hitoshi/rundown/internal/model"
)

// StoryRepository は収集ストーリーの永続化インターフェース。
type StoryRepository interface {
	// Exists は指定IDのストーリーが既に存在するかを返す。
	Exists(ctx context.Context, id string) (bool, error)

	// Insert はストーリーを挿入する。同一IDが存在する場合は上書きする。
	Insert(ctx context.Context, story *model.Story) error

	// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Story, error)

	// ListUnscored はカテゴリ内でまだselected_storiesに存在しないストーリーを新しい順に返す。
	ListUnscored(ctx context.Context, category model.Category) ([]model.Story, error)
}

// SelectedStoryRepository はスコア付きストーリーの永続化インターフェース。
type SelectedStoryRepository interface {
	// Upsert はスコア付きストーリーを挿入または置換する。
	Upsert(ctx context.Context, story *model.SelectedStory) error

	// FindByID は指定IDのスコア付きストーリーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.SelectedStory, error)

	// ListScriptCandidates はスコアがminScore以上で原稿が未作成のストーリーを返す。
	// dateが空でない場合は収集日がdateのものに限定する。
	ListScriptCandidates(ctx context.Context, category model.Category, minScore int, date string) ([]model.SelectedStory, error)

	// ListByDate は収集日とカテゴリで絞り込み、スコアの高い順に原稿の状態付きで返す。
	ListByDate(ctx context.Context, date string, category model.Category) ([]model.StoryListEntry, error)

	// ListDates はスコア付きストーリーが存在する日付を新しい順に返す。
	ListDates(ctx context.Context) ([]string, error)
}

// ScriptRepository はラジオ原稿の永続化インターフェース。
type ScriptRepository interface {
	// Upsert は原稿を挿入または置換する。
	Upsert(ctx context.Context, script *model.RadioScript) error

	// FindByID は指定IDの原稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.RadioScript, error)

	// SetAired はオンエア済みフラグを更新する。該当する原稿がない場合はfalseを返す。
	SetAired(ctx context.Context, id string, aired bool) (bool, error)
}
