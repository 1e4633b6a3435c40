// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Category はストーリーの処理レーンを表す。
type Category string

const (
	// CategoryGeneral は一般ニュースのレーン。
	CategoryGeneral Category = "general"
	// CategoryCeleb はセレブ・エンタメのレーン。
	CategoryCeleb Category = "celeb"
)

// ParseCategory は文字列をCategoryに変換する。未知の値はエラーを返す。
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryGeneral, CategoryCeleb:
		return Category(s), nil
	default:
		return "", fmt.Errorf("unknown category: %q", s)
	}
}

// TimestampLayout はストアに保存するタイムスタンプの書式。
// 文字列比較で時系列順になるよう固定長にしている。
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout は日付のみの書式。
const DateLayout = "2006-01-02"

// FormatTimestamp は時刻をローカルタイムのストア書式に変換する。
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// FormatDate は時刻をローカルタイムの日付文字列に変換する。
func FormatDate(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// ParseTimestamp はストア書式のタイムスタンプを解析する。
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// Story はフィードから収集した未評価のストーリー。
type Story struct {
	ID        string
	Title     string
	Summary   string // 抽出した本文、またはフィードの要約
	Link      string
	Timestamp time.Time
	RawDate   string
	Category  Category
}

// SelectedStory はオラクルによるスコアが付与されたストーリー。
// Timestampは収集時のものを引き継ぐ。
type SelectedStory struct {
	ID        string
	Title     string
	Score     int
	Summary   string
	Link      string
	Timestamp time.Time
	Category  Category
}

// RadioScript は選定ストーリーから生成したティーザーと本編の原稿。
type RadioScript struct {
	ID         string
	Tease      string
	FullStory  string
	SourceName string
	Link       string
	Timestamp  time.Time
	IsAired    bool
	Category   Category
}

// StoryListEntry はダッシュボードの一覧表示用の行。
type StoryListEntry struct {
	SelectedStory
	Prepped bool // 原稿が存在する
	Aired   bool
}
