// Package security はフィード取得時の安全性とコンテンツの無害化を扱う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextCleaner はフィードの要約や記事本文をプレーンテキストに変換する。
type TextCleaner interface {
	// PlainText はHTMLタグを全て除去し、エンティティを復元し、空白を1つに畳んだ文字列を返す。
	PlainText(raw string) string
}

type textCleaner struct {
	policy *bluemonday.Policy
}

// NewTextCleaner はタグを一切許可しないポリシーでTextCleanerを生成する。
// 返り値はスレッドセーフに共有できる。
func NewTextCleaner() *textCleaner {
	return &textCleaner{policy: bluemonday.StrictPolicy()}
}

// PlainText はHTML断片をプレーンテキストにする。
// script と style の中身はテキストとして残さない。
func (c *textCleaner) PlainText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	// ブロック要素の境界で単語が連結されないよう、タグの前後に空白を入れる
	spaced := strings.NewReplacer("<", " <", ">", "> ").Replace(raw)
	stripped := c.policy.Sanitize(spaced)
	// bluemondayはテキストをエスケープして返すため元に戻す
	unescaped := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(unescaped), " ")
}

// Truncate は文字列を先頭からlimit文字（rune単位）に切り詰める。limitが0以下の場合は空文字列を返す。
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
