package script

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/security"
)

// Delimiter はティーザーと本編を区切るトークン。
const Delimiter = "###"

// 見出しラベル形式のラベル。
const (
	TeaseLabel     = "TEASE:"
	FullStoryLabel = "FULL STORY:"
)

// fallbackTeaseLength はタイトルから代替ティーザーを作るときの最大文字数。
const fallbackTeaseLength = 60

// Parsed はオラクル応答を分割した結果。
// Degradedは応答が形式どおりでなく代替ティーザーを使ったことを示す。
type Parsed struct {
	Tease     string
	FullStory string
	Degraded  bool
}

// Parse はレーンの形式に従って応答をティーザーと本編に分割する。
// 分割できない場合は代替ティーザーと、応答全体を本編として返す。
func Parse(lane config.Lane, title, response string) Parsed {
	var tease, story string
	var ok bool
	switch lane.ScriptFormat {
	case config.FormatLabelled:
		tease, story, ok = splitLabelled(response)
	default:
		tease, story, ok = splitDelimited(response)
	}
	if ok {
		return Parsed{Tease: tease, FullStory: story}
	}
	return Parsed{
		Tease:     FallbackTease(lane, title),
		FullStory: strings.TrimSpace(response),
		Degraded:  true,
	}
}

// splitDelimited は最初の区切りトークンで分割する。どちらかが空ならfalse。
func splitDelimited(response string) (string, string, bool) {
	before, after, found := strings.Cut(response, Delimiter)
	if !found {
		return "", "", false
	}
	tease := strings.TrimSpace(before)
	story := strings.TrimSpace(trimDelimiterTail(after))
	if tease == "" || story == "" {
		return "", "", false
	}
	return tease, story, true
}

// trimDelimiterTail は "####" のように区切りが長く出力された場合の余分な#を落とす。
// #の直後が空白か末尾のときだけ区切りの一部とみなし、"####1 song" の "#1" は本文として残す。
func trimDelimiterTail(after string) string {
	rest := strings.TrimLeft(after, "#")
	if rest == after {
		return after
	}
	if rest == "" || unicode.IsSpace(rune(rest[0])) {
		return rest
	}
	return after
}

// splitLabelled は "TEASE:" と、その後に現れる "FULL STORY:" で分割する。
func splitLabelled(response string) (string, string, bool) {
	_, rest, found := strings.Cut(response, TeaseLabel)
	if !found {
		return "", "", false
	}
	before, after, found := strings.Cut(rest, FullStoryLabel)
	if !found {
		return "", "", false
	}
	tease := trimSegment(before)
	story := trimSegment(after)
	if tease == "" || story == "" {
		return "", "", false
	}
	return tease, story, true
}

// trimSegment は前後の空白と、見出しの強調記号（**TEASE:** など）を取り除く。
func trimSegment(s string) string {
	return strings.Trim(s, " \t\r\n*")
}

// FallbackTease はレーンの固定ティーザー、なければタイトル先頭60文字に "..." を付けたものを返す。
func FallbackTease(lane config.Lane, title string) string {
	if lane.FallbackTease != "" {
		return lane.FallbackTease
	}
	return security.Truncate(strings.TrimSpace(title), fallbackTeaseLength) + "..."
}

// SourceName はリンクのホスト名から先頭の "www." を除いたものを返す。
// 解析できない場合は空文字を返す。
func SourceName(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
