package harvest

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/rundown/internal/config"
)

// entry はgofeedの記事から取り出した収集候補。
type entry struct {
	ID          string
	Title       string
	Link        string
	SummaryHTML string
	Published   time.Time
}

// convertItem はgofeedの記事を収集候補に変換する。
// タイトルまたはID/リンクが得られない場合はfalseを返す。
func convertItem(item *gofeed.Item, aggregatorDomains []string, now time.Time) (entry, bool) {
	if item == nil {
		return entry{}, false
	}

	e := entry{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		SummaryHTML: item.Description,
	}
	if e.SummaryHTML == "" {
		e.SummaryHTML = item.Content
	}

	guid := strings.TrimSpace(item.GUID)

	// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
	if e.Link == "" && isHTTPURL(guid) {
		e.Link = guid
	}

	e.Link = resolveAggregatorLink(e.Link, item.Description+item.Content, aggregatorDomains)

	e.ID = guid
	if e.ID == "" {
		e.ID = e.Link
	}

	if e.Title == "" || e.ID == "" {
		return entry{}, false
	}

	e.Published = publishedAt(item, now)
	return e, true
}

// resolveAggregatorLink は集約サイトへのリンクを、埋め込みHTML内の最初の外部リンクに置き換える。
// 外部リンクが見つからない場合や集約サイトでない場合は元のリンクを返す。
func resolveAggregatorLink(link, embeddedHTML string, domains []string) string {
	u, err := url.Parse(link)
	if err != nil || !config.IsAggregatorHost(u.Hostname(), domains) {
		return link
	}
	if strings.TrimSpace(embeddedHTML) == "" {
		return link
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(embeddedHTML))
	if err != nil {
		return link
	}

	resolved := link
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !isHTTPURL(href) {
			return true
		}
		target, err := url.Parse(href)
		if err != nil || config.IsAggregatorHost(target.Hostname(), domains) {
			return true
		}
		resolved = href
		return false
	})
	return resolved
}

// publishedAt は公開日時を決める。
// 構造化された日付、文字列からの推定、更新日時の順に試し、いずれもなければnowを使う。
// 未来の日時はnowに丸める。
func publishedAt(item *gofeed.Item, now time.Time) time.Time {
	var t time.Time
	switch {
	case item.PublishedParsed != nil:
		t = *item.PublishedParsed
	case strings.TrimSpace(item.Published) != "":
		if parsed, err := dateparse.ParseLocal(strings.TrimSpace(item.Published)); err == nil {
			t = parsed
		}
	}
	if t.IsZero() && item.UpdatedParsed != nil {
		t = *item.UpdatedParsed
	}
	if t.IsZero() || t.After(now) {
		return now
	}
	return t
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
