package harvest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// noiseSelector は本文抽出前に取り除く要素。
const noiseSelector = "script, style, noscript, template, iframe, svg, nav, header, footer, aside, form, button, figcaption, [role=navigation], [aria-hidden=true]"

// contentRoots は本文を探す順序。段落テキストが見つかった最初の要素を採用する。
var contentRoots = []string{
	"[itemprop=articleBody]",
	"article",
	"main",
	"[role=main]",
	"body",
}

// ArticleExtractor は記事ページを取得し、本文の段落テキストを抽出する。
type ArticleExtractor struct {
	guard       SSRFValidator
	timeout     time.Duration
	maxBodySize int64
}

// NewArticleExtractor はArticleExtractorを生成する。
func NewArticleExtractor(guard SSRFValidator, timeout time.Duration, maxBodySize int64) *ArticleExtractor {
	return &ArticleExtractor{
		guard:       guard,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Extract は記事URLから本文を抽出する。本文が見つからない場合は空文字列を返す。
func (e *ArticleExtractor) Extract(ctx context.Context, link string) (string, error) {
	if err := e.guard.ValidateURL(link); err != nil {
		return "", fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := e.guard.NewSafeClient(e.timeout, e.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return "", fmt.Errorf("HTMLではないコンテンツ: %s", contentType)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, e.maxBodySize), contentType)
	if err != nil {
		return "", fmt.Errorf("文字コードの判定に失敗: %w", err)
	}

	return ExtractText(body)
}

// ExtractText はHTMLから本文の段落を抽出し、空行区切りで連結して返す。
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("HTMLのパースに失敗: %w", err)
	}

	doc.Find(noiseSelector).Remove()

	for _, selector := range contentRoots {
		root := doc.Find(selector).First()
		if root.Length() == 0 {
			continue
		}
		if paragraphs := collectParagraphs(root); len(paragraphs) > 0 {
			return strings.Join(paragraphs, "\n\n"), nil
		}
	}
	return "", nil
}

func collectParagraphs(root *goquery.Selection) []string {
	var paragraphs []string
	root.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return paragraphs
}
