// Package harvest はフィードを巡回し、新しいストーリーをstoriesテーブルに収集する。
// 取得元ごと、エントリごとに失敗を切り離し、1件の失敗が実行全体を止めることはない。
package harvest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/model"
)

// StoryStore はHarvesterが使うストアの操作。
type StoryStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, story *model.Story) error
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Extractor は記事URLから本文テキストを抽出する。
type Extractor interface {
	Extract(ctx context.Context, link string) (string, error)
}

// TextCleaner はHTML断片をプレーンテキストにする。
type TextCleaner interface {
	PlainText(raw string) string
}

// Recorder は収集結果を記録する。
type Recorder interface {
	ObserveFeed(category string, status string)
	ObserveEntry(category string, outcome string)
	ObserveExtraction(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFeed(string, string)  {}
func (nopRecorder) ObserveEntry(string, string) {}
func (nopRecorder) ObserveExtraction(string)    {}

// Options は収集処理のパラメータ。
type Options struct {
	FeedTimeout       time.Duration
	MaxBodySize       int64
	MaxAge            time.Duration // これより古いエントリは収集しない
	MinContentLength  int           // 抽出本文がこの文字数を超える場合のみ採用する
	AggregatorDomains []string
}

// SourceReport は取得元1件の結果。
type SourceReport struct {
	URL        string
	Category   model.Category
	Status     FeedStatus
	Error      string
	Entries    int
	Inserted   int
	Duplicates int
	Stale      int
	Invalid    int
	Failed     int
}

// Report は収集実行全体の結果。
type Report struct {
	Sources []SourceReport
}

// Inserted は新規に挿入したストーリー数の合計を返す。
func (r Report) Inserted() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Inserted
	}
	return n
}

// FailedSources は取得に失敗した取得元の数を返す。
func (r Report) FailedSources() int {
	n := 0
	for _, s := range r.Sources {
		if s.Status != FeedOK {
			n++
		}
	}
	return n
}

// Harvester はフィードの取得、エントリの変換、本文抽出、ストアへの挿入を行う。
type Harvester struct {
	store     StoryStore
	guard     SSRFValidator
	extractor Extractor
	cleaner   TextCleaner
	logger    *slog.Logger
	opts      Options
	recorder  Recorder
	now       func() time.Time
}

// NewHarvester はHarvesterを生成する。recorderがnilの場合は記録しない。
func NewHarvester(
	store StoryStore,
	guard SSRFValidator,
	extractor Extractor,
	cleaner TextCleaner,
	logger *slog.Logger,
	opts Options,
	recorder Recorder,
) *Harvester {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Harvester{
		store:     store,
		guard:     guard,
		extractor: extractor,
		cleaner:   cleaner,
		logger:    logger,
		opts:      opts,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Run は取得元を順番に処理する。
// 個別の失敗はReportに記録され、エラーを返すのはcontextがキャンセルされた場合のみ。
func (h *Harvester) Run(ctx context.Context, sources []config.Source) (Report, error) {
	start := time.Now()
	var report Report

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Sources = append(report.Sources, h.harvestSource(ctx, src))
	}

	h.logger.Info("収集が完了しました",
		slog.Int("source_count", len(sources)),
		slog.Int("failed_sources", report.FailedSources()),
		slog.Int("inserted", report.Inserted()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return report, ctx.Err()
}

func (h *Harvester) harvestSource(ctx context.Context, src config.Source) SourceReport {
	start := time.Now()
	sr := SourceReport{URL: src.URL, Category: src.Category}

	parsed, status, err := h.fetchFeed(ctx, src.URL)
	sr.Status = status
	h.recorder.ObserveFeed(string(src.Category), string(status))
	if err != nil {
		sr.Error = err.Error()
		h.logger.Warn("フィードの取得に失敗しました",
			slog.String("feed_url", src.URL),
			slog.String("category", string(src.Category)),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return sr
	}

	items := parsed.Items
	if src.MaxItems > 0 && len(items) > src.MaxItems {
		items = items[:src.MaxItems]
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		sr.Entries++
		outcome := h.harvestEntry(ctx, src, item)
		h.recorder.ObserveEntry(string(src.Category), string(outcome))
		switch outcome {
		case EntryInserted:
			sr.Inserted++
		case EntryDuplicate:
			sr.Duplicates++
		case EntryStale:
			sr.Stale++
		case EntryInvalid:
			sr.Invalid++
		case EntryFailed:
			sr.Failed++
		}
	}

	h.logger.Info("フィードの収集が完了しました",
		slog.String("feed_url", src.URL),
		slog.String("category", string(src.Category)),
		slog.Int("entries", sr.Entries),
		slog.Int("inserted", sr.Inserted),
		slog.Int("duplicates", sr.Duplicates),
		slog.Int("stale", sr.Stale),
		slog.Int("failed", sr.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return sr
}

// fetchFeed はフィードを取得してパースする。
func (h *Harvester) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, FeedStatus, error) {
	if err := h.guard.ValidateURL(feedURL); err != nil {
		return nil, FeedBlocked, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := h.guard.NewSafeClient(h.opts.FeedTimeout, h.opts.MaxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, FeedBlocked, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, FeedNetworkError, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if status := ClassifyHTTPStatus(resp.StatusCode); status != FeedOK {
		return nil, status, fmt.Errorf("HTTPステータス %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.opts.MaxBodySize))
	if err != nil {
		return nil, FeedNetworkError, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, FeedParseError, fmt.Errorf("フィードのパースに失敗: %w", err)
	}
	return parsed, FeedOK, nil
}

// harvestEntry はエントリ1件を処理する。
func (h *Harvester) harvestEntry(ctx context.Context, src config.Source, item *gofeed.Item) EntryOutcome {
	now := h.now()

	e, ok := convertItem(item, h.opts.AggregatorDomains, now)
	if !ok {
		return EntryInvalid
	}

	if h.opts.MaxAge > 0 && e.Published.Before(now.Add(-h.opts.MaxAge)) {
		return EntryStale
	}

	exists, err := h.store.Exists(ctx, e.ID)
	if err != nil {
		h.logger.Error("ストーリーの存在確認に失敗しました",
			slog.String("story_id", e.ID),
			slog.String("error", err.Error()),
		)
		return EntryFailed
	}
	if exists {
		return EntryDuplicate
	}

	story := &model.Story{
		ID:        e.ID,
		Title:     h.cleaner.PlainText(e.Title),
		Summary:   h.content(ctx, e),
		Link:      e.Link,
		Timestamp: e.Published,
		RawDate:   model.FormatDate(e.Published),
		Category:  src.Category,
	}
	if story.Title == "" {
		return EntryInvalid
	}

	if err := h.store.Insert(ctx, story); err != nil {
		h.logger.Error("ストーリーの保存に失敗しました",
			slog.String("story_id", story.ID),
			slog.String("feed_url", src.URL),
			slog.String("error", err.Error()),
		)
		return EntryFailed
	}
	return EntryInserted
}

// content は抽出した本文が十分な長さであればそれを、そうでなければフィードの要約を返す。
func (h *Harvester) content(ctx context.Context, e entry) string {
	if e.Link != "" && h.extractor != nil {
		text, err := h.extractor.Extract(ctx, e.Link)
		switch {
		case err != nil:
			h.recorder.ObserveExtraction(ExtractionFailed)
			h.logger.Debug("本文の抽出に失敗しました",
				slog.String("link", e.Link),
				slog.String("error", err.Error()),
			)
		case utf8.RuneCountInString(text) > h.opts.MinContentLength:
			h.recorder.ObserveExtraction(ExtractionFullText)
			return text
		default:
			h.recorder.ObserveExtraction(ExtractionShort)
		}
	}
	return h.cleaner.PlainText(e.SummaryHTML)
}
