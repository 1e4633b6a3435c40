// Package scoring は未評価のストーリーをオラクルで採点し、selected_storiesに記録する。
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/model"
	"github.com/hitoshi/rundown/internal/oracle"
)

// StoryLister は未評価ストーリーの取得。
type StoryLister interface {
	ListUnscored(ctx context.Context, category model.Category) ([]model.Story, error)
}

// SelectedWriter は採点結果の保存。
type SelectedWriter interface {
	Upsert(ctx context.Context, story *model.SelectedStory) error
}

// Recorder は採点結果を記録する。
type Recorder interface {
	ObserveScore(category string, outcome string)
}

// 採点結果の種別。
const (
	OutcomeScored   = "scored"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

type nopRecorder struct{}

func (nopRecorder) ObserveScore(string, string) {}

// LaneReport はカテゴリ1件分の採点結果。
// Scoredは保存した件数で、Fallbacksはそのうち最低スコアで代替したもの。
type LaneReport struct {
	Category   model.Category
	Candidates int
	Scored     int
	Fallbacks  int
	Rejected   int
	Skipped    int
	Failed     int
}

// Report は採点実行全体の結果。
type Report struct {
	Lanes []LaneReport
}

// Scored は保存した件数の合計を返す。
func (r Report) Scored() int {
	n := 0
	for _, l := range r.Lanes {
		n += l.Scored
	}
	return n
}

// Filter はレーンごとに未評価ストーリーを採点する。
type Filter struct {
	stories  StoryLister
	selected SelectedWriter
	oracle   oracle.Oracle
	lanes    []config.Lane
	logger   *slog.Logger
	recorder Recorder
}

// NewFilter はFilterを生成する。recorderがnilの場合は記録しない。
func NewFilter(stories StoryLister, selected SelectedWriter, o oracle.Oracle, lanes []config.Lane, logger *slog.Logger, recorder Recorder) *Filter {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Filter{
		stories:  stories,
		selected: selected,
		oracle:   o,
		lanes:    lanes,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は指定カテゴリ（省略時は全レーン）の未評価ストーリーを採点する。
// 個々のストーリーの失敗では中断せず、エラーを返すのは候補の取得失敗とcontextのキャンセルのみ。
func (f *Filter) Run(ctx context.Context, categories ...model.Category) (Report, error) {
	start := time.Now()
	var report Report

	lanes, err := config.SelectLanes(f.lanes, categories...)
	if err != nil {
		return report, err
	}

	for _, lane := range lanes {
		lr, err := f.runLane(ctx, lane)
		report.Lanes = append(report.Lanes, lr)
		if err != nil {
			return report, err
		}
	}

	f.logger.Info("採点が完了しました",
		slog.Int("scored", report.Scored()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return report, nil
}

func (f *Filter) runLane(ctx context.Context, lane config.Lane) (LaneReport, error) {
	lr := LaneReport{Category: lane.Category}

	stories, err := f.stories.ListUnscored(ctx, lane.Category)
	if err != nil {
		return lr, fmt.Errorf("未評価ストーリーの取得に失敗しました (category=%s): %w", lane.Category, err)
	}
	lr.Candidates = len(stories)

	for i := range stories {
		if err := ctx.Err(); err != nil {
			return lr, err
		}
		outcome := f.scoreStory(ctx, lane, &stories[i])
		f.recorder.ObserveScore(string(lane.Category), outcome)
		switch outcome {
		case OutcomeScored:
			lr.Scored++
		case OutcomeFallback:
			lr.Scored++
			lr.Fallbacks++
		case OutcomeRejected:
			lr.Rejected++
		case OutcomeSkipped:
			lr.Skipped++
		case OutcomeFailed:
			lr.Failed++
		}
	}

	f.logger.Info("レーンの採点が完了しました",
		slog.String("category", string(lane.Category)),
		slog.Int("candidates", lr.Candidates),
		slog.Int("scored", lr.Scored),
		slog.Int("fallbacks", lr.Fallbacks),
		slog.Int("rejected", lr.Rejected),
		slog.Int("skipped", lr.Skipped),
		slog.Int("failed", lr.Failed),
	)
	return lr, ctx.Err()
}

func (f *Filter) scoreStory(ctx context.Context, lane config.Lane, story *model.Story) string {
	if phrase, banned := MatchBannedPhrase(story.Title, lane.BannedPhrases); banned {
		f.logger.Info("禁止フレーズを含むため採点を省略しました",
			slog.String("story_id", story.ID),
			slog.String("phrase", phrase),
		)
		return OutcomeRejected
	}

	outcome := OutcomeScored
	response, err := f.oracle.Complete(ctx, oracle.Request{
		Prompt:      BuildPrompt(lane, *story),
		Temperature: lane.ScoreTemperature,
		MaxTokens:   lane.ScoreMaxTokens,
	})

	var score int
	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, oracle.ErrRateLimited)):
		// 次回の実行で再評価する
		f.logger.Warn("オラクルを利用できないため採点を見送りました",
			slog.String("story_id", story.ID),
			slog.String("error_kind", oracle.KindOf(err)),
			slog.String("error", err.Error()),
		)
		return OutcomeSkipped
	case err != nil:
		f.logger.Warn("オラクルの呼び出しに失敗したため最低スコアを記録します",
			slog.String("story_id", story.ID),
			slog.String("error_kind", oracle.KindOf(err)),
			slog.String("error", err.Error()),
		)
		score = MinScore
		outcome = OutcomeFallback
	default:
		var ok bool
		score, ok = ParseScore(response)
		if !ok {
			f.logger.Warn("スコアを解釈できないため最低スコアを記録します",
				slog.String("story_id", story.ID),
				slog.String("response", response),
			)
			outcome = OutcomeFallback
		}
	}

	selected := &model.SelectedStory{
		ID:        story.ID,
		Title:     story.Title,
		Score:     score,
		Summary:   story.Summary,
		Link:      story.Link,
		Timestamp: story.Timestamp,
		Category:  story.Category,
	}
	if selected.Category == "" {
		selected.Category = lane.Category
	}
	if err := f.selected.Upsert(ctx, selected); err != nil {
		f.logger.Error("採点結果の保存に失敗しました",
			slog.String("story_id", story.ID),
			slog.String("error", err.Error()),
		)
		return OutcomeFailed
	}
	return outcome
}
