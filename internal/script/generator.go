// Package script は閾値を超えたスコア付きストーリーからラジオ原稿（ティーザーと本編）を生成する。
package script

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

// ErrStoryNotFound は指定IDのスコア付きストーリーが存在しないことを示す。
var ErrStoryNotFound = errors.New("selected story not found")

// ErrOracleFailed はオラクル呼び出しの失敗を示す。原因のオラクルエラーも併せてラップされる。
var ErrOracleFailed = errors.New("script oracle call failed")

// CandidateSource は原稿生成候補の取得。
type CandidateSource interface {
	ListScriptCandidates(ctx context.Context, category model.Category, minScore int, date string) ([]model.SelectedStory, error)
	FindByID(ctx context.Context, id string) (*model.SelectedStory, error)
}

// ScriptWriter は原稿の保存。
type ScriptWriter interface {
	Upsert(ctx context.Context, script *model.RadioScript) error
}

// Recorder は原稿生成の結果を記録する。
type Recorder interface {
	ObserveScript(category string, outcome string)
}

// 原稿生成結果の種別。
const (
	OutcomeWritten  = "written"
	OutcomeDegraded = "degraded"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

type nopRecorder struct{}

func (nopRecorder) ObserveScript(string, string) {}

// LaneReport はカテゴリ1件分の生成結果。
// Writtenは保存した件数で、Degradedはそのうち代替ティーザーを使ったもの。
type LaneReport struct {
	Category   model.Category
	Candidates int
	Written    int
	Degraded   int
	Skipped    int
	Failed     int
}

// Report は原稿生成の実行全体の結果。
type Report struct {
	Lanes []LaneReport
}

// Written は保存した件数の合計を返す。
func (r Report) Written() int {
	n := 0
	for _, l := range r.Lanes {
		n += l.Written
	}
	return n
}

// Candidates は候補件数の合計を返す。
func (r Report) Candidates() int {
	n := 0
	for _, l := range r.Lanes {
		n += l.Candidates
	}
	return n
}

// Generator はレーンごとに原稿を生成する。
type Generator struct {
	selected CandidateSource
	scripts  ScriptWriter
	oracle   oracle.Oracle
	lanes    []config.Lane
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewGenerator はGeneratorを生成する。recorderがnilの場合は記録しない。
func NewGenerator(selected CandidateSource, scripts ScriptWriter, o oracle.Oracle, lanes []config.Lane, logger *slog.Logger, recorder Recorder) *Generator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Generator{
		selected: selected,
		scripts:  scripts,
		oracle:   o,
		lanes:    lanes,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Run は指定カテゴリ（省略時は全レーン）の閾値以上で原稿未作成のストーリーについて原稿を生成する。
// オラクルの失敗したストーリーは保存せず、次回の実行で再び候補になる。
func (g *Generator) Run(ctx context.Context, categories ...model.Category) (Report, error) {
	start := time.Now()
	var report Report

	lanes, err := config.SelectLanes(g.lanes, categories...)
	if err != nil {
		return report, err
	}

	for _, lane := range lanes {
		lr, err := g.runLane(ctx, lane)
		report.Lanes = append(report.Lanes, lr)
		if err != nil {
			return report, err
		}
	}

	g.logger.Info("原稿生成が完了しました",
		slog.Int("candidates", report.Candidates()),
		slog.Int("written", report.Written()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return report, nil
}

func (g *Generator) runLane(ctx context.Context, lane config.Lane) (LaneReport, error) {
	lr := LaneReport{Category: lane.Category}

	date := ""
	if lane.SameDayOnly {
		date = model.FormatDate(g.now())
	}
	candidates, err := g.selected.ListScriptCandidates(ctx, lane.Category, lane.Threshold, date)
	if err != nil {
		return lr, fmt.Errorf("原稿生成候補の取得に失敗しました (category=%s): %w", lane.Category, err)
	}
	lr.Candidates = len(candidates)

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return lr, err
		}
		_, outcome, err := g.generate(ctx, lane, &candidates[i])
		g.recorder.ObserveScript(string(lane.Category), outcome)
		switch outcome {
		case OutcomeWritten:
			lr.Written++
		case OutcomeDegraded:
			lr.Written++
			lr.Degraded++
		case OutcomeSkipped:
			lr.Skipped++
		case OutcomeFailed:
			lr.Failed++
		}
		if err != nil {
			g.logger.Warn("原稿を生成できませんでした",
				slog.String("story_id", candidates[i].ID),
				slog.String("outcome", outcome),
				slog.String("error_kind", oracle.KindOf(err)),
				slog.String("error", err.Error()),
			)
		}
	}

	g.logger.Info("レーンの原稿生成が完了しました",
		slog.String("category", string(lane.Category)),
		slog.Int("candidates", lr.Candidates),
		slog.Int("written", lr.Written),
		slog.Int("degraded", lr.Degraded),
		slog.Int("skipped", lr.Skipped),
		slog.Int("failed", lr.Failed),
	)
	return lr, ctx.Err()
}

// GenerateOne は指定IDのストーリーについて、スコアや既存の原稿に関係なく原稿を生成して保存する。
// ストーリーが存在しない場合はErrStoryNotFound、オラクルが失敗した場合はErrOracleFailedを返す。
func (g *Generator) GenerateOne(ctx context.Context, id string) (*model.RadioScript, error) {
	story, err := g.selected.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("スコア付きストーリーの取得に失敗しました: %w", err)
	}
	if story == nil {
		return nil, fmt.Errorf("%w: %s", ErrStoryNotFound, id)
	}

	lanes, err := config.SelectLanes(g.lanes, story.Category)
	if err != nil {
		return nil, err
	}

	script, outcome, err := g.generate(ctx, lanes[0], story)
	g.recorder.ObserveScript(string(story.Category), outcome)
	if err != nil {
		return nil, err
	}

	g.logger.Info("原稿を生成しました",
		slog.String("story_id", id),
		slog.String("category", string(story.Category)),
		slog.Bool("degraded", outcome == OutcomeDegraded),
	)
	return script, nil
}

func (g *Generator) generate(ctx context.Context, lane config.Lane, story *model.SelectedStory) (*model.RadioScript, string, error) {
	response, err := g.oracle.Complete(ctx, oracle.Request{
		Prompt:      BuildPrompt(lane, *story),
		Temperature: lane.ScriptTemperature,
	})
	if err != nil {
		return nil, OutcomeSkipped, fmt.Errorf("%w: %w", ErrOracleFailed, err)
	}

	parsed := Parse(lane, story.Title, response)
	outcome := OutcomeWritten
	if parsed.Degraded {
		g.logger.Warn("応答を分割できないため代替ティーザーを使います",
			slog.String("story_id", story.ID),
			slog.String("format", string(lane.ScriptFormat)),
		)
		outcome = OutcomeDegraded
	}

	category := story.Category
	if category == "" {
		category = lane.Category
	}
	script := &model.RadioScript{
		ID:         story.ID,
		Tease:      parsed.Tease,
		FullStory:  parsed.FullStory,
		SourceName: SourceName(story.Link),
		Link:       story.Link,
		Timestamp:  g.now(),
		IsAired:    false,
		Category:   category,
	}
	if err := g.scripts.Upsert(ctx, script); err != nil {
		return nil, OutcomeFailed, fmt.Errorf("原稿の保存に失敗しました: %w", err)
	}
	return script, outcome, nil
}
