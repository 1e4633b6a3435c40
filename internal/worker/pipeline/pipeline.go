// Package pipeline は収集・採点・原稿生成の3ステージを順番に実行するパイプラインと、
// それを一定間隔で繰り返すスケジューラを提供する。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/harvest"
	"github.com/hitoshi/rundown/internal/model"
	"github.com/hitoshi/rundown/internal/scoring"
	"github.com/hitoshi/rundown/internal/script"
)

// パイプラインのステージ名。
const (
	StageHarvest   = "harvest"
	StageFilter    = "filter"
	StageAutopilot = "autopilot"
	StageCleanup   = "cleanup"
)

// Harvester は収集ステージ。
type Harvester interface {
	Run(ctx context.Context, sources []config.Source) (harvest.Report, error)
}

// Scorer は採点ステージ。
type Scorer interface {
	Run(ctx context.Context, categories ...model.Category) (scoring.Report, error)
}

// Generator は原稿生成ステージ。
type Generator interface {
	Run(ctx context.Context, categories ...model.Category) (script.Report, error)
}

// Recorder はステージごとの所要時間と失敗を記録する。
type Recorder interface {
	ObserveStage(stage string, elapsed time.Duration, failed bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration, bool) {}

// Report はパイプライン1回分の結果。
type Report struct {
	RunID     string
	Harvest   harvest.Report
	Filter    scoring.Report
	Autopilot script.Report
	Duration  time.Duration
}

// Pipeline は収集、採点、原稿生成を1つのストアに対して順番に実行する。
// 保持期間の削除は含まない。
type Pipeline struct {
	harvester Harvester
	scorer    Scorer
	generator Generator
	sources   []config.Source
	logger    *slog.Logger
	recorder  Recorder
}

// NewPipeline はPipelineを生成する。recorderがnilの場合は記録しない。
func NewPipeline(h Harvester, s Scorer, g Generator, sources []config.Source, logger *slog.Logger, recorder Recorder) *Pipeline {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Pipeline{
		harvester: h,
		scorer:    s,
		generator: g,
		sources:   sources,
		logger:    logger,
		recorder:  recorder,
	}
}

// Run は3ステージを順番に実行する。
// ステージがエラーを返した場合（候補の取得失敗やキャンセル）はそこで中断する。
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.NewString()}
	logger := p.logger.With(slog.String("run_id", report.RunID))

	logger.Info("パイプラインを開始します", slog.Int("source_count", len(p.sources)))

	err := p.stage(ctx, logger, StageHarvest, func() error {
		var err error
		report.Harvest, err = p.harvester.Run(ctx, p.sources)
		return err
	})
	if err == nil {
		err = p.stage(ctx, logger, StageFilter, func() error {
			var err error
			report.Filter, err = p.scorer.Run(ctx)
			return err
		})
	}
	if err == nil {
		err = p.stage(ctx, logger, StageAutopilot, func() error {
			var err error
			report.Autopilot, err = p.generator.Run(ctx)
			return err
		})
	}

	report.Duration = time.Since(start)
	if err != nil {
		return report, err
	}

	logger.Info("パイプラインが完了しました",
		slog.Int("inserted", report.Harvest.Inserted()),
		slog.Int("scored", report.Filter.Scored()),
		slog.Int("written", report.Autopilot.Written()),
		slog.Float64("duration_ms", float64(report.Duration.Milliseconds())),
	)
	return report, nil
}

func (p *Pipeline) stage(ctx context.Context, logger *slog.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	p.recorder.ObserveStage(name, elapsed, err != nil)
	if err != nil {
		logger.Error("ステージの実行に失敗しました",
			slog.String("stage", name),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(elapsed.Milliseconds())),
		)
		return fmt.Errorf("%s: %w", name, err)
	}
	return ctx.Err()
}
