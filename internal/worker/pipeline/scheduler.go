package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rundown/internal/worker/cleanup"
)

// Runner はパイプライン1回分の実行。
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Retention は保持期間の削除。
type Retention interface {
	Run(ctx context.Context) (cleanup.Result, error)
}

// Locker はサイクルごとの排他ロック。取得できない場合はエラーを返す。
type Locker interface {
	Lock() (unlock func() error, err error)
}

// Scheduler はパイプラインを一定間隔で実行し、CleanupInterval経過ごとに保持期間の削除を行う。
// すべて1つのループで逐次実行し、ステージ同士が並行することはない。
type Scheduler struct {
	pipeline        Runner
	retention       Retention
	locker          Locker
	logger          *slog.Logger
	cleanupInterval time.Duration
	now             func() time.Time
	lastCleanup     time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// retentionがnil、またはcleanupIntervalが0以下の場合は保持期間の削除を行わない。
// lockerがnilの場合はロックを取らない。
func NewScheduler(pipeline Runner, retention Retention, locker Locker, logger *slog.Logger, cleanupInterval time.Duration) *Scheduler {
	return &Scheduler{
		pipeline:        pipeline,
		retention:       retention,
		locker:          locker,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// Start はintervalごとにRunOnceを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("パイプラインスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("cleanup_interval", s.cleanupInterval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logCycleError(err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("パイプラインスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCycleError(err)
			}
		}
	}
}

// RunOnce はロックを取得してパイプラインを1回実行し、期限が来ていれば保持期間の削除を行う。
// パイプラインが失敗しても、キャンセルでなければ保持期間の削除は実行する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	if s.locker != nil {
		unlock, err := s.locker.Lock()
		if err != nil {
			return fmt.Errorf("ロックの取得に失敗: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				s.logger.Warn("ロックの解放に失敗しました", slog.String("error", err.Error()))
			}
		}()
	}

	_, runErr := s.pipeline.Run(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	var cleanupErr error
	if s.cleanupDue() {
		if _, err := s.retention.Run(ctx); err != nil {
			cleanupErr = fmt.Errorf("%s: %w", StageCleanup, err)
		} else {
			s.lastCleanup = s.now()
		}
	}

	s.logger.Info("パイプラインサイクルが完了しました",
		slog.Bool("pipeline_failed", runErr != nil),
		slog.Bool("cleanup_failed", cleanupErr != nil),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return errors.Join(runErr, cleanupErr)
}

func (s *Scheduler) cleanupDue() bool {
	if s.retention == nil || s.cleanupInterval <= 0 {
		return false
	}
	return s.lastCleanup.IsZero() || s.now().Sub(s.lastCleanup) >= s.cleanupInterval
}

func (s *Scheduler) logCycleError(err error) {
	s.logger.Error("パイプラインサイクルの実行に失敗しました",
		slog.String("error", err.Error()),
	)
}
