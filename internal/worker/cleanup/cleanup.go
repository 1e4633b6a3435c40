// Package cleanup は保持期間を過ぎたストーリーの削除ジョブを提供する。
// 保持期間（デフォルト7日）より古いstoriesとselected_storiesを削除し、
// SQLiteの場合はVACUUMでファイル領域を回収する。
// radio_scriptsはIncludeScriptsを指定した場合のみ削除対象になる。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/rundown/internal/database"
	"github.com/hitoshi/rundown/internal/model"
	"github.com/hitoshi/rundown/internal/repository"
)

// DefaultRetentionDays は既定の保持日数。
const DefaultRetentionDays = 7

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Recorder はテーブルごとの削除件数を記録する。
type Recorder interface {
	ObserveRetention(table string, deleted int64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRetention(string, int64) {}

// Result はテーブルごとの削除件数。
type Result struct {
	Cutoff   string
	Stories  int64
	Selected int64
	Scripts  int64
	Vacuumed bool
}

// Total は削除件数の合計を返す。
func (r Result) Total() int64 {
	return r.Stories + r.Selected + r.Scripts
}

// CleanupJob は保持期間を超過したストーリーの削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	db             Executor
	dialect        database.Dialect
	logger         *slog.Logger
	recorder       Recorder
	now            func() time.Time
	RetentionDays  int  // 保持日数（デフォルト: 7）
	IncludeScripts bool // radio_scriptsも削除する
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderがnilの場合は記録しない。
func NewCleanupJob(db Executor, dialect database.Dialect, logger *slog.Logger, recorder Recorder) *CleanupJob {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CleanupJob{
		db:            db,
		dialect:       dialect,
		logger:        logger,
		recorder:      recorder,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
}

// Cutoff は現在時刻からRetentionDays日前のストア書式のタイムスタンプを返す。
// これより古いtimestampの行が削除対象になる。
func (j *CleanupJob) Cutoff() string {
	return model.FormatTimestamp(j.now().AddDate(0, 0, -j.RetentionDays))
}

// Run は保持期間を超過した行を削除し、SQLiteではVACUUMを実行する。
// VACUUMの失敗は警告として記録し、削除結果は返す。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{Cutoff: j.Cutoff()}

	tables := []string{"selected_stories", "stories"}
	if j.IncludeScripts {
		tables = append([]string{"radio_scripts"}, tables...)
	}

	for _, table := range tables {
		deleted, err := j.deleteExpired(ctx, table, result.Cutoff)
		if err != nil {
			j.logger.Error("保持期間の削除に失敗しました",
				slog.String("table", table),
				slog.String("error", err.Error()),
				slog.Int("retention_days", j.RetentionDays),
			)
			return result, err
		}
		j.recorder.ObserveRetention(table, deleted)
		switch table {
		case "stories":
			result.Stories = deleted
		case "selected_stories":
			result.Selected = deleted
		case "radio_scripts":
			result.Scripts = deleted
		}
	}

	if j.dialect == database.DialectSQLite {
		if _, err := j.db.ExecContext(ctx, "VACUUM"); err != nil {
			j.logger.Warn("VACUUMに失敗しました",
				slog.String("error", err.Error()),
			)
		} else {
			result.Vacuumed = true
		}
	}

	duration := time.Since(start)
	j.logger.Info("保持期間の削除が完了しました",
		slog.Int64("deleted_count", result.Total()),
		slog.Int64("stories", result.Stories),
		slog.Int64("selected_stories", result.Selected),
		slog.Int64("radio_scripts", result.Scripts),
		slog.Int("retention_days", j.RetentionDays),
		slog.String("cutoff", result.Cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result, nil
}

// expiredCond はtableの削除条件を返す。
// radio_scripts.timestampは生成時刻で収集時刻より後になり得るため、
// 同じ実行で消えるselected_storiesに紐づく原稿も対象にしてファネルを保つ。
func expiredCond(table, cutoff string) sq.Sqlizer {
	if table == "radio_scripts" {
		return sq.Or{
			sq.Lt{"timestamp": cutoff},
			sq.Expr("id IN (SELECT id FROM selected_stories WHERE timestamp < ?)", cutoff),
		}
	}
	return sq.Lt{"timestamp": cutoff}
}

func (j *CleanupJob) deleteExpired(ctx context.Context, table, cutoff string) (int64, error) {
	query, args, err := repository.Builder(j.dialect).
		Delete(table).
		Where(expiredCond(table, cutoff)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("クエリの構築に失敗: %w", err)
	}

	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s の削除に失敗: %w", table, err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return deleted, nil
}
