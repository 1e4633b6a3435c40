package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/database"
	"github.com/hitoshi/rundown/internal/harvest"
	"github.com/hitoshi/rundown/internal/logger"
	"github.com/hitoshi/rundown/internal/metrics"
	"github.com/hitoshi/rundown/internal/oracle"
	"github.com/hitoshi/rundown/internal/repository"
	"github.com/hitoshi/rundown/internal/scoring"
	"github.com/hitoshi/rundown/internal/script"
	"github.com/hitoshi/rundown/internal/security"
	"github.com/hitoshi/rundown/internal/worker/cleanup"
)

// defaultLockFile はPostgreSQL利用時のロックファイル名。os.TempDir()に置く。
const defaultLockFile = "rundown.lock"

// Init はアプリケーションの初期化を行う。
// 環境変数と設定ファイルからConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. 設定読み込み前のエラーもJSONで出せるよう、先にINFOで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルで作り直す
	level, ok := logger.ParseLevel(cfg.LogLevel)
	log := logger.SetupDefault(w, level)
	if !ok {
		log.Warn("LOG_LEVELを解釈できないためinfoを使います", slog.String("log_level", cfg.LogLevel))
	}

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMを受信すると実行中の処理をキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// runtime はコマンド1回分の共有リソース。
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	dialect  database.Dialect
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

// openRuntime はストアを開き、必要ならマイグレーションを適用する。
func openRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*runtime, error) {
	if cfg.AutoMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("auto_migrate", cfg.AutoMigrate),
	)

	reg := prometheus.NewRegistry()
	return &runtime{
		cfg:      cfg,
		logger:   log,
		db:       db,
		dialect:  database.DetectDialect(cfg.DatabaseURL),
		registry: reg,
		metrics:  metrics.NewCollector(reg),
	}, nil
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

func (rt *runtime) newHarvester() *harvest.Harvester {
	guard := security.NewURLGuard(rt.cfg.UserAgent)
	extractor := harvest.NewArticleExtractor(guard, rt.cfg.ArticleTimeout, rt.cfg.FetchMaxSize)
	return harvest.NewHarvester(
		repository.NewStoryRepo(rt.db, rt.dialect),
		guard,
		extractor,
		security.NewTextCleaner(),
		rt.logger,
		harvest.Options{
			FeedTimeout:       rt.cfg.FetchTimeout,
			MaxBodySize:       rt.cfg.FetchMaxSize,
			MaxAge:            rt.cfg.HarvestMaxAge,
			MinContentLength:  rt.cfg.MinContentLength,
			AggregatorDomains: rt.cfg.Catalog.AggregatorDomains,
		},
		rt.metrics,
	)
}

func (rt *runtime) newOracle() *oracle.Client {
	return oracle.NewClient(oracle.Config{
		APIKey:  rt.cfg.OracleAPIKey,
		BaseURL: rt.cfg.OracleBaseURL,
		Model:   rt.cfg.OracleModel,
		Timeout: rt.cfg.OracleTimeout,
	},
		oracle.WithRetryMaxAttempts(rt.cfg.OracleMaxAttempts),
		oracle.WithRecorder(rt.metrics),
	)
}

func (rt *runtime) newFilter(o oracle.Oracle) *scoring.Filter {
	return scoring.NewFilter(
		repository.NewStoryRepo(rt.db, rt.dialect),
		repository.NewSelectedStoryRepo(rt.db, rt.dialect),
		o,
		rt.cfg.Catalog.Lanes,
		rt.logger,
		rt.metrics,
	)
}

func (rt *runtime) newGenerator(o oracle.Oracle) *script.Generator {
	return script.NewGenerator(
		repository.NewSelectedStoryRepo(rt.db, rt.dialect),
		repository.NewScriptRepo(rt.db, rt.dialect),
		o,
		rt.cfg.Catalog.Lanes,
		rt.logger,
		rt.metrics,
	)
}

func (rt *runtime) newCleanupJob() *cleanup.CleanupJob {
	job := cleanup.NewCleanupJob(rt.db, rt.dialect, rt.logger, rt.metrics)
	job.RetentionDays = rt.cfg.RetentionDays
	job.IncludeScripts = rt.cfg.RetentionIncludeScripts
	return job
}

// runLocker はバッチステージを直列化するファイルロック。
type runLocker struct {
	path string
}

func newRunLocker(cfg *config.Config) runLocker {
	path := cfg.RunLockFile
	if path == "" {
		path = database.DefaultLockPath(cfg.DatabaseURL, filepath.Join(os.TempDir(), defaultLockFile))
	}
	return runLocker{path: path}
}

// Lock は排他ロックを取得し、解放関数を返す。
func (l runLocker) Lock() (func() error, error) {
	lock, err := database.AcquireRunLock(l.path)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// withRunLock はロックを取得してfnを実行する。
func withRunLock(cfg *config.Config, log *slog.Logger, fn func() error) error {
	unlock, err := newRunLocker(cfg).Lock()
	if err != nil {
		if errors.Is(err, database.ErrRunLocked) {
			log.Error("別のバッチ処理が実行中です", slog.String("error", err.Error()))
		}
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Warn("ロックの解放に失敗しました", slog.String("error", err.Error()))
		}
	}()
	return fn()
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
// SQLiteのファイルパスはそのまま返す。
func maskDatabaseURL(raw string) string {
	if database.DetectDialect(raw) == database.DialectSQLite {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}
