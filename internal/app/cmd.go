package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/database"
	"github.com/hitoshi/rundown/internal/model"
)

// Command はアプリケーションのサブコマンドを表す。
type Command string

const (
	// CommandHarvest はフィードを収集する。
	CommandHarvest Command = "harvest"
	// CommandFilter は未評価のストーリーを採点する。
	CommandFilter Command = "filter"
	// CommandAutopilot は高スコアのストーリーの原稿を生成する。
	CommandAutopilot Command = "autopilot"
	// CommandCleanup は保持期間を過ぎた行を削除する。
	CommandCleanup Command = "cleanup"
	// CommandPipeline は収集、採点、原稿生成を順に1回実行する。
	CommandPipeline Command = "pipeline"
	// CommandWorker はパイプラインを一定間隔で繰り返す。
	CommandWorker Command = "worker"
	// CommandServe はダッシュボードAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// commandContext はサブコマンド間で共有する状態。
type commandContext struct {
	out    io.Writer
	cfg    *config.Config
	logger *slog.Logger
}

// ensureConfig は設定とロガーを1回だけ初期化する。
func (c *commandContext) ensureConfig() error {
	if c.cfg != nil {
		return nil
	}
	cfg, log, err := Init(c.out)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	c.cfg = cfg
	c.logger = log
	return nil
}

// NewRootCommand はrundownのルートコマンドを生成する。ログはwに出力する。
func NewRootCommand(w io.Writer) *cobra.Command {
	if w == nil {
		w = os.Stdout
	}
	ctx := &commandContext{out: w}

	root := &cobra.Command{
		Use:           "rundown",
		Short:         "News and celeb feed pipeline producing radio scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
			if cmd.Name() == string(CommandHealthcheck) {
				return nil
			}
			return ctx.ensureConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(w)

	root.AddCommand(newHarvestCommand(ctx))
	root.AddCommand(newFilterCommand(ctx))
	root.AddCommand(newAutopilotCommand(ctx))
	root.AddCommand(newCleanupCommand(ctx))
	root.AddCommand(newPipelineCommand(ctx))
	root.AddCommand(newWorkerCommand(ctx))
	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newMigrateCommand(ctx))
	root.AddCommand(newHealthcheckCommand())

	return root
}

// parseCategories は--categoryフラグの値を検証する。空の場合は全レーン。
func parseCategories(values []string) ([]model.Category, error) {
	out := make([]model.Category, 0, len(values))
	for _, v := range values {
		c, err := model.ParseCategory(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// batch はロックを取得してストアを開き、run_id付きのロガーでfnを実行する。
func (c *commandContext) batch(cmd *cobra.Command, needsOracle bool, fn func(rt *runtime) error) error {
	if needsOracle {
		if err := c.cfg.RequireOracle(); err != nil {
			return err
		}
	}

	attrs := []any{slog.String("command", cmd.Name())}
	// パイプラインは実行ごとに自身でrun_idを付与する
	if cmd.Name() != string(CommandPipeline) {
		attrs = append(attrs, slog.String("run_id", uuid.NewString()))
	}
	log := c.logger.With(attrs...)
	return withRunLock(c.cfg, log, func() error {
		rt, err := openRuntime(cmd.Context(), c.cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(rt)
	})
}

func newHarvestCommand(ctx *commandContext) *cobra.Command {
	var categories []string
	cmd := &cobra.Command{
		Use:   string(CommandHarvest),
		Short: "Fetch configured feeds and store new stories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := parseCategories(categories)
			if err != nil {
				return err
			}
			return ctx.batch(cmd, false, func(rt *runtime) error {
				sources := selectSources(rt.cfg.Catalog, cats)
				report, err := rt.newHarvester().Run(cmd.Context(), sources)
				fmt.Fprintln(cmd.OutOrStdout(), renderHarvestReport(report))
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Lanes to harvest (general, celeb); all when omitted")
	return cmd
}

// selectSources はカテゴリに対応する取得元を返す。categoriesが空の場合は全件。
func selectSources(catalog *config.Catalog, categories []model.Category) []config.Source {
	if len(categories) == 0 {
		return catalog.Sources
	}
	var out []config.Source
	for _, c := range categories {
		out = append(out, catalog.SourcesFor(c)...)
	}
	return out
}

func newFilterCommand(ctx *commandContext) *cobra.Command {
	var categories []string
	cmd := &cobra.Command{
		Use:   string(CommandFilter),
		Short: "Score unscored stories with the oracle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := parseCategories(categories)
			if err != nil {
				return err
			}
			return ctx.batch(cmd, true, func(rt *runtime) error {
				report, err := rt.newFilter(rt.newOracle()).Run(cmd.Context(), cats...)
				fmt.Fprintln(cmd.OutOrStdout(), renderFilterReport(report))
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Lanes to score (general, celeb); all when omitted")
	return cmd
}

func newAutopilotCommand(ctx *commandContext) *cobra.Command {
	var categories []string
	cmd := &cobra.Command{
		Use:   string(CommandAutopilot),
		Short: "Generate radio scripts for high scoring stories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := parseCategories(categories)
			if err != nil {
				return err
			}
			return ctx.batch(cmd, true, func(rt *runtime) error {
				report, err := rt.newGenerator(rt.newOracle()).Run(cmd.Context(), cats...)
				fmt.Fprintln(cmd.OutOrStdout(), renderAutopilotReport(report))
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Lanes to generate (general, celeb); all when omitted")
	return cmd
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var days int
	var includeScripts bool
	cmd := &cobra.Command{
		Use:   string(CommandCleanup),
		Short: "Delete rows older than the retention window and compact the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.batch(cmd, false, func(rt *runtime) error {
				job := rt.newCleanupJob()
				if cmd.Flags().Changed("days") {
					if days <= 0 {
						return fmt.Errorf("--days must be positive: %d", days)
					}
					job.RetentionDays = days
				}
				if cmd.Flags().Changed("include-scripts") {
					job.IncludeScripts = includeScripts
				}
				result, err := job.Run(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), renderCleanupResult(result))
				return err
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (default RETENTION_DAYS)")
	cmd.Flags().BoolVar(&includeScripts, "include-scripts", false, "Also delete radio scripts (default RETENTION_INCLUDE_SCRIPTS)")
	return cmd
}

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandPipeline),
		Short: "Run harvest, filter and autopilot once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.batch(cmd, true, func(rt *runtime) error {
				report, err := rt.newPipeline().Run(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), renderPipelineReport(report))
				return err
			})
		},
	}
}

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   string(CommandWorker),
		Short: "Repeat the pipeline on an interval and apply retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.cfg.RequireOracle(); err != nil {
				return err
			}
			return runWorker(cmd.Context(), ctx.cfg, ctx.logger, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on this address while the worker runs (e.g. :9090)")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandServe),
		Short: "Start the dashboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx.cfg, ctx.logger)
		},
	}
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(ctx.cfg, ctx.logger)
		},
	}
}

func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local API server's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8083"
			}
			return runHealthcheck(port)
		},
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	log.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
