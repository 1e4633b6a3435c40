package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/metrics"
	"github.com/hitoshi/rundown/internal/worker/pipeline"
)

func (rt *runtime) newPipeline() *pipeline.Pipeline {
	o := rt.newOracle()
	return pipeline.NewPipeline(
		rt.newHarvester(),
		rt.newFilter(o),
		rt.newGenerator(o),
		rt.cfg.Catalog.Sources,
		rt.logger,
		rt.metrics,
	)
}

// runWorker はワーカーモードで起動する。
// パイプラインをPIPELINE_INTERVALごとに、保持期間の削除をCLEANUP_INTERVALごとに、1つのループで逐次実行する。
// metricsAddrが空でなければ実行中のメトリクスを公開する。
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger, metricsAddr string) error {
	if cfg.PipelineInterval <= 0 {
		return fmt.Errorf("PIPELINE_INTERVAL must be positive: %s", cfg.PipelineInterval)
	}
	log = log.With(slog.String("command", string(CommandWorker)))

	rt, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if metricsAddr != "" {
		server := &http.Server{
			Addr:              metricsAddr,
			Handler:           metrics.SetupMetricsRoute(rt.registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server starting", slog.String("addr", metricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	scheduler := pipeline.NewScheduler(
		rt.newPipeline(),
		rt.newCleanupJob(),
		newRunLocker(cfg),
		log,
		cfg.CleanupInterval,
	)

	log.Info("worker starting",
		slog.Duration("pipeline_interval", cfg.PipelineInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// コンテキストがキャンセルされるまでブロックする
	scheduler.Start(ctx, cfg.PipelineInterval)

	log.Info("worker stopped gracefully")
	return nil
}
