package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/handler"
	"github.com/hitoshi/rundown/internal/middleware"
	"github.com/hitoshi/rundown/internal/repository"
)

// shutdownTimeout はグレースフルシャットダウンの上限時間。
const shutdownTimeout = 30 * time.Second

// newServer はダッシュボードAPIのHTTPサーバーを構築する。
// 戻り値のstopはレートリミッターのクリーンアップを停止する。
func newServer(rt *runtime) (server *http.Server, stop func()) {
	log := rt.logger
	if err := rt.cfg.RequireOracle(); err != nil {
		log.Warn("OPENAI_API_KEYが未設定のため原稿のその場生成は失敗します")
	}

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(rt.cfg.GenerateRatePerMin))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: rt.cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Stories:           repository.NewSelectedStoryRepo(rt.db, rt.dialect),
		Scripts:           repository.NewScriptRepo(rt.db, rt.dialect),
		DB:                rt.db,
		Generator:         rt.newGenerator(rt.newOracle()),
		Gatherer:          rt.registry,
	})

	server = &http.Server{
		Addr:              ":" + rt.cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 原稿のその場生成はオラクルの応答を待つ
		WriteTimeout: rt.cfg.OracleTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server, rateLimiter.Stop
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	rt, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	server, stop := newServer(rt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}
