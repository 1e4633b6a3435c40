package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/rundown/internal/metrics"
	"github.com/hitoshi/rundown/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Pinger はストアの疎通確認。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ストア
	Stories StoryReader
	Scripts ScriptStore
	DB      Pinger

	// 原稿のその場生成
	Generator ScriptGenerator

	// nilの場合/metricsは公開しない
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → AccessLog → Recovery → APIHeaders → RateLimit(General)
//
// AccessLogをRecoveryの外側に置き、panicも500として記録する。
//
// 原稿生成エンドポイントにはさらにGenerateのレート制限を重ねる。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewAccessLogMiddleware(logger, "/health", "/metrics"))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewAPIHeadersMiddleware(middleware.APIHeaders{
		AllowedOrigins: middleware.ParseAllowedOrigins(deps.CORSAllowedOrigin),
	}))

	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	storyHandler := NewStoryHandler(deps.Stories, deps.Scripts, deps.Generator, logger)

	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Get("/dates", storyHandler.ListDates)

		r.Route("/stories", func(r chi.Router) {
			r.Get("/", storyHandler.ListStories)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", storyHandler.GetStory)

				generate := r
				if deps.RateLimiter != nil {
					generate = r.With(deps.RateLimiter.GenerateMiddleware())
				}
				generate.Post("/generate", storyHandler.GenerateScript)
			})
		})

		r.Put("/scripts/{id}/aired", storyHandler.UpdateAired)
	})

	return r
}
