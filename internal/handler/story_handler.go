package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rundown/internal/model"
	"github.com/hitoshi/rundown/internal/oracle"
	"github.com/hitoshi/rundown/internal/script"
)

// StoryReader はダッシュボードが参照するスコア付きストーリーの読み出し。
type StoryReader interface {
	ListDates(ctx context.Context) ([]string, error)
	ListByDate(ctx context.Context, date string, category model.Category) ([]model.StoryListEntry, error)
	FindByID(ctx context.Context, id string) (*model.SelectedStory, error)
}

// ScriptStore は原稿の参照とオンエア状態の更新。
type ScriptStore interface {
	FindByID(ctx context.Context, id string) (*model.RadioScript, error)
	SetAired(ctx context.Context, id string, aired bool) (bool, error)
}

// ScriptGenerator は単一ストーリーの原稿をその場で生成する。
type ScriptGenerator interface {
	GenerateOne(ctx context.Context, id string) (*model.RadioScript, error)
}

// StoryHandler はストーリーと原稿のHTTPハンドラー。
type StoryHandler struct {
	stories   StoryReader
	scripts   ScriptStore
	generator ScriptGenerator
	logger    *slog.Logger
	now       func() time.Time
}

// NewStoryHandler はStoryHandlerを生成する。
func NewStoryHandler(stories StoryReader, scripts ScriptStore, generator ScriptGenerator, logger *slog.Logger) *StoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoryHandler{
		stories:   stories,
		scripts:   scripts,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}
}

// --- レスポンス型 ---

// storySummaryResponse は一覧の1行。
type storySummaryResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Score     int    `json:"score"`
	Link      string `json:"link"`
	Timestamp string `json:"timestamp"`
	Category  string `json:"category"`
	Prepped   bool   `json:"prepped"`
	Aired     bool   `json:"aired"`
}

// storyListResponse はストーリー一覧のレスポンス。
type storyListResponse struct {
	Date     string                 `json:"date"`
	Category string                 `json:"category"`
	Stories  []storySummaryResponse `json:"stories"`
}

// scriptResponse は原稿のレスポンス。
type scriptResponse struct {
	ID         string `json:"id"`
	Tease      string `json:"tease"`
	FullStory  string `json:"full_story"`
	SourceName string `json:"source_name"`
	Link       string `json:"link"`
	Timestamp  string `json:"timestamp"`
	IsAired    bool   `json:"is_aired"`
	Category   string `json:"category"`
}

// storyDetailResponse はストーリー詳細。原稿が未生成の場合Scriptはnull。
type storyDetailResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Score     int             `json:"score"`
	Summary   string          `json:"summary"`
	Link      string          `json:"link"`
	Timestamp string          `json:"timestamp"`
	Category  string          `json:"category"`
	Script    *scriptResponse `json:"script"`
}

// airedRequest はオンエア状態更新リクエストのボディ。
type airedRequest struct {
	IsAired *bool `json:"is_aired"`
}

func toScriptResponse(s *model.RadioScript) *scriptResponse {
	return &scriptResponse{
		ID:         s.ID,
		Tease:      s.Tease,
		FullStory:  s.FullStory,
		SourceName: s.SourceName,
		Link:       s.Link,
		Timestamp:  model.FormatTimestamp(s.Timestamp),
		IsAired:    s.IsAired,
		Category:   string(s.Category),
	}
}

// ListDates は選択可能な日付を返す。今日の日付は常に先頭に含める。
// GET /api/dates
func (h *StoryHandler) ListDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.stories.ListDates(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	today := model.FormatDate(h.now())
	result := []string{today}
	for _, d := range dates {
		if d != today && !slices.Contains(result, d) {
			result = append(result, d)
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"dates": result})
}

// ListStories は日付とカテゴリで絞り込んだストーリー一覧を返す。
// GET /api/stories?date=YYYY-MM-DD&category=general|celeb
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = model.FormatDate(h.now())
	} else if _, err := time.Parse(model.DateLayout, date); err != nil {
		handleServiceError(w, r, h.logger, model.NewInvalidDateError(date))
		return
	}

	category := model.CategoryGeneral
	if raw := r.URL.Query().Get("category"); raw != "" {
		parsed, err := model.ParseCategory(raw)
		if err != nil {
			handleServiceError(w, r, h.logger, model.NewInvalidCategoryError(raw))
			return
		}
		category = parsed
	}

	entries, err := h.stories.ListByDate(r.Context(), date, category)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	resp := storyListResponse{
		Date:     date,
		Category: string(category),
		Stories:  make([]storySummaryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Stories = append(resp.Stories, storySummaryResponse{
			ID:        e.ID,
			Title:     e.Title,
			Score:     e.Score,
			Link:      e.Link,
			Timestamp: model.FormatTimestamp(e.Timestamp),
			Category:  string(e.Category),
			Prepped:   e.Prepped,
			Aired:     e.Aired,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// idParam はパスの{id}を取り出す。
// ストーリーIDはフィードのGUIDでURLであることが多く、クライアントは
// encodeURIComponentで%2Fを含む形に符号化して送る。chiはその場合RawPathで
// ルーティングするため、値は符号化されたまま渡ってくるので復号する。
func (h *StoryHandler) idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, true
	}
	decoded, err := url.PathUnescape(id)
	if err != nil {
		handleServiceError(w, r, h.logger, model.NewInvalidRequestError("id is not a valid escaped path segment"))
		return "", false
	}
	return decoded, true
}

// GetStory はストーリー詳細を原稿付きで返す。
// GET /api/stories/{id}
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	story, err := h.stories.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if story == nil {
		handleServiceError(w, r, h.logger, model.NewStoryNotFoundError(id))
		return
	}

	resp := storyDetailResponse{
		ID:        story.ID,
		Title:     story.Title,
		Score:     story.Score,
		Summary:   story.Summary,
		Link:      story.Link,
		Timestamp: model.FormatTimestamp(story.Timestamp),
		Category:  string(story.Category),
	}

	s, err := h.scripts.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if s != nil {
		resp.Script = toScriptResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GenerateScript はスコアに関係なく指定ストーリーの原稿を生成する。
// POST /api/stories/{id}/generate
func (h *StoryHandler) GenerateScript(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	s, err := h.generator.GenerateOne(r.Context(), id)
	switch {
	case errors.Is(err, script.ErrStoryNotFound):
		handleServiceError(w, r, h.logger, model.NewStoryNotFoundError(id))
		return
	case errors.Is(err, script.ErrOracleFailed):
		h.logger.Warn("原稿のその場生成に失敗しました",
			slog.String("story_id", id),
			slog.String("kind", oracle.KindOf(err)),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, r, h.logger, model.NewOracleFailedError(oracle.KindOf(err)))
		return
	case err != nil:
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toScriptResponse(s))
}

// UpdateAired は原稿のオンエア状態を更新する。
// PUT /api/scripts/{id}/aired
func (h *StoryHandler) UpdateAired(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	var req airedRequest
	if err := decodeJSONBody(r, &req); err != nil {
		handleServiceError(w, r, h.logger, model.NewInvalidRequestError(err.Error()))
		return
	}
	if req.IsAired == nil {
		handleServiceError(w, r, h.logger, model.NewInvalidRequestError("is_aired is required"))
		return
	}

	found, err := h.scripts.SetAired(r.Context(), id, *req.IsAired)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if !found {
		handleServiceError(w, r, h.logger, model.NewScriptNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_aired": *req.IsAired})
}
