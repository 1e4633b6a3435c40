package scoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/database"
	"github.com/hitoshi/rundown/internal/model"
	"github.com/hitoshi/rundown/internal/oracle"
	"github.com/hitoshi/rundown/internal/repository"
	"github.com/hitoshi/rundown/internal/testsupport"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockOracle はタイトルごとに応答またはエラーを返す。
type mockOracle struct {
	responses map[string]string
	errs      map[string]error
	requests  []oracle.Request
}

func (m *mockOracle) Complete(_ context.Context, req oracle.Request) (string, error) {
	m.requests = append(m.requests, req)
	for title, err := range m.errs {
		if bytes.Contains([]byte(req.Prompt), []byte("Title: "+title+"\n")) {
			return "", err
		}
	}
	for title, resp := range m.responses {
		if bytes.Contains([]byte(req.Prompt), []byte("Title: "+title+"\n")) {
			return resp, nil
		}
	}
	return "5", nil
}

type mockStoryLister struct {
	stories map[model.Category][]model.Story
	err     error
}

func (m *mockStoryLister) ListUnscored(_ context.Context, category model.Category) ([]model.Story, error) {
	return m.stories[category], m.err
}

type mockSelectedWriter struct {
	saved map[string]model.SelectedStory
	err   error
}

func (m *mockSelectedWriter) Upsert(_ context.Context, s *model.SelectedStory) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = map[string]model.SelectedStory{}
	}
	m.saved[s.ID] = *s
	return nil
}

var harvestedAt = time.Date(2026, 3, 9, 7, 30, 0, 0, time.Local)

func story(id, title string, category model.Category) model.Story {
	return model.Story{ID: id, Title: title, Summary: "summary of " + id, Link: "https://example.com/" + id, Timestamp: harvestedAt, Category: category}
}

func TestFilter_Run_ScoresAndFallsBack(t *testing.T) {
	lister := &mockStoryLister{stories: map[model.Category][]model.Story{
		model.CategoryGeneral: {
			story("g1", "Survey says", model.CategoryGeneral),
			story("g2", "Odd reply", model.CategoryGeneral),
			story("g3", "Broken oracle", model.CategoryGeneral),
		},
	}}
	writer := &mockSelectedWriter{}
	o := &mockOracle{
		responses: map[string]string{"Survey says": "8", "Odd reply": "score: nine"},
		errs:      map[string]error{"Broken oracle": fmt.Errorf("%w: bad json", oracle.ErrMalformedResponse)},
	}
	var buf bytes.Buffer
	f := NewFilter(lister, writer, o, config.DefaultCatalog().Lanes, newTestLogger(&buf), nil)

	report, err := f.Run(context.Background(), model.CategoryGeneral)
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	want := LaneReport{Category: model.CategoryGeneral, Candidates: 3, Scored: 3, Fallbacks: 2}
	if diff := cmp.Diff([]LaneReport{want}, report.Lanes); diff != "" {
		t.Errorf("LaneReport mismatch (-want +got):\n%s", diff)
	}

	if got := writer.saved["g1"].Score; got != 8 {
		t.Errorf("g1 score = %d, want 8", got)
	}
	if got := writer.saved["g2"].Score; got != 1 {
		t.Errorf("g2 score = %d, want 1", got)
	}
	if got := writer.saved["g3"].Score; got != 1 {
		t.Errorf("g3 score = %d, want 1", got)
	}
	if !writer.saved["g1"].Timestamp.Equal(harvestedAt) {
		t.Errorf("収集時刻が引き継がれていない: %v", writer.saved["g1"].Timestamp)
	}
	if writer.saved["g1"].Summary != "summary of g1" || writer.saved["g1"].Category != model.CategoryGeneral {
		t.Errorf("g1 = %+v", writer.saved["g1"])
	}

	for _, req := range o.requests {
		if req.Temperature != 0 {
			t.Errorf("general の採点温度 = %v, want 0", req.Temperature)
		}
	}
}

func TestFilter_Run_RateLimitedSkipsItem(t *testing.T) {
	lister := &mockStoryLister{stories: map[model.Category][]model.Story{
		model.CategoryGeneral: {story("g1", "Busy", model.CategoryGeneral), story("g2", "Fine", model.CategoryGeneral)},
	}}
	writer := &mockSelectedWriter{}
	o := &mockOracle{
		responses: map[string]string{"Fine": "6"},
		errs:      map[string]error{"Busy": fmt.Errorf("%w: http 429", oracle.ErrRateLimited)},
	}
	var buf bytes.Buffer
	f := NewFilter(lister, writer, o, config.DefaultCatalog().Lanes, newTestLogger(&buf), nil)

	report, err := f.Run(context.Background(), model.CategoryGeneral)
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if report.Lanes[0].Skipped != 1 || report.Lanes[0].Scored != 1 {
		t.Errorf("LaneReport = %+v", report.Lanes[0])
	}
	if _, ok := writer.saved["g1"]; ok {
		t.Error("レート制限されたストーリーが保存された")
	}
}

func TestFilter_Run_CelebBannedPhrasesSkipOracle(t *testing.T) {
	lister := &mockStoryLister{stories: map[model.Category][]model.Story{
		model.CategoryCeleb: {
			story("c1", "Shop the Look: Designer Lookalikes", model.CategoryCeleb),
			story("c2", "Star splits from husband", model.CategoryCeleb),
		},
	}}
	writer := &mockSelectedWriter{}
	o := &mockOracle{responses: map[string]string{"Star splits from husband": "9"}}
	var buf bytes.Buffer
	f := NewFilter(lister, writer, o, config.DefaultCatalog().Lanes, newTestLogger(&buf), nil)

	report, err := f.Run(context.Background(), model.CategoryCeleb)
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if report.Lanes[0].Rejected != 1 || report.Lanes[0].Scored != 1 {
		t.Errorf("LaneReport = %+v", report.Lanes[0])
	}
	if len(o.requests) != 1 {
		t.Fatalf("オラクル呼び出し = %d, want 1", len(o.requests))
	}
	if o.requests[0].MaxTokens != 2 || o.requests[0].Temperature != 0.2 {
		t.Errorf("celeb のリクエスト = %+v", o.requests[0])
	}
	if _, ok := writer.saved["c1"]; ok {
		t.Error("禁止フレーズを含むストーリーが保存された")
	}
}

func TestFilter_Run_StoreErrorsDoNotAbort(t *testing.T) {
	lister := &mockStoryLister{stories: map[model.Category][]model.Story{
		model.CategoryGeneral: {story("g1", "One", model.CategoryGeneral), story("g2", "Two", model.CategoryGeneral)},
	}}
	writer := &mockSelectedWriter{err: errors.New("disk full")}
	var buf bytes.Buffer
	f := NewFilter(lister, writer, &mockOracle{}, config.DefaultCatalog().Lanes, newTestLogger(&buf), nil)

	report, err := f.Run(context.Background(), model.CategoryGeneral)
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if report.Lanes[0].Failed != 2 {
		t.Errorf("Failed = %d, want 2", report.Lanes[0].Failed)
	}
}

func TestFilter_Run_ListErrorIsReturned(t *testing.T) {
	lister := &mockStoryLister{err: errors.New("no such table")}
	var buf bytes.Buffer
	f := NewFilter(lister, &mockSelectedWriter{}, &mockOracle{}, config.DefaultCatalog().Lanes, newTestLogger(&buf), nil)

	if _, err := f.Run(context.Background()); err == nil {
		t.Error("候補取得の失敗でエラーが返らなかった")
	}
}

func TestFilter_Run_UnknownCategory(t *testing.T) {
	var buf bytes.Buffer
	f := NewFilter(&mockStoryLister{}, &mockSelectedWriter{}, &mockOracle{}, config.DefaultCatalog().Lanes, newTestLogger(&buf), nil)

	if _, err := f.Run(context.Background(), model.Category("sports")); err == nil {
		t.Error("未設定のカテゴリでエラーが返らなかった")
	}
}

type cancelingOracle struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancelingOracle) Complete(ctx context.Context, _ oracle.Request) (string, error) {
	c.calls++
	c.cancel()
	return "", fmt.Errorf("oracle request: %w", context.Canceled)
}

func TestFilter_Run_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lister := &mockStoryLister{stories: map[model.Category][]model.Story{
		model.CategoryGeneral: {story("g1", "One", model.CategoryGeneral), story("g2", "Two", model.CategoryGeneral)},
	}}
	writer := &mockSelectedWriter{}
	o := &cancelingOracle{cancel: cancel}
	var buf bytes.Buffer
	f := NewFilter(lister, writer, o, config.DefaultCatalog().Lanes, newTestLogger(&buf), nil)

	_, err := f.Run(ctx, model.CategoryGeneral)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if o.calls != 1 || len(writer.saved) != 0 {
		t.Errorf("キャンセル後も処理が続いた: calls=%d saved=%d", o.calls, len(writer.saved))
	}
}

type recordingRecorder struct {
	outcomes []string
}

func (r *recordingRecorder) ObserveScore(_ string, outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

// 実際のストアで、採点済みのストーリーが再度候補にならないことと禁止フレーズの扱いを確認する。
func TestFilter_Run_AgainstStore(t *testing.T) {
	db, _ := testsupport.MustOpenStore(t)
	stories := repository.NewStoryRepo(db, database.DialectSQLite)
	selected := repository.NewSelectedStoryRepo(db, database.DialectSQLite)
	ctx := context.Background()

	seed := []model.Story{
		story("a1", "Local bakery wins award", model.CategoryGeneral),
		story("b1", "Deal alert: 50% off", model.CategoryCeleb),
		story("c1", "Star splits", model.CategoryCeleb),
	}
	// 候補は新しい順に処理されるため、c1をb1より古くして順序を固定する
	seed[2].Timestamp = harvestedAt.Add(-time.Minute)
	for i := range seed {
		if err := stories.Insert(ctx, &seed[i]); err != nil {
			t.Fatalf("Insert() がエラーを返した: %v", err)
		}
	}

	o := &mockOracle{responses: map[string]string{"Local bakery wins award": "8", "Star splits": "7"}}
	rec := &recordingRecorder{}
	var buf bytes.Buffer
	f := NewFilter(stories, selected, o, config.DefaultCatalog().Lanes, newTestLogger(&buf), rec)

	if _, err := f.Run(ctx); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	got, err := selected.FindByID(ctx, "a1")
	if err != nil || got == nil {
		t.Fatalf("FindByID(a1) = %v, %v", got, err)
	}
	if got.Score != 8 || !got.Timestamp.Equal(harvestedAt) {
		t.Errorf("a1 = %+v", got)
	}
	if b1, _ := selected.FindByID(ctx, "b1"); b1 != nil {
		t.Error("禁止フレーズを含むストーリーが selected_stories に入った")
	}

	calls := len(o.requests)
	if _, err := f.Run(ctx); err != nil {
		t.Fatalf("2回目の Run() がエラーを返した: %v", err)
	}
	if len(o.requests) != calls {
		t.Errorf("採点済みストーリーが再採点された: %d -> %d", calls, len(o.requests))
	}
	if diff := cmp.Diff([]string{OutcomeScored, OutcomeRejected, OutcomeScored, OutcomeRejected}, rec.outcomes); diff != "" {
		t.Errorf("記録された結果 (-want +got):\n%s", diff)
	}
}
