package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSetupMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveScore("celeb", "scored")
	c.ObserveScore("celeb", "scored")

	mux := SetupMetricsRoute(reg)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"metrics", "/metrics", http.StatusOK, `rundown_scores_total{category="celeb",outcome="scored"} 2`},
		{"other path", "/", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body, _ := io.ReadAll(w.Body)
			if tt.wantBody != "" && !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("本文に %q がない:\n%s", tt.wantBody, body)
			}
		})
	}
}

func TestHandler_OnlyServesGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).ObserveScore("general", "failed")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	if !strings.Contains(body, "rundown_scores_total") {
		t.Error("rundown_scores_total が出力されていない")
	}
	// 専用レジストリなのでGoランタイムのメトリクスは混ざらない
	if strings.Contains(body, "go_goroutines") {
		t.Error("デフォルトレジストリのメトリクスが混ざっている")
	}
}
