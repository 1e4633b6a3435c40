package harvest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// mockSSRFGuard は検証結果を固定し、ループバックへの接続を許す。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

const articleHTML = `<!DOCTYPE html>
<html><head><title>x</title><style>p{}</style></head>
<body>
  <nav><p>Home | World | Sports</p></nav>
  <article>
    <h1>Headline</h1>
    <p>First   paragraph of the story.</p>
    <script>var p = "<p>not text</p>";</script>
    <p></p>
    <p>Second paragraph with <a href="/x">a link</a>.</p>
  </article>
  <footer><p>Copyright</p></footer>
</body></html>`

func TestExtractText_ArticleParagraphs(t *testing.T) {
	got, err := ExtractText(strings.NewReader(articleHTML))
	if err != nil {
		t.Fatalf("ExtractText() がエラーを返した: %v", err)
	}
	want := "First paragraph of the story.\n\nSecond paragraph with a link."
	if got != want {
		t.Errorf("ExtractText() = %q, want %q", got, want)
	}
}

func TestExtractText_FallsBackToBody(t *testing.T) {
	got, err := ExtractText(strings.NewReader(`<html><body><div><p>Only body text.</p></div></body></html>`))
	if err != nil {
		t.Fatalf("ExtractText() がエラーを返した: %v", err)
	}
	if got != "Only body text." {
		t.Errorf("ExtractText() = %q", got)
	}
}

func TestExtractText_NoParagraphs(t *testing.T) {
	got, err := ExtractText(strings.NewReader(`<html><body><div>no paragraphs</div></body></html>`))
	if err != nil {
		t.Fatalf("ExtractText() がエラーを返した: %v", err)
	}
	if got != "" {
		t.Errorf("ExtractText() = %q, want empty", got)
	}
}

func TestArticleExtractor_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(articleHTML))
		case "/latin1":
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write([]byte("<html><body><p>Caf\xe9 opens</p></body></html>"))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ex := NewArticleExtractor(&mockSSRFGuard{}, 5*time.Second, 1<<20)

	got, err := ex.Extract(context.Background(), server.URL+"/article")
	if err != nil {
		t.Fatalf("Extract() がエラーを返した: %v", err)
	}
	if !strings.HasPrefix(got, "First paragraph") {
		t.Errorf("Extract() = %q", got)
	}

	got, err = ex.Extract(context.Background(), server.URL+"/latin1")
	if err != nil {
		t.Fatalf("Extract() がエラーを返した: %v", err)
	}
	if got != "Café opens" {
		t.Errorf("文字コード変換後の本文 = %q, want %q", got, "Café opens")
	}

	if _, err := ex.Extract(context.Background(), server.URL+"/pdf"); err == nil {
		t.Error("HTML以外のコンテンツでエラーが返らなかった")
	}
	if _, err := ex.Extract(context.Background(), server.URL+"/missing"); err == nil {
		t.Error("404でエラーが返らなかった")
	}
}

func TestArticleExtractor_RejectsBlockedURL(t *testing.T) {
	blocked := errors.New("blocked")
	ex := NewArticleExtractor(&mockSSRFGuard{validateErr: blocked}, time.Second, 1024)

	_, err := ex.Extract(context.Background(), "http://10.0.0.1/a")
	if !errors.Is(err, blocked) {
		t.Errorf("Extract() error = %v, want %v", err, blocked)
	}
}
