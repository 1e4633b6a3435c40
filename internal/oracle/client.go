package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL はOpenAI APIのルート。chat/completionsはSDKが付ける。
	DefaultBaseURL = "https://api.openai.com/v1/"
	// DefaultModel は既定のモデル名。
	DefaultModel = "gpt-4o-mini"

	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// Oracle はプロンプトを1回評価してテキストを返す。
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request は1回の呼び出しのパラメータ。
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int // 0は上限なし
}

// Recorder は呼び出し結果を記録する。kindは成功時に空文字列。
type Recorder interface {
	ObserveOracleCall(kind string, elapsed time.Duration)
}

// Config はAPI接続設定。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client はopenai-goのchat completionsを使うOracleの実装。
// SDK側の再試行は切り、失敗種別に応じた再試行はこちらで行う。
type Client struct {
	cfg         Config
	httpClient  *http.Client
	completions openai.ChatCompletionService
	recorder    Recorder

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithHTTPClient は既定のHTTPクライアントを差し替える。
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts は1回の呼び出しあたりの最大試行回数を設定する（既定は1で再試行しない）。
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff は再試行の待ち時間を設定する。
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper は再試行の待機処理を差し替える。テスト用。
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithRecorder は呼び出しごとの結果と所要時間の記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// NewClient はClientを生成する。
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimSpace(cfg.BaseURL),
			Model:   strings.TrimSpace(cfg.Model),
			Timeout: timeout,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: 1,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = DefaultBaseURL
	}
	if c.cfg.Model == "" {
		c.cfg.Model = DefaultModel
	}

	sdk := openai.NewClient(
		option.WithAPIKey(c.cfg.APIKey),
		option.WithBaseURL(c.cfg.BaseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	c.completions = sdk.Chat.Completions
	return c
}

// statusError はAPIのエラー応答から再試行に必要な情報だけを残したもの。
type statusError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, snippet(e.Message))
}

// Complete はプロンプトをuserメッセージとして送信し、応答本文をトリムして返す。
// 失敗時のエラーはいずれかのセンチネルエラー（またはcontextのエラー）をラップする。
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	content, err := c.complete(ctx, req)
	if c.recorder != nil {
		c.recorder.ObserveOracleCall(KindOf(err), time.Since(start))
	}
	return content, err
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrRejected)
	}
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: api key required", ErrRejected)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.Model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	attempts := c.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.sendOnce(ctx, params)
		if err == nil {
			return content, nil
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("oracle retry: %w", err)
		}
	}
	return "", lastErr
}

func (c *Client) sendOnce(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	completion, err := c.completions.New(ctx, params)
	if err != nil {
		return "", c.classify(ctx, err)
	}

	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}
	choice := completion.Choices[0]
	return "", fmt.Errorf("%w: empty content (finish_reason=%q, refusal=%q)",
		ErrMalformedResponse, choice.FinishReason, choice.Message.Refusal)
}

// classify はSDKのエラーを失敗種別に振り分ける。
// APIのエラー応答はステータスで、送受信の失敗はclassifyTransportErrorで判定し、
// それ以外(200応答の本文が解釈できない場合)は不正な応答とする。
func (c *Client) classify(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		statusErr := &statusError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		if apiErr.Response != nil {
			statusErr.RetryAfter, _ = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return fmt.Errorf("%w: %w", classifyStatus(apiErr.StatusCode), statusErr)
	}

	var urlErr *url.Error
	if ctx.Err() != nil || errors.As(err, &urlErr) {
		return classifyTransportError(ctx, err, c.httpClient.Timeout)
	}
	return fmt.Errorf("%w: decode response: %w", ErrMalformedResponse, err)
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= http.StatusInternalServerError:
		return ErrNetworkUnavailable
	default:
		return ErrRejected
	}
}

// classifyTransportError はHTTPクライアントのエラーを種別に振り分ける。
// 呼び出し元のcontextがキャンセルされた場合はセンチネルで包まずにcontextのエラーを返す。
func classifyTransportError(ctx context.Context, err error, timeout time.Duration) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrTimeout, ctxErr)
		}
		return fmt.Errorf("oracle request: %w", ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: no response within %s: %w", ErrTimeout, timeout, err)
	}
	return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || ctx.Err() != nil {
		return 0, false
	}
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTimeout), errors.Is(err, ErrNetworkUnavailable):
	default:
		return 0, false
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return c.capDelay(statusErr.RetryAfter), true
	}
	return c.backoffDelay(attempt), true
}

// backoffDelay は試行回数に応じて base, base*2, base*4 ... と増やす。
func (c *Client) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			delay = c.retryMaxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func snippet(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if r := []rune(clean); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return clean
}
