// Package oracle は外部のテキスト生成API（OpenAI互換のchat completions）を呼び出す。
// スコアリングと原稿生成の両方が同じ Oracle インターフェースを使う。
package oracle

import (
	"context"
	"errors"
)

// 失敗の種類を表すセンチネルエラー。呼び出し側は errors.Is でフォールバック方針を選ぶ。
var (
	// ErrTimeout はリクエストがタイムアウトした（408/504を含む）。
	ErrTimeout = errors.New("oracle timeout")
	// ErrRateLimited はレート制限またはクォータ超過（429）。
	ErrRateLimited = errors.New("oracle rate limited")
	// ErrMalformedResponse は応答を解釈できない、または本文が空。
	ErrMalformedResponse = errors.New("oracle malformed response")
	// ErrNetworkUnavailable は接続失敗や5xx。
	ErrNetworkUnavailable = errors.New("oracle network unavailable")
	// ErrRejected は再試行しても成功しないAPIエラー（401や400など）。
	ErrRejected = errors.New("oracle rejected request")
)

// 失敗種別のラベル。ログとメトリクスのラベル値に使う。
const (
	KindTimeout            = "timeout"
	KindRateLimited        = "rate_limited"
	KindMalformedResponse  = "malformed_response"
	KindNetworkUnavailable = "network_unavailable"
	KindRejected           = "rejected"
	KindCanceled           = "canceled"
	KindUnknown            = "unknown"
)

// KindOf はエラーの種別ラベルを返す。errがnilの場合は空文字列。
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrNetworkUnavailable):
		return KindNetworkUnavailable
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnknown
	}
}
