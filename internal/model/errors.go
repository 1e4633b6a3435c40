package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, story, oracle, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeStoryNotFound   = "STORY_NOT_FOUND"
	ErrCodeScriptNotFound  = "SCRIPT_NOT_FOUND"
	ErrCodeInvalidDate     = "INVALID_DATE"
	ErrCodeInvalidCategory = "INVALID_CATEGORY"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeOracleFailed    = "ORACLE_FAILED"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewStoryNotFoundError はストーリー未検出エラーを生成する。
func NewStoryNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeStoryNotFound,
		Message:  fmt.Sprintf("指定されたストーリーが見つかりません: %s", id),
		Category: "story",
		Action:   "ストーリーIDを確認してください。保持期間を過ぎたストーリーは削除されています。",
	}
}

// NewScriptNotFoundError は原稿未検出エラーを生成する。
func NewScriptNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeScriptNotFound,
		Message:  fmt.Sprintf("指定された原稿が見つかりません: %s", id),
		Category: "story",
		Action:   "先に原稿を生成してください。",
	}
}

// NewInvalidDateError は無効な日付エラーを生成する。
func NewInvalidDateError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", date),
		Category: "validation",
		Action:   "日付は YYYY-MM-DD 形式で指定してください。",
	}
}

// NewInvalidCategoryError は無効なカテゴリエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: "validation",
		Action:   "カテゴリには general、celeb のいずれかを指定してください。",
	}
}

// NewInvalidRequestError は不正なリクエストボディのエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストボディを確認してください。",
	}
}

// NewOracleFailedError は原稿生成の失敗エラーを生成する。
func NewOracleFailedError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeOracleFailed,
		Message:  fmt.Sprintf("原稿の生成に失敗しました（%s）。", kind),
		Category: "oracle",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒ほど待ってから再度お試しください。", retryAfterSec),
	}
}

// NewInternalError は詳細を伏せた内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。解決しない場合はrequest_idを添えて連絡してください。",
	}
}
