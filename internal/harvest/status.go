package harvest

// FeedStatus はフィード1件の取得結果の分類。
type FeedStatus string

const (
	// FeedOK は取得とパースに成功した。
	FeedOK FeedStatus = "ok"
	// FeedBlocked はURLの安全性検証で拒否した。
	FeedBlocked FeedStatus = "blocked"
	// FeedNetworkError は接続失敗やタイムアウト。
	FeedNetworkError FeedStatus = "network_error"
	// FeedGone は恒久的なエラー（404/410/401/403）。
	FeedGone FeedStatus = "gone"
	// FeedThrottled は一時的なエラー（429/5xx）。次回の実行で再取得する。
	FeedThrottled FeedStatus = "throttled"
	// FeedUnexpectedStatus はその他のステータスコード。
	FeedUnexpectedStatus FeedStatus = "unexpected_status"
	// FeedParseError はRSS/Atomとして解釈できなかった。
	FeedParseError FeedStatus = "parse_error"
)

// ClassifyHTTPStatus はフィード取得時のHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) FeedStatus {
	switch {
	case statusCode == 200:
		return FeedOK
	case statusCode == 404 || statusCode == 410:
		return FeedGone
	case statusCode == 401 || statusCode == 403:
		return FeedGone
	case statusCode == 429:
		return FeedThrottled
	case statusCode >= 500:
		return FeedThrottled
	default:
		return FeedUnexpectedStatus
	}
}

// EntryOutcome はエントリ1件の処理結果。
type EntryOutcome string

const (
	EntryInserted  EntryOutcome = "inserted"
	EntryDuplicate EntryOutcome = "duplicate"
	EntryStale     EntryOutcome = "stale"
	EntryInvalid   EntryOutcome = "invalid"
	EntryFailed    EntryOutcome = "failed"
)

// 本文抽出の結果。メトリクスのラベルに使う。
const (
	ExtractionFullText = "full_text"
	ExtractionShort    = "too_short"
	ExtractionFailed   = "failed"
)
