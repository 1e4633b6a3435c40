package scoring

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/model"
	"github.com/hitoshi/rundown/internal/security"
)

// スコアの範囲。解釈できない応答にはMinScoreを記録する。
const (
	MinScore = 1
	MaxScore = 10
)

// BuildPrompt はレーンのペルソナと評価基準にタイトルと要約を埋め込んだプロンプトを返す。
// 要約はレーンのSummaryLimit文字で切り詰め、0の場合は含めない。
func BuildPrompt(lane config.Lane, story model.Story) string {
	var b strings.Builder
	b.WriteString("Category: ")
	b.WriteString(lane.Persona)
	b.WriteString("\nTitle: ")
	b.WriteString(story.Title)
	if lane.SummaryLimit > 0 {
		b.WriteString("\nSummary: ")
		b.WriteString(security.Truncate(story.Summary, lane.SummaryLimit))
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(lane.Rubric))
	b.WriteString("\n\nReturn ONLY the number.")
	return b.String()
}

// ParseScore は応答中の最初の連続した数字をスコアとして解釈し、MinScore..MaxScoreに丸める。
// 数字が含まれない場合はMinScoreとfalseを返す。
func ParseScore(response string) (int, bool) {
	start := strings.IndexFunc(response, isASCIIDigit)
	if start < 0 {
		return MinScore, false
	}
	end := start
	for end < len(response) && isASCIIDigit(rune(response[end])) {
		end++
	}
	n, err := strconv.Atoi(response[start:end])
	if err != nil {
		// 桁あふれ
		return MaxScore, true
	}
	switch {
	case n < MinScore:
		return MinScore, true
	case n > MaxScore:
		return MaxScore, true
	}
	return n, true
}

func isASCIIDigit(r rune) bool {
	return r < unicode.MaxASCII && unicode.IsDigit(r)
}

// MatchBannedPhrase はタイトルに禁止フレーズが含まれるかを大文字小文字を区別せずに判定し、
// 最初に一致したフレーズを返す。
func MatchBannedPhrase(title string, phrases []string) (string, bool) {
	if len(phrases) == 0 {
		return "", false
	}
	fold := cases.Fold()
	folded := fold.String(title)
	for _, phrase := range phrases {
		p := strings.TrimSpace(phrase)
		if p == "" {
			continue
		}
		if strings.Contains(folded, fold.String(p)) {
			return phrase, true
		}
	}
	return "", false
}
