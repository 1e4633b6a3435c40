package script

import (
	"strings"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/model"
)

const delimitedContract = `DELIMITER: Write exactly '###' on its own line between the tease and the full story. Do not use '###' anywhere else.

FORMAT:
[Tease here]
###
[Full story here]`

const labelledContract = `FORMAT:
TEASE: [The Hook, brief summary, with a 'find out, next' style ending]
FULL STORY: [The Dish, all details, funny, interesting]`

// BuildPrompt はレーンの原稿プロンプトに {title} と {summary} を埋め込み、
// レーンの形式に応じた出力フォーマットの指示を付加する。
func BuildPrompt(lane config.Lane, story model.SelectedStory) string {
	r := strings.NewReplacer("{title}", story.Title, "{summary}", story.Summary)
	body := strings.TrimSpace(r.Replace(lane.ScriptPrompt))

	contract := delimitedContract
	if lane.ScriptFormat == config.FormatLabelled {
		contract = labelledContract
	}
	return body + "\n\n" + contract
}
