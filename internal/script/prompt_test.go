package script

import (
	"strings"
	"testing"

	"github.com/hitoshi/rundown/internal/config"
	"github.com/hitoshi/rundown/internal/model"
)

func TestBuildPrompt_SubstitutesPlaceholders(t *testing.T) {
	lane := config.Lane{ScriptPrompt: "STORY: {title}\nDETAILS: {summary}\n", ScriptFormat: config.FormatDelimited}
	story := model.SelectedStory{Title: "Local bakery wins award", Summary: "The bakery in Burlington won."}

	got := BuildPrompt(lane, story)

	for _, want := range []string{
		"STORY: Local bakery wins award",
		"DETAILS: The bakery in Burlington won.",
		"[Tease here]\n###\n[Full story here]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("プロンプトに %q が含まれない:\n%s", want, got)
		}
	}
	if strings.Contains(got, "{title}") || strings.Contains(got, "{summary}") {
		t.Errorf("プレースホルダが残っている:\n%s", got)
	}
}

func TestBuildPrompt_LabelledContract(t *testing.T) {
	got := BuildPrompt(celebLane(), model.SelectedStory{Title: "Star splits", Summary: "details"})

	if !strings.Contains(got, "TEASE: [") || !strings.Contains(got, "FULL STORY: [") {
		t.Errorf("ラベル形式の指示が含まれない:\n%s", got)
	}
	if strings.Contains(got, "###") {
		t.Errorf("ラベル形式に区切りトークンの指示が含まれている:\n%s", got)
	}
}

func TestBuildPrompt_DefaultLanesKeepFactualityRule(t *testing.T) {
	for _, lane := range config.DefaultCatalog().Lanes {
		got := BuildPrompt(lane, model.SelectedStory{Title: "t", Summary: "s"})
		if !strings.Contains(got, "Do not invent facts") {
			t.Errorf("%s のプロンプトに事実性の指示がない", lane.Category)
		}
	}
}
