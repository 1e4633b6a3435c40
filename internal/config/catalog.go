package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/rundown/internal/model"
)

// ScriptFormat はオラクルに要求する原稿の2区画フォーマット。
type ScriptFormat string

const (
	// FormatDelimited は区切りトークンでティーザーと本編を分ける。
	FormatDelimited ScriptFormat = "delimiter"
	// FormatLabelled は "TEASE:" と "FULL STORY:" のラベルで分ける。
	FormatLabelled ScriptFormat = "labelled"
)

// Source はフィードの取得元。
type Source struct {
	URL      string         `yaml:"url"`
	Category model.Category `yaml:"category"`
	MaxItems int            `yaml:"max_items"` // 0は無制限
}

// Lane はカテゴリごとの評価・原稿生成の設定。
type Lane struct {
	Category model.Category `yaml:"category"`

	// Filter
	Persona          string   `yaml:"persona"`
	Rubric           string   `yaml:"rubric"`
	SummaryLimit     int      `yaml:"summary_limit"` // プロンプトに埋め込む要約の最大文字数。0なら要約を含めない
	ScoreTemperature float64  `yaml:"score_temperature"`
	ScoreMaxTokens   int      `yaml:"score_max_tokens"`
	BannedPhrases    []string `yaml:"banned_phrases"`

	// Autopilot
	Threshold         int          `yaml:"threshold"`
	ScriptPrompt      string       `yaml:"script_prompt"` // {title} と {summary} を置換する
	ScriptFormat      ScriptFormat `yaml:"script_format"`
	ScriptTemperature float64      `yaml:"script_temperature"`
	FallbackTease     string       `yaml:"fallback_tease"`
	SameDayOnly       bool         `yaml:"same_day_only"`
}

// Catalog はフィードの取得元とレーン設定の集合。
type Catalog struct {
	Sources           []Source `yaml:"sources"`
	Lanes             []Lane   `yaml:"lanes"`
	AggregatorDomains []string `yaml:"aggregator_domains"`
}

// catalogFile はYAMLファイルの読み込み用。
// レーンは既定値の上に部分的に上書きできるようyaml.Nodeで受ける。
type catalogFile struct {
	Sources           []Source    `yaml:"sources"`
	Lanes             []yaml.Node `yaml:"lanes"`
	AggregatorDomains []string    `yaml:"aggregator_domains"`
}

// LoadCatalog は取得元とレーンの設定を読み込む。
// pathが空の場合は既定のカタログを返す。
// ファイルで指定されたレーンは同じカテゴリの既定レーンに対して、記述されたフィールドのみを上書きする。
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	if len(file.Sources) > 0 {
		catalog.Sources = file.Sources
	}
	if len(file.AggregatorDomains) > 0 {
		catalog.AggregatorDomains = file.AggregatorDomains
	}

	for i := range file.Lanes {
		node := &file.Lanes[i]

		var header struct {
			Category model.Category `yaml:"category"`
		}
		if err := node.Decode(&header); err != nil {
			return nil, fmt.Errorf("failed to parse lane in %s: %w", path, err)
		}

		lane, ok := catalog.Lane(header.Category)
		if !ok {
			lane = Lane{Category: header.Category, ScriptFormat: FormatDelimited, Threshold: 8, SummaryLimit: 500}
		}
		if err := node.Decode(&lane); err != nil {
			return nil, fmt.Errorf("failed to parse lane %q in %s: %w", header.Category, path, err)
		}
		catalog.setLane(lane)
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", path, err)
	}

	return catalog, nil
}

// Validate はカタログの整合性を検証する。
func (c *Catalog) Validate() error {
	for _, lane := range c.Lanes {
		if _, err := model.ParseCategory(string(lane.Category)); err != nil {
			return fmt.Errorf("lane: %w", err)
		}
		switch lane.ScriptFormat {
		case FormatDelimited, FormatLabelled:
		default:
			return fmt.Errorf("lane %s: unknown script_format %q", lane.Category, lane.ScriptFormat)
		}
		if lane.Threshold < 1 || lane.Threshold > 10 {
			return fmt.Errorf("lane %s: threshold must be within 1..10: %d", lane.Category, lane.Threshold)
		}
	}
	for _, src := range c.Sources {
		if src.URL == "" {
			return fmt.Errorf("source with empty url")
		}
		if _, ok := c.Lane(src.Category); !ok {
			return fmt.Errorf("source %s: no lane for category %q", src.URL, src.Category)
		}
		if src.MaxItems < 0 {
			return fmt.Errorf("source %s: max_items must not be negative", src.URL)
		}
	}
	return nil
}

// Lane は指定カテゴリのレーンを返す。
func (c *Catalog) Lane(category model.Category) (Lane, bool) {
	for _, lane := range c.Lanes {
		if lane.Category == category {
			return lane, true
		}
	}
	return Lane{}, false
}

// SourcesFor は指定カテゴリの取得元を返す。categoryが空の場合は全件を返す。
func (c *Catalog) SourcesFor(category model.Category) []Source {
	if category == "" {
		return c.Sources
	}
	var out []Source
	for _, src := range c.Sources {
		if src.Category == category {
			out = append(out, src)
		}
	}
	return out
}

func (c *Catalog) setLane(lane Lane) {
	for i := range c.Lanes {
		if c.Lanes[i].Category == lane.Category {
			c.Lanes[i] = lane
			return
		}
	}
	c.Lanes = append(c.Lanes, lane)
}

// SelectLanes はcategoriesに対応するレーンを指定順に返す。categoriesが空の場合は全レーン。
func SelectLanes(lanes []Lane, categories ...model.Category) ([]Lane, error) {
	if len(categories) == 0 {
		return lanes, nil
	}
	out := make([]Lane, 0, len(categories))
	for _, c := range categories {
		found := false
		for _, lane := range lanes {
			if lane.Category == c {
				out = append(out, lane)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no lane configured for category %q", c)
		}
	}
	return out, nil
}
