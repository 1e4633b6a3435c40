package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hitoshi/rundown/internal/harvest"
	"github.com/hitoshi/rundown/internal/scoring"
	"github.com/hitoshi/rundown/internal/script"
	"github.com/hitoshi/rundown/internal/worker/cleanup"
	"github.com/hitoshi/rundown/internal/worker/pipeline"
)

// renderTable は先頭列を左寄せ、残りを右寄せにした表を返す。
func renderTable(title string, headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(title)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignRight
		if i == 0 {
			align = text.AlignLeft
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// renderHarvestReport は取得元ごとの収集結果を表にする。
func renderHarvestReport(r harvest.Report) string {
	rows := make([][]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		rows = append(rows, []string{
			s.URL,
			string(s.Category),
			string(s.Status),
			itoa(s.Entries),
			itoa(s.Inserted),
			itoa(s.Duplicates),
			itoa(s.Stale),
			itoa(s.Invalid + s.Failed),
		})
	}
	return renderTable(
		fmt.Sprintf("Harvest: %d inserted, %d failed sources", r.Inserted(), r.FailedSources()),
		[]string{"Source", "Lane", "Status", "Entries", "New", "Dup", "Stale", "Errors"},
		rows,
	)
}

// renderFilterReport はレーンごとの採点結果を表にする。
func renderFilterReport(r scoring.Report) string {
	rows := make([][]string, 0, len(r.Lanes))
	for _, l := range r.Lanes {
		rows = append(rows, []string{
			string(l.Category),
			itoa(l.Candidates),
			itoa(l.Scored),
			itoa(l.Fallbacks),
			itoa(l.Rejected),
			itoa(l.Skipped),
			itoa(l.Failed),
		})
	}
	return renderTable(
		fmt.Sprintf("Filter: %d scored", r.Scored()),
		[]string{"Lane", "Candidates", "Scored", "Fallback", "Rejected", "Skipped", "Failed"},
		rows,
	)
}

// renderAutopilotReport はレーンごとの原稿生成結果を表にする。
func renderAutopilotReport(r script.Report) string {
	rows := make([][]string, 0, len(r.Lanes))
	for _, l := range r.Lanes {
		rows = append(rows, []string{
			string(l.Category),
			itoa(l.Candidates),
			itoa(l.Written),
			itoa(l.Degraded),
			itoa(l.Skipped),
			itoa(l.Failed),
		})
	}
	return renderTable(
		fmt.Sprintf("Autopilot: %d of %d written", r.Written(), r.Candidates()),
		[]string{"Lane", "Candidates", "Written", "Degraded", "Skipped", "Failed"},
		rows,
	)
}

// renderCleanupResult はテーブルごとの削除件数を表にする。
func renderCleanupResult(r cleanup.Result) string {
	vacuum := "no"
	if r.Vacuumed {
		vacuum = "yes"
	}
	return renderTable(
		fmt.Sprintf("Cleanup: cutoff %s, vacuum %s", r.Cutoff, vacuum),
		[]string{"Table", "Deleted"},
		[][]string{
			{"stories", strconv.FormatInt(r.Stories, 10)},
			{"selected_stories", strconv.FormatInt(r.Selected, 10)},
			{"radio_scripts", strconv.FormatInt(r.Scripts, 10)},
		},
	)
}

// renderPipelineReport は3ステージの結果をまとめて返す。
func renderPipelineReport(r pipeline.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	b.WriteString(renderHarvestReport(r.Harvest))
	b.WriteString("\n")
	b.WriteString(renderFilterReport(r.Filter))
	b.WriteString("\n")
	b.WriteString(renderAutopilotReport(r.Autopilot))
	return b.String()
}
