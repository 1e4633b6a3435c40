package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSONとして読めない: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestSetup_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf).Warn("harvest source failed",
		slog.String("run_id", "r-1"),
		slog.String("category", "celeb"),
		slog.Int("http_status", 503),
	)

	entry := decode(t, &buf)
	want := map[string]any{
		"msg":         "harvest source failed",
		"level":       "WARN",
		"run_id":      "r-1",
		"category":    "celeb",
		"http_status": float64(503),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["time"]; !ok {
		t.Error("timeフィールドがない")
	}
}

func TestSetupWithLevel_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWithLevel(&buf, slog.LevelWarn)

	l.Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("INFOログが出力された: %s", buf.String())
	}
	l.Error("kept")
	if decode(t, &buf)["msg"] != "kept" {
		t.Error("ERRORログが出力されなかった")
	}
}

func TestSetupDefault_ReplacesGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	returned := SetupDefault(&buf, slog.LevelDebug)
	slog.Debug("filter verdict", slog.Int("score", 8))

	if slog.Default() != returned {
		t.Error("返り値がグローバルロガーと一致しない")
	}
	entry := decode(t, &buf)
	if entry["msg"] != "filter verdict" || entry["score"] != float64(8) {
		t.Errorf("entry = %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
