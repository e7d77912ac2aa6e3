//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"ai-answering-machine/internal/config"
)

func TestWith_AttachesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)

	ctx := WithTaskID(WithTraceID(context.Background(), "tr-1"), "task-9")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if line["trace_id"] != "tr-1" || line["task_id"] != "task-9" {
		t.Fatalf("ids missing: %v", line)
	}
	if TraceID(ctx) != "tr-1" {
		t.Errorf("TraceID: got %q", TraceID(ctx))
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Level: "warn", Format: "json"}, false, &buf)
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	l.Warn().Msg("kept")
	if buf.Len() == 0 {
		t.Fatal("warn should be written")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("sk-1234567890", false); got != "sk-1...90" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("short secrets should be masked, got %q", got)
	}
	if got := Redact("sk-1234567890", true); got != "sk-1234567890" {
		t.Errorf("dev mode should not redact, got %q", got)
	}
}

func TestTraceDuration(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(config.LogConfig{Level: "trace", Format: "json"}, false, &buf)

	done := TraceDuration(l, "AnswerUC.Generate")
	done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want start and finish lines, got %q", buf.String())
	}
	var finish map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &finish); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if finish["method"] != "AnswerUC.Generate" || finish["message"] != "finish" {
		t.Errorf("unexpected finish line: %v", finish)
	}
	if _, ok := finish["duration"]; !ok {
		t.Error("duration missing")
	}

	buf.Reset()
	quiet := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, false, &buf)
	TraceDuration(quiet, "x")()
	if buf.Len() != 0 {
		t.Errorf("trace lines should be filtered at info: %s", buf.String())
	}
}
