package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONFormatCarriesService(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "hqa-api", "info", "json").Info("corpus_build_finished", "chunks", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "hqa-api" || entry["msg"] != "corpus_build_finished" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewTextFormatHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "qactl", "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown") {
		t.Fatalf("unexpected text output %q", out)
	}
}
