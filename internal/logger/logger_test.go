package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn", "text")

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below warn leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug", "json")

	Info("loaded %d profiles", 12)

	var line struct {
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line.Level != "info" || line.Msg != "loaded 12 profiles" {
		t.Errorf("unexpected line %+v", line)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"warn":  WarnLevel,
		"error": ErrorLevel,
		"bogus": InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", in, got, want)
		}
	}
}

func TestFatalLabel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "error", "text")

	output(FatalLevel, "cannot start: %s", "no profiles")

	out := buf.String()
	if !strings.Contains(out, "[FATAL] cannot start: no profiles") {
		t.Errorf("missing fatal line: %q", out)
	}
	if strings.Contains(out, "[ERROR]") {
		t.Errorf("fatal line carries an error label: %q", out)
	}
	if FatalLevel.String() != "FATAL" {
		t.Errorf("FatalLevel.String() = %s", FatalLevel.String())
	}
}
