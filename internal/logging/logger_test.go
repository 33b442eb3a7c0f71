package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf})

	logger.Info("shun applied", "instance", "edge", "address", "10.6.6.6")

	line := buf.String()
	if !strings.Contains(line, "icebox[") {
		t.Errorf("expected process prefix in %q", line)
	}
	if !strings.Contains(line, "[info] shun applied") {
		t.Errorf("expected level and message in %q", line)
	}
	if !strings.Contains(line, "instance=edge") || !strings.Contains(line, "address=10.6.6.6") {
		t.Errorf("expected key=value attrs in %q", line)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf})

	logger.Debug("before")
	logger.SetLevel(LevelDebug)
	logger.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("debug message should be filtered at info level: %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("debug message missing after SetLevel: %q", out)
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf}).WithComponent("session")

	logger.Info("connected")

	if !strings.Contains(buf.String(), "component=session") {
		t.Errorf("expected component attr in %q", buf.String())
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	logger.Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("unexpected JSON output: %q", out)
	}
}
