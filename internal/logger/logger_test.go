package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelsUseSeparateWriters(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewWithWriters(&out, &errOut)

	l.Info("loaded %s", "my_model")
	l.Warning("slow inference: %dms", 120)
	l.Error("inference failed: %v", "boom")

	if !strings.Contains(out.String(), "[ Info ] ") || !strings.Contains(out.String(), "loaded my_model") {
		t.Fatalf("info entry missing: %q", out.String())
	}
	if !strings.Contains(out.String(), "[ Warn ] ") {
		t.Fatalf("warning entry missing: %q", out.String())
	}
	if strings.Contains(out.String(), "boom") {
		t.Fatalf("error entry leaked to stdout writer")
	}
	if !strings.Contains(errOut.String(), "[ Error ] ") || !strings.Contains(errOut.String(), "logger_test.go") {
		t.Fatalf("error entry should carry prefix and caller file: %q", errOut.String())
	}
}

func TestNewWritesLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Error("model load failed")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "error.log"))
	if err != nil {
		t.Fatalf("read error.log: %v", err)
	}
	if !strings.Contains(string(data), "model load failed") {
		t.Fatalf("error.log missing entry: %q", data)
	}
	for _, name := range []string{"info.log", "warning.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}
