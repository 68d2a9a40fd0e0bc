package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestCaptureFiles(t *testing.T) {
	dir := t.TempDir()
	c := Capture{Dir: filepath.Join(dir, "logs")}

	out, errf, err := c.Files("memory")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	defer func() {
		_ = out.Close()
		_ = errf.Close()
	}()

	if _, err := out.WriteString("hello stdout\n"); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errf.WriteString("hello stderr\n"); err != nil {
		t.Fatalf("write stderr: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "logs", "memory.stdout.log"))
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	if string(b) != "hello stdout\n" {
		t.Fatalf("stdout capture = %q", b)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "memory.stderr.log")); err != nil {
		t.Fatalf("stderr capture missing: %v", err)
	}
}

func TestCaptureFilesAppend(t *testing.T) {
	dir := t.TempDir()
	c := Capture{Dir: dir}

	for i := 0; i < 2; i++ {
		out, errf, err := c.Files("srv")
		if err != nil {
			t.Fatalf("Files: %v", err)
		}
		if _, err := out.WriteString("line\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = out.Close()
		_ = errf.Close()
	}

	b, err := os.ReadFile(filepath.Join(dir, "srv.stdout.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(b), "line"); got != 2 {
		t.Fatalf("expected appended writes, got %d lines: %q", got, b)
	}
}

func TestCaptureDisabled(t *testing.T) {
	out, errf, err := Capture{}.Files("srv")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if out != nil || errf != nil {
		t.Fatal("expected nil files when capture dir is unset")
	}
}

func TestRotationDefaults(t *testing.T) {
	w := Rotation{Dir: "/tmp/x"}.Writer()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("Writer returned %T, want *lumberjack.Logger", w)
	}
	if l.Filename != filepath.Join("/tmp/x", "mcpman.log") {
		t.Fatalf("Filename = %q", l.Filename)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
}

func TestRotationOverrides(t *testing.T) {
	w := Rotation{Dir: "/tmp/x", MaxSizeMB: 50, MaxBackups: 9, MaxAgeDays: 30, Compress: true}.Writer()
	l := w.(*lj.Logger)
	if l.MaxSize != 50 || l.MaxBackups != 9 || l.MaxAge != 30 || !l.Compress {
		t.Fatalf("overrides not applied: %+v", l)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
		{" DEBUG ", slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info("should be filtered")
	log.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Fatalf("info record not filtered: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestColorTextHandlerColorsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")
	log.Error("boom")
	if !strings.Contains(buf.String(), "\033[31m") {
		t.Fatalf("expected red escape code in %q", buf.String())
	}
}
