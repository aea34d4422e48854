package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		currentLevel = LevelInfo
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel("WARN")

	Debug("debug line")
	Info("info line")
	Warn("warn line")
	Error("error line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "[WARN] warn line")
	assert.Contains(t, out, "[ERROR] error line")
}

func TestSetLevel_IgnoresUnknown(t *testing.T) {
	buf := capture(t)
	SetLevel("ERROR")
	SetLevel("VERBOSE")

	Error("still here")
	Warn("filtered")

	assert.Contains(t, buf.String(), "still here")
	assert.NotContains(t, buf.String(), "filtered")
}

func TestFormatting(t *testing.T) {
	buf := capture(t)
	SetLevel("INFO")

	Info("count=%d name=%s", 7, "a.txt")

	assert.Contains(t, buf.String(), "count=7 name=a.txt")
}
