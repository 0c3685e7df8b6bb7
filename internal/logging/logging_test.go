package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/procmon/internal/assert"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "procmon", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("poll", "scope", "thread")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, 1, len(lines))

	var rec map[string]any
	assert.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, any("procmon"), rec["service"])
	assert.Equal(t, any("thread"), rec["scope"])
	assert.Equal(t, any("poll"), rec["msg"])
}

func TestSetup_LogFileEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.log")
	t.Setenv(logFileEnvVar, path)

	logger, closeFn, got, err := Setup("procmon", slog.LevelDebug)
	assert.NoError(t, err)
	assert.Equal(t, path, got)
	logger.Debug("written")
	assert.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written"), "log file missing record: %s", data)
}

func TestSetup_LogDirEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(logFileEnvVar, "")
	t.Setenv(logDirEnvVar, dir)

	_, closeFn, got, err := Setup("procmon", slog.LevelInfo)
	assert.NoError(t, err)
	defer closeFn()
	assert.Equal(t, filepath.Join(dir, logFileName), got)
}
