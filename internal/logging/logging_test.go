package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Config{Level: "info"})
	l.Debug("hidden")
	l.Info("tool_exec", "tool", "ping_host")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "tool_exec", rec["msg"])
	assert.Equal(t, "ping_host", rec["tool"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Config{Format: "text"}).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello k=v")
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "netcraft.log")
	l, closer, err := NewLogger(Config{File: path})
	require.NoError(t, err)
	l.Info("written")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written"`)
}
