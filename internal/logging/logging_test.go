package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-packedserial/internal/config"
	"github.com/arloliu/go-packedserial/logger"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	l.Debug("hidden")
	l.With("board", "ttyUSB0").Info("board added", "baudRate", 115200)
	require.NoError(t, closer.Close())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "board added", entry["msg"])
	assert.Equal(t, "ttyUSB0", entry["board"])
	assert.InDelta(t, 115200, entry["baudRate"], 0)
	assert.Contains(t, entry["caller"], "logging_test.go")
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.LoggingConfig{Level: "WARN"}, &buf)
	defer closer.Close()

	assert.Equal(t, logger.WarnLevel, l.Level())
	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(logger.DebugLevel)
	l.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")

	var buf bytes.Buffer
	l, closer := NewWithWriter(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		File:   config.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	}, &buf)

	l.Info("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestNew_Stdout(t *testing.T) {
	l, closer := New(config.LoggingConfig{Level: "error"})

	assert.Equal(t, logger.ErrorLevel, l.Level())
	l.Info("hidden")
	require.NoError(t, closer.Close())
}
