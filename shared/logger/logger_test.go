package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cfg.writer = buf
	l, err := New(&cfg)
	require.NoError(t, err)
	return l, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{level: "debug", want: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", want: []string{"INFO", "WARN", "ERROR"}},
		{level: "warning", want: []string{"WARN", "ERROR"}},
		{level: "error", want: []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, buf := newBuffered(t, Config{Level: tt.level, Format: "json"})

			l.Debug("round opened")
			l.Info("round opened")
			l.Warn("round opened")
			l.Error("round opened")

			var got []string
			for _, entry := range decodeLines(t, buf) {
				got = append(got, entry["level"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSONAttributes(t *testing.T) {
	l, buf := newBuffered(t, Config{Level: "info", Format: "json", EnableSource: true})

	l.Info("assignment created",
		slog.Int64("job_id", 42),
		slog.String("status", "ASSIGNED"),
		slog.Bool("created", true),
	)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	entry := entries[0]

	assert.Equal(t, "assignment created", entry["msg"])
	assert.Equal(t, float64(42), entry["job_id"])
	assert.Equal(t, "ASSIGNED", entry["status"])
	assert.Equal(t, true, entry["created"])
	assert.Contains(t, entry, "time")

	source, ok := entry["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_ConsoleFormat(t *testing.T) {
	l, buf := newBuffered(t, Config{Level: "info", Format: "console"})

	l.Info("reset skipped")

	// tint abbreviates levels
	assert.Contains(t, buf.String(), "INF")
	assert.Contains(t, buf.String(), "reset skipped")
}

func TestNew_ServiceAttribute(t *testing.T) {
	l, buf := newBuffered(t, Config{Level: "info", Format: "json", Service: "counting-worker"})

	l.Info("escalation processed", slog.Int64("job_id", 7))

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "counting-worker", entries[0]["service"])
	assert.Equal(t, float64(7), entries[0]["job_id"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counting.log")

	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("written to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNew_FileOutputUnwritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "counting.log")

	l, err := New(&Config{Output: path})
	require.Error(t, err)
	assert.Nil(t, l)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewDefault(t *testing.T) {
	l := NewDefault()
	require.NotNil(t, l)
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	// case-sensitive, unknown values fall back to info
	assert.Equal(t, slog.LevelInfo, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestLogger_WithGroupAndAttrs(t *testing.T) {
	l, buf := newBuffered(t, Config{Level: "info", Format: "json"})

	l.WithAttrs(slog.String("request_id", "req-1")).
		WithGroup("escalation").
		Info("launched", slog.Int("order", 3))

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0]["request_id"])

	group, ok := entries[0]["escalation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), group["order"])
}
