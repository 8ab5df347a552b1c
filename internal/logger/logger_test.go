package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level  string
		expect zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expect, ParseLevel(tt.level))
		})
	}
}

func TestSetupSetsGlobalLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Setup("error", "json")
	require.NotNil(t, Log)
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")

	l.Info("run complete", "worker", 2, "elapsed", 1500*time.Microsecond, "orphan")

	m := decodeLine(t, &buf)
	assert.Equal(t, "run complete", m["message"])
	assert.Equal(t, "info", m["level"])
	assert.EqualValues(t, 2, m["worker"])
	assert.Contains(t, m, "elapsed")
	assert.NotContains(t, m, "orphan")
}

func TestErrorAttachesLeadingError(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")

	l.Error("wait failed", errors.New("device fault"), "run", 7)

	m := decodeLine(t, &buf)
	assert.Equal(t, "device fault", m["error"])
	assert.EqualValues(t, 7, m["run"])
}

func TestWarnAttachesLeadingError(t *testing.T) {
	tests := []struct {
		name string
		args []interface{}
		want map[string]interface{}
	}{
		{"error with fields", []interface{}{errors.New("dial failed"), "addr", "127.0.0.1:1"},
			map[string]interface{}{"error": "dial failed", "addr": "127.0.0.1:1"}},
		{"error only", []interface{}{errors.New("shutdown timed out")},
			map[string]interface{}{"error": "shutdown timed out"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf, "json").Warn("export", tt.args...)

			m := decodeLine(t, &buf)
			assert.Equal(t, "warn", m["level"])
			for k, v := range tt.want {
				assert.Equal(t, v, m[k])
			}
			assert.NotContains(t, m, "dial failed")
		})
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json").With("session", "abc", 42, "answer")

	l.Warn("slow sync")

	m := decodeLine(t, &buf)
	assert.Equal(t, "abc", m["session"])
	assert.Equal(t, "answer", m["42"])
}

func TestConsoleFormatDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "console")
	l.Debug("debug", "key", nil)
	l.Info("info")
	assert.NotPanics(t, func() { l.Warn("warn", 123, "value") })
}
