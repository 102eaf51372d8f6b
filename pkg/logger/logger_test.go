package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: DebugLevel, Format: "json", Output: &buf}).
		With("component", "consumer")

	l.Error(errors.New("channel closed"), "consumer disconnected", "attempt", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "consumer", entry["component"])
	assert.Equal(t, "channel closed", entry["error"])
	assert.Equal(t, float64(3), entry["attempt"])
	assert.Equal(t, "consumer disconnected", entry["message"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: WarnLevel, Format: "json", Output: &buf})

	l.Debug("dropped")
	l.Info("dropped too")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warn"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}
