package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  zerolog.Level
	}{
		{"development", "", zerolog.DebugLevel},
		{"production", "", zerolog.InfoLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"staging", "bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			l := NewWithLevel("docvalidation", tt.env, tt.level)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("docvalidation", &buf).
		WithComponent("dispatcher").
		WithBackend("vision_llm").
		WithValidationID("v-1")

	l.Info().Msg("dispatched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "docvalidation", entry["service"])
	assert.Equal(t, "dispatcher", entry["component"])
	assert.Equal(t, "vision_llm", entry["backend"])
	assert.Equal(t, "v-1", entry["validation_id"])
	assert.Equal(t, "dispatched", entry["message"])
}
