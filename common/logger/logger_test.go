package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestConvertFields(t *testing.T) {
	fields := convertFields("user_id", "u-1", "error", errors.New("boom"), 42, "x", "dangling")

	assert.Len(t, fields, 3)
	assert.Equal(t, "user_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
	assert.Equal(t, zapcore.ErrorType, fields[1].Type)
	assert.Equal(t, "42", fields[2].Key)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNewWritesRotatedFile(t *testing.T) {
	log := New(Config{Level: "debug", ServiceName: "test", File: t.TempDir() + "/scoreboard.log"})
	log.With("component", "test").Info("hello", "n", 1)
	_ = log.Sync()
}
