package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestZapLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Output: &buf})
	assert.NoError(t, err)

	logger.Info("token refreshed", Field{"provider", "oura"}, Field{"account", "default"})
	out := buf.String()
	assert.Contains(t, out, "token refreshed")
	assert.Contains(t, out, "oura")
}

func TestZapLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: WarnLevel, Output: &buf})
	assert.NoError(t, err)

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	logger.Warn("sweep skipped")
	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "sweep skipped")
}

func TestErrorFieldAttached(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
	assert.NoError(t, err)

	logger.Error("refresh failed", fmt.Errorf("status 400"))
	assert.Contains(t, buf.String(), "status 400")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
	assert.NoError(t, err)

	logger.WithFields(Field{"component", "scheduler"}).Info("cycle complete")
	assert.Contains(t, buf.String(), "scheduler")
}
