package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestWriterLoggerFiltersLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("physics", &buf, WARN)

	l.Info("скрыто")
	l.Warn("видно %d", 42)

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[WARN] [physics] видно 42")

	l.SetLevels(TRACE, ERROR)
	l.Trace("трасса")
	assert.Contains(t, buf.String(), "трасса")
}

func TestManagerReturnsSameLogger(t *testing.T) {
	lm := GetLoggerManager()
	a := lm.MustGetLogger("test-component")
	b := lm.MustGetLogger("test-component")
	assert.Same(t, a, b)
	assert.Contains(t, lm.ListComponents(), "test-component")

	require.NoError(t, lm.SetLogLevel("test-component", ERROR, ERROR))
	assert.False(t, a.Enabled(INFO))
	assert.Error(t, lm.SetLogLevel("missing-component", INFO, INFO))
}
