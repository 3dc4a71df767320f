package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	closeFn, err := Init(Options{Level: "warn", Console: &buf})
	require.NoError(t, err)
	defer closeFn()

	Info().Msg("hidden message")
	Warn().Str("subscription_id", "s1").Msg("visible message")

	assert.NotContains(t, buf.String(), "hidden message")
	assert.Contains(t, buf.String(), "visible message")
	assert.Contains(t, buf.String(), "s1")
}

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	closeFn, err := Init(Options{Level: "DEBUG", File: path, Console: &bytes.Buffer{}})
	require.NoError(t, err)

	l := WithField("user_id", 42)
	l.Debug().Msg("to file")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, string(data), `"user_id":42`)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, err := Init(Options{Level: "verbose"})
	assert.Error(t, err)
}
