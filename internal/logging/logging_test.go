package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "info", "json")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("leg", "1").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "1", line["leg"])
	assert.Contains(t, line, "time")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "debug", "console")
	require.NoError(t, err)

	log.Debug().Msg("worker started")
	assert.Contains(t, buf.String(), "worker started")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestEmptyLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "", "json")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestUnknownLevel(t *testing.T) {
	_, err := newLogger(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)
}
