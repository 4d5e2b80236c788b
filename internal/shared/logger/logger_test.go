package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statscrape/internal/shared/types"
)

func TestWithComponent_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(types.LogConf{Level: "info", JSON: true}, &buf))

	l := WithComponent("Fetch")
	l.Info().Str("url", "https://stats.example.test/").Msg("Requesting URL.")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1) // the debug init line is filtered at info
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Fetch", entry["component"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "https://stats.example.test/", entry["url"])
	assert.Contains(t, entry, "time")
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(types.LogConf{Level: "chatty", JSON: true}, &buf))
	l := WithComponent("Config")
	l.Debug().Msg("hidden")
	l.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
