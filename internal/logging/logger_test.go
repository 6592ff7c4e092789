package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter("debug", "json", &buf)
	t.Cleanup(func() { SetupWriter("info", "json", &bytes.Buffer{}) })

	WithComponent("dispatch").Info().Str("branch", "today").Msg("handled")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "dispatch", line["component"])
	assert.Equal(t, "today", line["branch"])
	assert.Equal(t, "info", line["level"])
}

func TestSetupLevel(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter("warn", "json", &buf)
	t.Cleanup(func() { SetupWriter("info", "json", &bytes.Buffer{}) })

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	WithComponent("x").Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	SetupWriter("nonsense", "console", &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
