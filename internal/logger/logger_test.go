package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	InitWithWriter("debug", &buf)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	buf.Reset()
	log := WithPoller("counted", "alert-container")
	log.Warn().Str("url", "http://localhost/get_alerts").Msg("poll failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "poller", entry["component"])
	assert.Equal(t, "counted", entry["poller"])
	assert.Equal(t, "alert-container", entry["container_id"])
	assert.Equal(t, "poll failed", entry["message"])
}

func TestInitInvalidLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	InitWithWriter("loud", &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	assert.Contains(t, buf.String(), "logger initialized")
}
