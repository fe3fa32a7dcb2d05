package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProdLoggerWritesJSONAtInfo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	log := newLogger(EnvProd, &buf)

	log.Debug("hidden")
	log.Info("room created", slog.String("room_id", "ABCD"), Err(errors.New("boom")))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "room created", line["msg"])
	assert.Equal(t, "ABCD", line["room_id"])
	assert.Equal(t, "boom", line["error"])
}

func TestLogLevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	log := newLogger(EnvLocal, &buf)

	log.Info("quiet")
	assert.Zero(t, buf.Len())

	log.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}
