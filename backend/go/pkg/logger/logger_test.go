package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"PersonaGen/backend/go/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("persona_service", &buf)

	log.WithError(models.NewErrorInfo(errors.New("disk full"), "store_error")).
		WithField("profile_id", "p1").
		Warn("append failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "append failed", line["message"])
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "persona_service", line["service_name"])
	assert.Equal(t, "p1", line["profile_id"])
	assert.Contains(t, line, "timestamp")

	errField, ok := line["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "disk full", errField["message"])
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithOutput("svc", &buf)
	_ = base.WithField("child", true)

	base.Info("plain")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "child")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}
