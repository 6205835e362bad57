package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/olivierlemasle/cloud-init/internal/errors"
)

func TestLoggerLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewLoggerWithWriter(Config{Level: LevelWarn, Format: FormatText}, buf)
	require.NoError(t, err)

	logger.Debugf(context.Background(), "hidden %s", "debug")
	logger.Infof(context.Background(), "hidden info")
	logger.Warnf(context.Background(), "visible warning")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warning")
}

func TestLoggerJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewLoggerWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, buf)
	require.NoError(t, err)

	logger.Infof(context.Background(), "probing %s", "ec2")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "probing ec2", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestLoggerErrorAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewLoggerWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, buf)
	require.NoError(t, err)

	appErr := apperrors.New(apperrors.CodeFetchTimeout, "IMDS did not answer")
	logger.Errorf(context.Background(), appErr, "probe failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, string(apperrors.CodeFetchTimeout), entry["error_code"])
}

func TestLoggerWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewLoggerWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, buf)
	require.NoError(t, err)

	logger.WithFields(map[string]any{"datasource": "nocloud"}).Infof(context.Background(), "seed found")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "nocloud", entry["datasource"])
}

func TestLoggerNilContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewLoggerWithWriter(Config{Level: LevelInfo, Format: FormatText}, buf)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		logger.Infof(nil, "no context available yet") //nolint:staticcheck
	})
	assert.Contains(t, buf.String(), "no context available yet")
}
