package logging

import (
	"bytes"
	"os"
	"testing"

	logger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logger.InfoLevel)
		logger.SetFormatter(&logger.TextFormatter{})
	})

	var buf bytes.Buffer
	require.NoError(t, Configure("debug", "auto", &buf))

	assert.Equal(t, logger.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logger.JSONFormatter{}, logger.StandardLogger().Formatter, "non-terminal output logs JSON")

	logger.WithField("vault", "/tmp/v").Debug("hello")
	assert.Contains(t, buf.String(), `"vault":"/tmp/v"`)
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Configure("loud", "text", &bytes.Buffer{}))
}

func TestFormatterSelection(t *testing.T) {
	assert.IsType(t, &logger.TextFormatter{}, formatter("auto", true))
	assert.IsType(t, &logger.TextFormatter{}, formatter("text", false))
	assert.IsType(t, &logger.JSONFormatter{}, formatter("json", true))
	assert.IsType(t, &logger.JSONFormatter{}, formatter("auto", false))
}
