package logging

import (
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("api-gateway", "debug", "json")
	assert.NoError(t, err)
	check.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("api-gateway", "WARN", "console")
	assert.NoError(t, err)
	check.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	check.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = New("api-gateway", "loud", "json")
	check.Error(t, err)
}
