package logutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetLoggerDefaultsToNop(t *testing.T) {
	assert.NotNil(t, GetLogger())
}

func TestSetLoggerIsReturned(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))

	GetLogger().Info("hello", zap.String("cluster", "node1"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "node1", logs.All()[0].ContextMap()["cluster"])
}

func TestSetLevel(t *testing.T) {
	defer func() { _ = SetLevel("info") }()

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	assert.Error(t, SetLevel("loud"))
}
