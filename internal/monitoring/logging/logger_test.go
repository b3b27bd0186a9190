package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Defaults(t *testing.T) {
	l, err := NewLogger(Config{})
	assert.NoError(t, err)
	assert.NotNil(t, l)
}

func TestZapLogger_EmitsFields(t *testing.T) {
	core, logs := observer.New(zapcore.Level(0)) // capture everything
	l := NewLoggerFromCore(core)

	l.Info("fetched page",
		String("humId", "hum0001"),
		Int("attempt", 2),
		Bool("cacheHit", false),
		Duration("elapsed", 120*time.Millisecond))

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "fetched page", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "hum0001", ctx["humId"])
	assert.Equal(t, int64(2), ctx["attempt"])
	assert.Equal(t, false, ctx["cacheHit"])
}

func TestWith_DoesNotMutateParent(t *testing.T) {
	core, logs := observer.New(zapcore.Level(0))
	parent := NewLoggerFromCore(core)
	child := parent.With(String("stage", "normalize"))

	parent.Info("parent entry")
	child.Info("child entry")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "stage")
	assert.Equal(t, "normalize", entries[1].ContextMap()["stage"])
}

func TestErrField(t *testing.T) {
	assert.Equal(t, "<nil>", Err(nil).Value)
	assert.Equal(t, "boom", Err(errors.New("boom")).Value)
}

func TestNopLogger_IsSilentAndChainable(t *testing.T) {
	l := NewNopLogger()
	l.Info("ignored")
	assert.NotNil(t, l.With(String("k", "v")).Named("x"))
}
