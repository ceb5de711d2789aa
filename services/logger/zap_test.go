package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/forma/core/user"
)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &ZapLogger{zl: zap.New(core)}

	l.Warn("getting form owner",
		errors.New("boom"),
		map[string]interface{}{"form_id": "f1"},
		user.User{ID: "u1", Email: "jane@example.com"},
	)
	l.Info("started")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	warn := entries[0]
	assert.Equal(t, zapcore.WarnLevel, warn.Level)
	assert.Equal(t, "getting form owner", warn.Message)
	ctx := warn.ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "f1", ctx["form_id"])
	assert.Equal(t, "u1", ctx["user_id"])
	assert.Equal(t, "jane@example.com", ctx["user_email"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Empty(t, entries[1].Context)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("debug")
		l.Error("error", errors.New("boom"))
	})
}
