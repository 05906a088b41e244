package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewZapLogger(zap.New(core)), logs
}

// TestZapLogger_Fields verifies fields reach zap with errors kept as errors
func TestZapLogger_Fields(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Debug("debug", F("n", 1))
	logger.Info("info")
	logger.Warn("warn", F("error", errActionFailed))
	logger.Error("error", F("pump", "p1"))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)

	ctx := entries[2].ContextMap()
	assert.Equal(t, errActionFailed.Error(), ctx["error"])
	assert.Equal(t, "p1", entries[3].ContextMap()["pump"])
}

// TestZapLogger_NilFallsBackToNop verifies a nil zap logger is safe
func TestZapLogger_NilFallsBackToNop(t *testing.T) {
	logger := NewZapLogger(nil)
	require.NotNil(t, logger.Zap())
	logger.Info("discarded")
}

// TestLoggingFaultHandler verifies faults are logged with their identity
// Given: A pump whose default fault handler logs to an observed core
// When: A fire-and-forget item panics
// Then: One error entry names the pump, the item kind and carries the stack
func TestLoggingFaultHandler(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.InfoLevel)
	p := newTestPump(t, newFakeBackend(), func(cfg *PumpConfig) {
		cfg.Name = "logged"
		cfg.Logger = logger
	})

	require.NoError(t, p.BeginInvoke(func(ctx context.Context, r *fakeResource) error {
		panic("unlogged disaster")
	}))
	require.NoError(t, p.WaitIdle(context.Background()))

	faults := logs.FilterMessage("work item faulted").All()
	require.Len(t, faults, 1)

	fields := faults[0].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, faults[0].Level)
	assert.Equal(t, "logged", fields["pump"])
	assert.Equal(t, "fire_and_forget", fields["kind"])
	assert.Contains(t, fields["error"], "unlogged disaster")
	assert.NotEmpty(t, fields["stack"])

	assert.Equal(t, 1, logs.FilterMessage("pump worker started").Len())
}

// TestLoggingFaultHandler_NilLogger verifies a handler without a logger is inert
func TestLoggingFaultHandler_NilLogger(t *testing.T) {
	var h *LoggingFaultHandler
	h.HandleFault("p", &FaultError{Err: errActionFailed})
	(&LoggingFaultHandler{}).HandleFault("p", &FaultError{Err: errActionFailed})
}

// TestDefaultPumpConfig_FaultsUseFinalLogger verifies fault logs follow a replaced Logger
// Given: A default config whose Logger is swapped for an observed one
// When: A fire-and-forget item fails
// Then: The fault is logged on the observed logger
func TestDefaultPumpConfig_FaultsUseFinalLogger(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.ErrorLevel)
	cfg := DefaultPumpConfig()
	cfg.Logger = logger
	assert.Nil(t, cfg.FaultHandler)

	p, err := NewPump("fake", newFakeBackend().opener(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Dispose() })

	require.NoError(t, p.BeginInvoke(func(ctx context.Context, r *fakeResource) error {
		return errActionFailed
	}))
	require.NoError(t, p.WaitIdle(context.Background()))

	assert.Equal(t, 1, logs.FilterMessage("work item faulted").Len())
}
