package zaplogger

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := Wrap(zap.New(core)).With(observability.F("component", "ledger"))

	log.Warn("stock_release_failed",
		observability.F("product_id", "BEB001"),
		observability.F("error", errors.New("boom")),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "stock_release_failed", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "ledger", ctx["component"])
	assert.Equal(t, "BEB001", ctx["product_id"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud")
	require.Error(t, err)
}

func TestWrapNil(t *testing.T) {
	assert.NotPanics(t, func() { Wrap(nil).Info("ignored") })
}
