package logctx

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fieldLogger struct {
	fields []observability.Field
}

func (l *fieldLogger) With(fields ...observability.Field) observability.Logger {
	return &fieldLogger{fields: append(append([]observability.Field(nil), l.fields...), fields...)}
}
func (l *fieldLogger) Debug(string, ...observability.Field) {}
func (l *fieldLogger) Info(string, ...observability.Field)  {}
func (l *fieldLogger) Warn(string, ...observability.Field)  {}
func (l *fieldLogger) Error(string, ...observability.Field) {}

func TestFromOrPrefersScopedLogger(t *testing.T) {
	component := &fieldLogger{}
	assert.Same(t, component, FromOr(context.Background(), component))

	scoped := &fieldLogger{}
	ctx := With(context.Background(), scoped)
	assert.Same(t, scoped, FromOr(ctx, component))
	assert.Same(t, ctx, With(ctx, nil))
}

func TestEnrichStacksFields(t *testing.T) {
	component := &fieldLogger{fields: []observability.Field{observability.F("service", "kitchen-worker")}}

	ctx, first := Enrich(context.Background(), component, observability.F("request_id", "r-1"))
	ctx, second := Enrich(ctx, component, observability.F("order_id", "ord-1"))

	require.Same(t, second, From(ctx))
	got := second.(*fieldLogger).fields
	assert.Equal(t, []observability.Field{
		observability.F("service", "kitchen-worker"),
		observability.F("request_id", "r-1"),
		observability.F("order_id", "ord-1"),
	}, got)
	assert.Len(t, first.(*fieldLogger).fields, 2)
}

func TestEnrichWithoutAnyLogger(t *testing.T) {
	ctx, logger := Enrich(context.Background(), nil, observability.F("k", "v"))
	assert.Nil(t, logger)
	assert.Nil(t, From(ctx))
}
