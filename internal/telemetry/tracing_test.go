package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"github.com/stretchr/testify/require"

	"github.com/willjrcristo/chat-billing/internal/config"
)

func TestSetup_Desabilitado(t *testing.T) {
	ctx := context.Background()

	p, err := Setup(ctx, config.TracingConfig{Enabled: false, ServiceName: "chat-billing"})
	require.NoError(t, err)

	_, span := otel.Tracer("teste").Start(ctx, "teste")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(ctx))
}

func TestSetup_Habilitado(t *testing.T) {
	ctx := context.Background()

	// O exportador HTTP só conecta ao exportar; o Shutdown com contexto cancelado não bloqueia.
	p, err := Setup(ctx, config.TracingConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		SampleRate:  1,
		ServiceName: "chat-billing",
		Environment: "test",
		Version:     "dev",
	})
	require.NoError(t, err)

	_, span := otel.Tracer("teste").Start(ctx, "teste")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_ = p.Shutdown(cancelled)
}
