package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.Meter("test"))
}

func TestNew_EnabledWithoutOutputs(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "backplot"})
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:        true,
		ServiceName:    "backplot",
		ServiceVersion: "test",
		BatchTimeout:   time.Second,
		LogWriter:      &buf,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())
	assert.True(t, p.Enabled())

	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.Nil(t, p.LoggerProvider(), "shutdown releases the provider")
	assert.NoError(t, p.Shutdown(context.Background()), "second shutdown is a no-op")
}
