package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

func TestNew_WithoutSinks(t *testing.T) {
	_, err := New(Config{ServiceName: "locator"})
	assert.Error(t, err)
}

func TestShutdown_NilProvider(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_RecordsCarrySite(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		ServiceName:    "locator",
		ServiceVersion: "1.2.3",
		Site:           "roof",
		BatchTimeout:   time.Second,
		LogWriter:      &buf,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	logger := otelslog.NewLogger("test", otelslog.WithLoggerProvider(p.LoggerProvider()))
	logger.Info("fix recorded", "attemptID", "a1")

	require.NoError(t, p.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "fix recorded")
	assert.Contains(t, out, string(SiteKey))
	assert.Contains(t, out, "roof")
	assert.Contains(t, out, "1.2.3")
}

func TestNew_DefaultBatchTimeout(t *testing.T) {
	p, err := New(Config{ServiceName: "locator", LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}
