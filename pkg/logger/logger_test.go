package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewWithCore(core), logs
}

func TestRedaction(t *testing.T) {
	log, logs := observed()

	log.Info("llm configured",
		"api_key", "sk-live-abcdefghijklmnopqrstuvwxyz",
		"model", "gpt-4o-mini",
		"org_id", "3f1c2d4e-5a6b-4c7d-8e9f-0a1b2c3d4e5f",
		"note", "sk-0123456789abcdefghijklmnop",
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "gpt-4o-mini", fields["model"])
	assert.Equal(t, "[REDACTED]", fields["note"])

	hashed, ok := fields["org_id"].(string)
	require.True(t, ok)
	assert.Regexp(t, `^hash:[0-9a-f]{12}$`, hashed)
}

func TestHashIsStable(t *testing.T) {
	assert.Equal(t, hashValue("caller-1"), hashValue("caller-1"))
	assert.NotEqual(t, hashValue("caller-1"), hashValue("caller-2"))
	assert.Equal(t, "", hashValue(""))
}

func TestNestedMapsAreSanitized(t *testing.T) {
	got := sanitizeValue("payload", map[string]interface{}{
		"Authorization": "Bearer x",
		"stage":         "discovery",
	})
	assert.Equal(t, map[string]interface{}{
		"Authorization": "[REDACTED]",
		"stage":         "discovery",
	}, got)
}

func TestWithCarriesFields(t *testing.T) {
	log, logs := observed()
	log.With("call_id", "c-1", "secret", "x").Warn("turn fell back")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Equal(t, "c-1", entry.ContextMap()["call_id"])
	assert.Equal(t, "[REDACTED]", entry.ContextMap()["secret"])
}

func TestOddKeyValuesDoNotPanic(t *testing.T) {
	log, logs := observed()
	assert.NotPanics(t, func() { log.Debug("odd", "dangling") })
	// zap reports the dangling key as a separate entry.
	assert.NotEmpty(t, logs.FilterMessage("odd").All())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := NewNop()
	assert.Same(t, l, OrNop(l))
}
