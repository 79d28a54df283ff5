package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oracoin/reward-engine/generic"
)

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := New(Options{Level: "debug", Path: path})
	require.NoError(t, err)
	logger.Info("hello", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestDiagnosticSink(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := DiagnosticSink(zap.New(core))

	sink.PermissionDenied(context.Background(), &generic.PermissionDeniedError{
		Path:      "users/alice",
		Operation: generic.OpUpdate,
		Payload:   map[string]any{"coinBalance": "60"},
	})

	entries := logs.FilterMessage("store permission denied").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "users/alice", fields["path"])
	assert.Equal(t, "update", fields["operation"])
	assert.Equal(t, "anonymous", fields["actor"])
}
