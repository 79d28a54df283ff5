package logging

import (
	"context"

	"go.uber.org/zap"

	"github.com/oracoin/reward-engine/generic"
)

// DiagnosticSink logs permission rejections with the rejected path,
// operation, payload and identity.
func DiagnosticSink(logger *zap.Logger) generic.DiagnosticSink {
	return generic.DiagnosticSinkFunc(func(_ context.Context, err *generic.PermissionDeniedError) {
		actor := string(err.Actor)
		if actor == "" {
			actor = "anonymous"
		}
		logger.Warn("store permission denied",
			zap.String("path", err.Path),
			zap.String("operation", string(err.Operation)),
			zap.Any("payload", err.Payload),
			zap.String("actor", actor),
		)
	})
}
