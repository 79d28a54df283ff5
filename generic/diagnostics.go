package generic

import (
	"context"
	"errors"
)

// DiagnosticSink receives structured events meant for developers rather
// than end users. Registering one is optional.
type DiagnosticSink interface {
	PermissionDenied(ctx context.Context, err *PermissionDeniedError)
}

// DiagnosticSinkFunc adapts a function to DiagnosticSink.
type DiagnosticSinkFunc func(ctx context.Context, err *PermissionDeniedError)

func (f DiagnosticSinkFunc) PermissionDenied(ctx context.Context, err *PermissionDeniedError) {
	f(ctx, err)
}

// ReportDenied forwards err to sink if it carries a permission rejection.
func ReportDenied(ctx context.Context, sink DiagnosticSink, err error) {
	if sink == nil || err == nil {
		return
	}
	var pd *PermissionDeniedError
	if errors.As(err, &pd) {
		sink.PermissionDenied(ctx, pd)
	}
}
