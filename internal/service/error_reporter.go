package service

import (
	"context"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/metrics"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"go.uber.org/zap"
)

// ErrorReporter receives failures of side effects that must not fail the
// operation that caused them (audit log, resend enqueue, notification dispatch)
type ErrorReporter interface {
	Report(ctx context.Context, op string, err error, fields ...zap.Field)
}

// logReporter logs with trace ids and counts errors by code
type logReporter struct {
	log *logger.Logger
}

// NewErrorReporter creates an ErrorReporter backed by zap and the errors counter.
// A nil logger uses the global one.
func NewErrorReporter(log *logger.Logger) ErrorReporter {
	return &logReporter{log: log}
}

// Report logs err and records it in the errors counter
func (r *logReporter) Report(ctx context.Context, op string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	log := r.log
	if log == nil {
		log = logger.Get()
	}
	code := domain.ErrorCode(err)
	fields = append(fields,
		zap.String("operation", op),
		zap.String("error_code", code),
		zap.Error(err),
	)
	log.ErrorContext(ctx, "side effect failed", fields...)
	metrics.RecordError(ctx, code, op)
}
