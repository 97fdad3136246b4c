package services

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/bizdash/orgsync/modules/org/services")

func startSpan(ctx context.Context, name string, tenantID uuid.UUID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tenant_id", tenantID.String()))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// failSpan marks the span as failed with the service error code.
func failSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if svcErr, ok := err.(*ServiceError); ok {
		span.SetAttributes(attribute.String("error.code", svcErr.Code))
	}
	span.SetStatus(codes.Error, err.Error())
}
