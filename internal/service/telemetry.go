package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

const instrumentationName = "github.com/pesio-ai/be-ap-procurement/internal/service"

type telemetry struct {
	tracer      trace.Tracer
	transitions metric.Int64Counter
}

func newTelemetry() *telemetry {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"procurement.transitions",
		metric.WithDescription("Engine operations by document type and result"),
	)
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("procurement.transitions")
	}
	return &telemetry{
		tracer:      otel.Tracer(instrumentationName),
		transitions: counter,
	}
}

// start opens a span for one engine operation. The returned func records the
// outcome on both the span and the transitions counter.
func (t *telemetry) start(ctx context.Context, action Action, dt repository.DocType) (context.Context, func(err error)) {
	ctx, span := t.tracer.Start(ctx, "procurement."+string(action),
		trace.WithAttributes(
			attribute.String("document.type", string(dt)),
		))

	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = string(errors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		t.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("transition", string(action)),
			attribute.String("document.type", string(dt)),
			attribute.String("result", result),
		))
		span.End()
	}
}
