package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanObserver records events on the span carried by the event's context.
// Events emitted outside a recording span are dropped. Error-level events
// also set the span status.
type SpanObserver struct{}

func (SpanObserver) OnEvent(ctx context.Context, event Event) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(event.Data)+2)
	attrs = append(attrs,
		attribute.String("event.source", event.Source),
		attribute.String("event.severity", event.Level.String()),
	)
	for k, v := range event.Data {
		attrs = append(attrs, Attribute(k, v))
	}

	span.AddEvent(string(event.Type), trace.WithTimestamp(event.Timestamp), trace.WithAttributes(attrs...))

	if event.Level >= LevelError {
		if msg, ok := event.Data["error"].(string); ok {
			span.SetStatus(codes.Error, msg)
		} else {
			span.SetStatus(codes.Error, string(event.Type))
		}
	}
}

// Attribute converts an event data value to a span attribute.
func Attribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	case error:
		return attribute.String(key, v.Error())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
