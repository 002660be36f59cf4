package stream

import (
	"context"

	"github.com/tailored-agentic-units/relay/core/fault"
)

// Emit receives events in wire order. Returning an error stops consumption.
type Emit func(Event) error

// Consume drives dec through agg, forwarding chunk and frame-error events to
// emit as they are decoded. On natural end of stream it returns the complete
// event without emitting it, so the caller decides what precedes the
// terminal event.
//
// Cancellation of ctx, an emit error, or a read error ends consumption early
// and no complete event is produced.
func Consume(ctx context.Context, dec *Decoder, agg *Aggregator, emit Emit) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		frame, ok := dec.Next()
		if !ok {
			break
		}

		event, ok := agg.Apply(frame)
		if !ok {
			continue
		}
		if err := emit(event); err != nil {
			return Event{}, err
		}
	}

	if err := dec.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Event{}, ctxErr
		}
		return Event{}, fault.Upstream("stream.Consume", 0, "", err)
	}

	return agg.Complete(), nil
}
