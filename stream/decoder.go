// Package stream turns the provider's push stream into content.
//
// A Decoder splits the response body into typed frames. An Aggregator folds
// those frames into incremental chunk events and the final assembled text:
//
//	dec := stream.NewDecoder(body)
//	agg := stream.NewAggregator(conversationID)
//	complete, err := stream.Consume(ctx, dec, agg, emit)
package stream

import (
	"bufio"
	"io"
	"iter"
	"strings"

	"github.com/tailored-agentic-units/relay/core/protocol"
)

const (
	eventPrefix = "event:"
	dataPrefix  = "data:"

	initialBufferSize = 64 * 1024
	// MaxLineSize bounds a single line of the stream. Longer lines end
	// decoding with bufio.ErrTooLong.
	MaxLineSize = 1024 * 1024
)

// Frame is one decoded unit of the stream: the current event kind and the
// trimmed payload of a data line.
type Frame struct {
	Kind    protocol.EventKind
	Payload string
}

// Decoder reads event/data lines and yields Frames. It is single-use: once
// Next reports false the decoder stays exhausted.
type Decoder struct {
	scanner  *bufio.Scanner
	current  protocol.EventKind
	finished bool
	done     bool
	err      error
}

// NewDecoder creates a Decoder reading lines from r. Line boundaries are
// resolved by the decoder, so r may deliver arbitrary partial chunks.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufferSize), MaxLineSize)
	return &Decoder{scanner: scanner}
}

// Next returns the next frame. It reports false at the end of the stream,
// either when the done sentinel is seen or when the reader is exhausted.
func (d *Decoder) Next() (Frame, bool) {
	if d.done {
		return Frame{}, false
	}

	for d.scanner.Scan() {
		frame, ok, stop := d.decodeLine(d.scanner.Text())
		if stop {
			d.finished = true
			d.done = true
			return Frame{}, false
		}
		if ok {
			return frame, true
		}
	}

	d.err = d.scanner.Err()
	d.done = true
	return Frame{}, false
}

// Frames returns the remaining frames as a sequence.
func (d *Decoder) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for {
			frame, ok := d.Next()
			if !ok || !yield(frame) {
				return
			}
		}
	}
}

// Err returns the read error that ended decoding, if any. A stream ending on
// the done sentinel or at EOF has no error.
func (d *Decoder) Err() error {
	return d.err
}

// Finished reports whether the stream ended on the done sentinel.
func (d *Decoder) Finished() bool {
	return d.finished
}

// decodeLine interprets a single line. Event lines only update state. Data
// lines yield a frame when an event kind is set. Anything else is skipped.
func (d *Decoder) decodeLine(raw string) (frame Frame, ok bool, stop bool) {
	line := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(line, eventPrefix):
		d.current = protocol.EventKind(strings.TrimSpace(line[len(eventPrefix):]))
		return Frame{}, false, false

	case strings.HasPrefix(line, dataPrefix):
		if d.current == "" {
			return Frame{}, false, false
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if d.current == protocol.EventDone && payload == protocol.DoneSentinel {
			return Frame{}, false, true
		}
		if payload == "" {
			return Frame{}, false, false
		}
		return Frame{Kind: d.current, Payload: payload}, true, false
	}

	return Frame{}, false, false
}
