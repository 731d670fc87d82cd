// Package stream turns the raw event-stream bytes of one connection into a
// finite, ordered sequence of typed protocol events. A Decoder is bound to
// one stream attempt and cannot be restarted; each reconnection gets a fresh
// one.
package stream

import (
	"fmt"
	"io"

	"github.com/namikmesic/claude-tether/internal/protocol"
)

// DecodeError reports one event that could not be decoded. The decoder
// itself survives a DecodeError: the caller may keep calling Next to skip
// past the malformed event.
type DecodeError struct {
	Index   int
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder reads framed events from r and decodes them one at a time.
type Decoder struct {
	r       io.Reader
	parser  *Parser
	pending []RawEvent
	buf     []byte
	readErr error
	flushed bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:      r,
		parser: NewParser(),
		buf:    make([]byte, 32*1024),
	}
}

// Next returns the next event in arrival order. It blocks on the underlying
// read, so backpressure from a slow caller propagates upstream instead of
// dropping or reordering events. A malformed event yields a *DecodeError;
// the end of the stream yields the underlying read error (io.EOF for a
// clean close).
func (d *Decoder) Next() (protocol.Event, error) {
	for len(d.pending) == 0 {
		if d.readErr != nil {
			if !d.flushed {
				d.flushed = true
				d.pending = d.parser.Flush()
				continue
			}
			return nil, d.readErr
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.pending = d.parser.ParseChunk(d.buf[:n])
		}
		if err != nil {
			d.readErr = err
		}
	}

	raw := d.pending[0]
	d.pending = d.pending[1:]

	ev, err := protocol.ParseEvent(raw.Payload)
	if err != nil {
		return nil, &DecodeError{Index: raw.Index, Payload: raw.Payload, Err: err}
	}
	return ev, nil
}
