package stream

import (
	"bytes"
	"strings"
)

const dataPrefix = "data:"

// RawEvent is one framed but not yet decoded event payload.
type RawEvent struct {
	Index   int    // ordinal within this attempt's stream, starting at 1
	Payload []byte // concatenated data-line payloads
}

// Parser maintains framing state across reads so partial lines that span
// chunk boundaries are buffered, never discarded. One logical event is the
// concatenation of all data-line payloads up to the next blank line.
type Parser struct {
	buffer     []byte
	pending    []byte
	hasPending bool
	eventIndex int
}

func NewParser() *Parser {
	return &Parser{}
}

// ParseChunk consumes raw bytes from the stream and returns the events
// completed by this chunk, in order.
func (p *Parser) ParseChunk(chunk []byte) []RawEvent {
	p.buffer = append(p.buffer, chunk...)
	var events []RawEvent

	for {
		idx := bytes.IndexByte(p.buffer, '\n')
		if idx == -1 {
			break
		}

		line := string(p.buffer[:idx])
		p.buffer = p.buffer[idx+1:]
		line = strings.TrimRight(line, "\r")

		if line == "" {
			// Blank line terminates the current event.
			if p.hasPending {
				events = append(events, p.take())
			}
			continue
		}

		if strings.HasPrefix(line, dataPrefix) {
			payload := strings.TrimPrefix(line[len(dataPrefix):], " ")
			p.pending = append(p.pending, payload...)
			p.hasPending = true
		}
		// Other field lines (comments, unknown fields) are not payload.
	}

	return events
}

// Flush returns the event still pending when the stream ends without a
// trailing blank line.
func (p *Parser) Flush() []RawEvent {
	if !p.hasPending {
		return nil
	}
	return []RawEvent{p.take()}
}

func (p *Parser) take() RawEvent {
	p.eventIndex++
	ev := RawEvent{Index: p.eventIndex, Payload: p.pending}
	p.pending = nil
	p.hasPending = false
	return ev
}
