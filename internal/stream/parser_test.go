package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChunkSingleEvent(t *testing.T) {
	p := NewParser()

	events := p.ParseChunk([]byte("data: {\"type\":\"ping\"}\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Index)
	assert.Equal(t, `{"type":"ping"}`, string(events[0].Payload))
}

func TestParseChunkPartialLinesAcrossChunks(t *testing.T) {
	p := NewParser()

	events := p.ParseChunk([]byte("data: {\"type\":"))
	assert.Empty(t, events)

	events = p.ParseChunk([]byte("\"ping\"}\n"))
	assert.Empty(t, events)

	events = p.ParseChunk([]byte("\n"))
	require.Len(t, events, 1)
	assert.Equal(t, `{"type":"ping"}`, string(events[0].Payload))
}

func TestParseChunkMultipleDataLinesConcatenate(t *testing.T) {
	p := NewParser()

	chunk := "data: {\"type\":\"finish\",\ndata: \"reason\":\"end_turn\"}\n\n"
	events := p.ParseChunk([]byte(chunk))
	require.Len(t, events, 1)
	assert.Equal(t, `{"type":"finish","reason":"end_turn"}`, string(events[0].Payload))
}

func TestParseChunkMultipleEventsOrdered(t *testing.T) {
	p := NewParser()

	chunk := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: {\"c\":3}\n\n"
	events := p.ParseChunk([]byte(chunk))
	require.Len(t, events, 3)
	assert.Equal(t, `{"a":1}`, string(events[0].Payload))
	assert.Equal(t, `{"b":2}`, string(events[1].Payload))
	assert.Equal(t, `{"c":3}`, string(events[2].Payload))
	assert.Equal(t, 3, events[2].Index)
}

func TestParseChunkCRLFAndComments(t *testing.T) {
	p := NewParser()

	chunk := ": keepalive\r\ndata: {\"type\":\"ping\"}\r\n\r\n"
	events := p.ParseChunk([]byte(chunk))
	require.Len(t, events, 1)
	assert.Equal(t, `{"type":"ping"}`, string(events[0].Payload))
}

func TestParseChunkBlankLinesWithoutPendingData(t *testing.T) {
	p := NewParser()

	events := p.ParseChunk([]byte("\n\n\n"))
	assert.Empty(t, events)
}

func TestFlushEmitsTrailingEvent(t *testing.T) {
	p := NewParser()

	events := p.ParseChunk([]byte("data: {\"type\":\"ping\"}\n"))
	assert.Empty(t, events)

	flushed := p.Flush()
	require.Len(t, flushed, 1)
	assert.Equal(t, `{"type":"ping"}`, string(flushed[0].Payload))

	assert.Empty(t, p.Flush())
}
