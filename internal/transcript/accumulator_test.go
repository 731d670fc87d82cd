package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namikmesic/claude-tether/internal/protocol"
)

func textMsg(id, text string) protocol.Message {
	return protocol.Message{
		ID:      id,
		Role:    protocol.RoleAssistant,
		Created: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		Content: []protocol.ContentBlock{{Type: protocol.BlockText, Text: text}},
	}
}

func TestMergeConcatenatesTextFragments(t *testing.T) {
	trans := New()
	acc := NewAccumulator(trans, nil)

	acc.Merge(textMsg("m1", "Hel"))
	acc.Merge(textMsg("m1", "lo"))

	require.Equal(t, 1, trans.Len())
	m, ok := trans.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "Hello", m.Text())

	// Exactly one text block accumulates per message.
	count := 0
	for _, b := range m.Content {
		if b.Type == protocol.BlockText {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestMergePreservesArrivalOrder(t *testing.T) {
	trans := New()
	acc := NewAccumulator(trans, nil)

	acc.Merge(textMsg("a", "1"))
	acc.Merge(textMsg("b", "2"))
	acc.Merge(textMsg("a", "3"))
	acc.Merge(textMsg("c", "4"))

	msgs := trans.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "b", msgs[1].ID)
	assert.Equal(t, "c", msgs[2].ID)
	assert.Equal(t, "13", msgs[0].Text())
}

func TestMergeDuplicateDeliveryIsIdempotent(t *testing.T) {
	trans := New()
	acc := NewAccumulator(trans, nil)

	args := protocol.Object(protocol.Field{Key: "q", Value: protocol.String("x")})
	msg := protocol.Message{
		ID:   "m1",
		Role: protocol.RoleAssistant,
		Content: []protocol.ContentBlock{
			{Type: protocol.BlockText, Text: "Hello"},
			{Type: protocol.BlockToolRequest, ID: "t1", Name: "search", Arguments: &args},
		},
	}

	acc.Merge(msg)
	acc.Merge(msg)

	m, ok := trans.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "Hello", m.Text())
	require.Len(t, m.Content, 2)
}

func TestMergeToolBlocksAppendOnly(t *testing.T) {
	trans := New()
	acc := NewAccumulator(trans, nil)

	acc.Merge(protocol.Message{
		ID:   "m1",
		Role: protocol.RoleAssistant,
		Content: []protocol.ContentBlock{
			{Type: protocol.BlockToolRequest, ID: "t1", Name: "search"},
		},
	})
	acc.Merge(protocol.Message{
		ID:   "m1",
		Role: protocol.RoleAssistant,
		Content: []protocol.ContentBlock{
			{Type: protocol.BlockToolResponse, ID: "t1", Status: "success"},
		},
	})

	m, _ := trans.Get("m1")
	require.Len(t, m.Content, 2)
	assert.Equal(t, protocol.BlockToolRequest, m.Content[0].Type)
	assert.Equal(t, protocol.BlockToolResponse, m.Content[1].Type)
}

func TestMergeNotifiesObserverInOrder(t *testing.T) {
	trans := New()
	var seen []string
	acc := NewAccumulator(trans, func(m protocol.Message) {
		seen = append(seen, m.ID+":"+m.Text())
	})

	acc.Merge(textMsg("m1", "Hel"))
	acc.Merge(textMsg("m1", "lo"))

	assert.Equal(t, []string{"m1:Hel", "m1:Hello"}, seen)
}

func TestAdoptRevealsOnlyNewMessages(t *testing.T) {
	trans := NewFrom([]protocol.Message{textMsg("u1", "hi"), textMsg("a1", "partial")})
	var seen []string
	acc := NewAccumulator(trans, func(m protocol.Message) {
		seen = append(seen, m.ID)
	})

	authoritative := []protocol.Message{
		textMsg("u1", "hi"),
		textMsg("a1", "partial plus more"),
		textMsg("a2", "the reply"),
	}
	revealed := acc.Adopt(authoritative)

	require.Len(t, revealed, 1)
	assert.Equal(t, "a2", revealed[0].ID)
	assert.Equal(t, []string{"a2"}, seen)

	// The adopted copy is authoritative, existing entries included.
	m, _ := trans.Get("a1")
	assert.Equal(t, "partial plus more", m.Text())
	assert.Equal(t, 3, trans.Len())
}

func TestTranscriptSnapshotsAreCopies(t *testing.T) {
	trans := New()
	acc := NewAccumulator(trans, nil)
	acc.Merge(textMsg("m1", "hi"))

	snap := trans.Messages()
	snap[0].Content[0].Text = "mutated"

	m, _ := trans.Get("m1")
	assert.Equal(t, "hi", m.Text())
}
