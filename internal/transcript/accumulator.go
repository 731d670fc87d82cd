package transcript

import (
	"github.com/namikmesic/claude-tether/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Observer is invoked synchronously after every successful merge with a copy
// of the updated message. Calls happen in event order, never concurrently
// for one session.
type Observer func(msg protocol.Message)

// Accumulator folds incoming message fragments into a Transcript.
//
// Merge rules mirror how the agent streams: text arrives token by token and
// is concatenated into the single accumulating text block; tool blocks
// arrive whole and are append-only, keyed by their own block id.
type Accumulator struct {
	t        *Transcript
	observer Observer
}

func NewAccumulator(t *Transcript, observer Observer) *Accumulator {
	return &Accumulator{t: t, observer: observer}
}

func (a *Accumulator) Transcript() *Transcript { return a.t }

// Merge applies one incoming message. Unknown ids append at the end in
// arrival order; known ids merge field by field.
func (a *Accumulator) Merge(incoming protocol.Message) {
	existing, ok := a.t.byID[incoming.ID]
	if !ok {
		appended := a.t.append(incoming)
		a.notify(*appended)
		return
	}

	mergeInto(existing, incoming)
	a.notify(*existing)
}

// Adopt replaces the transcript with the server's authoritative copy and
// returns the newly revealed messages (those beyond the previous length),
// notifying the observer once per revealed message, in order.
func (a *Accumulator) Adopt(authoritative []protocol.Message) []protocol.Message {
	prev := a.t.Len()
	a.t.replace(authoritative)

	msgs := a.t.Messages()
	if prev > len(msgs) {
		prev = len(msgs)
	}
	revealed := msgs[prev:]
	for _, m := range revealed {
		a.notify(m)
	}
	return revealed
}

func (a *Accumulator) notify(m protocol.Message) {
	if a.observer == nil {
		return
	}
	a.observer(m.Clone())
}

func mergeInto(dst *protocol.Message, incoming protocol.Message) {
	if dst.Role == "" {
		dst.Role = incoming.Role
	}
	if dst.Created.IsZero() {
		dst.Created = incoming.Created
	}
	if incoming.Display != nil {
		d := *incoming.Display
		dst.Display = &d
	}

	for _, block := range incoming.Content {
		switch block.Type {
		case protocol.BlockText:
			mergeText(dst, block.Text)
		default:
			if hasBlock(dst.Content, block.Type, block.ID) {
				// Duplicate delivery of a whole tool block; never edited
				// in place.
				log.Debug().
					Str("message_id", dst.ID).
					Str("block_id", block.ID).
					Str("block_type", string(block.Type)).
					Msg("dropping duplicate content block")
				continue
			}
			dst.Content = append(dst.Content, block)
		}
	}
}

// mergeText appends fragment text to the message's single accumulating text
// block. A fragment identical to the full accumulated text is a duplicate
// delivery of the whole message, not new tokens, and is dropped so that
// merging the same message twice is a no-op.
func mergeText(dst *protocol.Message, text string) {
	if text == "" {
		return
	}
	for i := range dst.Content {
		if dst.Content[i].Type != protocol.BlockText {
			continue
		}
		if dst.Content[i].Text == text {
			return
		}
		dst.Content[i].Text += text
		return
	}
	dst.Content = append(dst.Content, protocol.ContentBlock{
		Type: protocol.BlockText,
		Text: text,
	})
}

func hasBlock(blocks []protocol.ContentBlock, t protocol.BlockType, id string) bool {
	for _, b := range blocks {
		if b.Type == t && b.ID == id {
			return true
		}
	}
	return false
}
