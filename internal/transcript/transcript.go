// Package transcript holds the locally accumulated view of one session's
// conversation and the merge logic that folds streamed message fragments
// into it.
package transcript

import (
	"github.com/namikmesic/claude-tether/internal/protocol"
)

// Transcript is an ordered, id-indexed sequence of messages. Order of first
// appearance is preserved; ids are unique; the transcript only grows except
// when a reconciliation explicitly adopts the server's authoritative copy.
type Transcript struct {
	order []string
	byID  map[string]*protocol.Message
}

func New() *Transcript {
	return &Transcript{byID: make(map[string]*protocol.Message)}
}

// NewFrom builds a transcript from an existing ordered message list, e.g.
// a server-fetched history at session resume. Later duplicates of an id are
// ignored.
func NewFrom(msgs []protocol.Message) *Transcript {
	t := New()
	for _, m := range msgs {
		if _, ok := t.byID[m.ID]; ok {
			continue
		}
		c := m.Clone()
		t.order = append(t.order, c.ID)
		t.byID[c.ID] = &c
	}
	return t
}

func (t *Transcript) Len() int { return len(t.order) }

// Get returns a copy of the message with the given id.
func (t *Transcript) Get(id string) (protocol.Message, bool) {
	m, ok := t.byID[id]
	if !ok {
		return protocol.Message{}, false
	}
	return m.Clone(), true
}

// Last returns a copy of the most recent message.
func (t *Transcript) Last() (protocol.Message, bool) {
	if len(t.order) == 0 {
		return protocol.Message{}, false
	}
	return t.byID[t.order[len(t.order)-1]].Clone(), true
}

// Messages returns a copy of the full ordered message list.
func (t *Transcript) Messages() []protocol.Message {
	out := make([]protocol.Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id].Clone())
	}
	return out
}

func (t *Transcript) append(m protocol.Message) *protocol.Message {
	c := m.Clone()
	t.order = append(t.order, c.ID)
	t.byID[c.ID] = &c
	return &c
}

// replace swaps the transcript contents wholesale. Only reconciliation may
// do this; the accumulator itself never removes messages.
func (t *Transcript) replace(msgs []protocol.Message) {
	t.order = t.order[:0]
	t.byID = make(map[string]*protocol.Message, len(msgs))
	for _, m := range msgs {
		if _, ok := t.byID[m.ID]; ok {
			continue
		}
		c := m.Clone()
		t.order = append(t.order, c.ID)
		t.byID[c.ID] = &c
	}
}
