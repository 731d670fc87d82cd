package protocol

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// BlockType discriminates content block variants.
type BlockType string

const (
	BlockText             BlockType = "text"
	BlockToolRequest      BlockType = "tool_request"
	BlockToolResponse     BlockType = "tool_response"
	BlockToolConfirmation BlockType = "tool_confirmation"
)

// ContentBlock is one element of a message's content list. Type selects
// which fields are meaningful: Text for text blocks; ID/Name/Arguments for
// tool_request and tool_confirmation; ID/Status/Value/Error for
// tool_response.
type ContentBlock struct {
	Type      BlockType `json:"type"`
	Text      string    `json:"text,omitempty"`
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Arguments *Value    `json:"arguments,omitempty"`
	Status    string    `json:"status,omitempty"`
	Value     *Value    `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// KnownBlockType reports whether t is a block type this client understands.
func KnownBlockType(t BlockType) bool {
	switch t {
	case BlockText, BlockToolRequest, BlockToolResponse, BlockToolConfirmation:
		return true
	}
	return false
}

// DisplayHints is optional server-provided visibility metadata.
type DisplayHints struct {
	Hidden    bool   `json:"hidden,omitempty"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
	Label     string `json:"label,omitempty"`
}

// Message is one entry in a conversation transcript. ID is the opaque
// server-assigned identity used to merge fragments of the same message.
type Message struct {
	ID      string         `json:"id"`
	Role    Role           `json:"role"`
	Created time.Time      `json:"created"`
	Content []ContentBlock `json:"content"`
	Display *DisplayHints  `json:"display,omitempty"`
}

// Text returns the message's accumulated text content. A merged message
// holds at most one text block.
func (m Message) Text() string {
	for _, b := range m.Content {
		if b.Type == BlockText {
			return b.Text
		}
	}
	return ""
}

// Clone returns a deep copy safe to hand to observers.
func (m Message) Clone() Message {
	out := m
	out.Content = make([]ContentBlock, len(m.Content))
	copy(out.Content, m.Content)
	if m.Display != nil {
		d := *m.Display
		out.Display = &d
	}
	return out
}

// CloneMessages deep-copies a transcript slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
