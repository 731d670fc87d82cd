// Package toolcall derives tool invocation state from message content as it
// is accumulated. The tracker owns this state exclusively; the message
// accumulator only supplies the content blocks it reacts to.
package toolcall

import (
	"time"

	"github.com/namikmesic/claude-tether/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Status of one tracked tool call.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ResultTimeout is the synthetic status given to calls force-completed when
// a stream finishes while they are still active.
const ResultTimeout = "timeout"

// Result is the outcome of a completed call.
type Result struct {
	Status string
	Value  *protocol.Value
	Error  string
}

// State is the tracked state of one tool call, keyed by its id.
type State struct {
	ID        string
	Name      string
	Arguments *protocol.Value
	// MessageID is the message that carried the tool request. Set once,
	// never changed; kept for downstream correlation only.
	MessageID   string
	Status      Status
	Result      *Result
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Observer is invoked synchronously after every state transition.
type Observer func(State)

// Tracker is the two-state machine (Active, Completed) over tool calls seen
// in one session. Absent ids are implicitly unknown.
type Tracker struct {
	calls    map[string]*State
	order    []string
	observer Observer
	now      func() time.Time
}

func NewTracker(observer Observer) *Tracker {
	return &Tracker{
		calls:    make(map[string]*State),
		observer: observer,
		now:      time.Now,
	}
}

// Observe reacts to the tool blocks of one merged message.
func (tr *Tracker) Observe(msg protocol.Message) {
	for _, block := range msg.Content {
		switch block.Type {
		case protocol.BlockToolRequest:
			tr.observeRequest(msg.ID, block)
		case protocol.BlockToolResponse:
			tr.observeResponse(block)
		}
	}
}

func (tr *Tracker) observeRequest(messageID string, block protocol.ContentBlock) {
	if _, ok := tr.calls[block.ID]; ok {
		return
	}
	st := &State{
		ID:        block.ID,
		Name:      block.Name,
		Arguments: block.Arguments,
		MessageID: messageID,
		Status:    StatusActive,
		StartedAt: tr.now(),
	}
	tr.calls[block.ID] = st
	tr.order = append(tr.order, block.ID)
	tr.notify(st)
}

func (tr *Tracker) observeResponse(block protocol.ContentBlock) {
	st, ok := tr.calls[block.ID]
	if !ok {
		// The server is authoritative, but a call never seen requested
		// must not be fabricated here.
		log.Warn().Str("tool_call_id", block.ID).Msg("tool response for unknown call, ignoring")
		return
	}

	switch st.Status {
	case StatusActive:
		tr.complete(st, resultFrom(block))
	case StatusCompleted:
		// A genuine response supersedes a synthetic timeout, e.g. when
		// reconciliation reveals the server finished the call after the
		// stream dropped.
		if st.Result != nil && st.Result.Status == ResultTimeout && block.Status != ResultTimeout {
			tr.complete(st, resultFrom(block))
		}
	}
}

func (tr *Tracker) complete(st *State, res *Result) {
	st.Status = StatusCompleted
	st.Result = res
	st.CompletedAt = tr.now()
	st.Duration = st.CompletedAt.Sub(st.StartedAt)
	tr.notify(st)
}

// FinishStream force-completes every remaining active call with a synthetic
// timeout result so that no call is left permanently in progress after the
// stream ends.
func (tr *Tracker) FinishStream() {
	for _, id := range tr.order {
		st := tr.calls[id]
		if st.Status != StatusActive {
			continue
		}
		log.Debug().Str("tool_call_id", id).Str("tool", st.Name).Msg("forcing timeout on active tool call at stream finish")
		tr.complete(st, &Result{Status: ResultTimeout})
	}
}

// Get returns a copy of the state for id.
func (tr *Tracker) Get(id string) (State, bool) {
	st, ok := tr.calls[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Active returns copies of all calls still in flight, in first-seen order.
func (tr *Tracker) Active() []State {
	var out []State
	for _, id := range tr.order {
		if tr.calls[id].Status == StatusActive {
			out = append(out, *tr.calls[id])
		}
	}
	return out
}

// States returns copies of all tracked calls in first-seen order.
func (tr *Tracker) States() []State {
	out := make([]State, 0, len(tr.order))
	for _, id := range tr.order {
		out = append(out, *tr.calls[id])
	}
	return out
}

func (tr *Tracker) notify(st *State) {
	if tr.observer == nil {
		return
	}
	cp := *st
	if st.Result != nil {
		r := *st.Result
		cp.Result = &r
	}
	tr.observer(cp)
}

func resultFrom(block protocol.ContentBlock) *Result {
	return &Result{
		Status: block.Status,
		Value:  block.Value,
		Error:  block.Error,
	}
}
