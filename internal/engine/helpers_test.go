package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/namikmesic/claude-tether/internal/api"
	"github.com/namikmesic/claude-tether/internal/protocol"
)

// agentStub scripts the two endpoints the engine consumes. Stream handlers
// are consumed one per attempt (the last one repeats); the fetch handler is
// shared.
type agentStub struct {
	mu          sync.Mutex
	streams     []http.HandlerFunc
	fetch       http.HandlerFunc
	streamCalls int
	fetchCalls  int
}

func (a *agentStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/messages") {
		a.mu.Lock()
		a.fetchCalls++
		h := a.fetch
		a.mu.Unlock()
		if h != nil {
			h(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	a.mu.Lock()
	a.streamCalls++
	var h http.HandlerFunc
	if len(a.streams) > 0 {
		h = a.streams[0]
		if len(a.streams) > 1 {
			a.streams = a.streams[1:]
		}
	}
	a.mu.Unlock()
	if h != nil {
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func (a *agentStub) counts() (streams, fetches int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streamCalls, a.fetchCalls
}

// streamOf writes an event-stream response carrying the given payloads.
func streamOf(sid string, events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if sid != "" {
			w.Header().Set(api.SessionIDHeader, sid)
		}
		for _, e := range events {
			io.WriteString(w, "data: "+e+"\n\n")
		}
	}
}

func statusStream(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

// hangingStream flushes headers then blocks until the client goes away.
func hangingStream(sid string, events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if sid != "" {
			w.Header().Set(api.SessionIDHeader, sid)
		}
		w.WriteHeader(http.StatusOK)
		for _, e := range events {
			io.WriteString(w, "data: "+e+"\n\n")
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}
}

func fetchOf(msgs ...protocol.Message) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Messages []protocol.Message `json:"messages"`
		}{Messages: msgs})
	}
}

func msgEvent(id, text string) string {
	return fmt.Sprintf(`{"type":"message","message":{"id":%q,"role":"assistant","content":[{"type":"text","text":%q}]}}`, id, text)
}

func finishEvent() string {
	return `{"type":"finish","reason":"end_turn"}`
}

func userMsg(id, text string, created time.Time) protocol.Message {
	return protocol.Message{
		ID:      id,
		Role:    protocol.RoleUser,
		Created: created,
		Content: []protocol.ContentBlock{{Type: protocol.BlockText, Text: text}},
	}
}

func assistantMsg(id string, blocks ...protocol.ContentBlock) protocol.Message {
	return protocol.Message{ID: id, Role: protocol.RoleAssistant, Content: blocks}
}

// instantSleep records requested delays and returns immediately.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (sr *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	sr.mu.Lock()
	sr.delays = append(sr.delays, d)
	sr.mu.Unlock()
	return nil
}

func (sr *sleepRecorder) recorded() []time.Duration {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	out := make([]time.Duration, len(sr.delays))
	copy(out, sr.delays)
	return out
}
