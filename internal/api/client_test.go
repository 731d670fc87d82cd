package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namikmesic/claude-tether/internal/protocol"
)

func TestFetchTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/sessions/s1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"messages":[{"id":"m1","role":"user","content":[{"type":"text","text":"hi"}]}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	msgs, err := c.FetchTranscript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "hi", msgs[0].Text())
}

func TestFetchTranscriptClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"client error", http.StatusNotFound, ErrRemoteClient},
		{"server error", http.StatusBadGateway, ErrRemoteServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New(srv.URL, srv.Client())
			_, err := c.FetchTranscript(context.Background(), "s1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ce *CallError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.status, ce.Status)
		})
	}
}

func TestTransportFailureIsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := New(srv.URL, DefaultHTTPClient())
	_, err := c.FetchTranscript(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrConnectivity)
}

func TestCancelledContextIsNotConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, srv.Client())
	_, err := c.FetchTranscript(ctx, "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConnectivity)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions/stream", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		var body struct {
			Messages []protocol.Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Messages, 1)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set(SessionIDHeader, "s-new")
		io.WriteString(w, "data: {\"type\":\"ping\"}\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), WithAPIKey("sekrit"))
	body, sid, err := c.StartStream(context.Background(), "", []protocol.Message{
		{ID: "u1", Role: protocol.RoleUser, Content: []protocol.ContentBlock{{Type: protocol.BlockText, Text: "hi"}}},
	})
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "s-new", sid)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ping")
}

func TestStartStreamExistingSessionPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/s1/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	body, sid, err := c.StartStream(context.Background(), "s1", nil)
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, "s1", sid)
}

func TestStartStreamRejectsNonStreamResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	_, _, err := c.StartStream(context.Background(), "s1", nil)
	assert.ErrorIs(t, err, ErrRemoteServer)
}

func TestBaseURLPathPrefixPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gateway/v1/sessions/s1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"messages":[]}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/gateway", srv.Client())
	_, err := c.FetchTranscript(context.Background(), "s1")
	require.NoError(t, err)
}
