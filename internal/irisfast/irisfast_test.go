package irisfast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestSendMessagePostsReply(t *testing.T) {
	var got ReplyRequest
	var userID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reply", r.URL.Path)
		userID = r.Header.Get("X-User-Id")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithHeaderProvider(func() map[string]string {
		return map[string]string{"X-User-Id": "bot", "X-Empty": " "}
	}))
	require.NoError(t, c.SendMessage(context.Background(), "room-1", "hello"))
	assert.Equal(t, ReplyRequest{Type: "text", Room: "room-1", Data: "hello"}, got)
	assert.Equal(t, "bot", userID)
}

func TestRetryPolicy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path == "/reply" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Config{Port: 3000, MessageRate: 50})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, WithRetry(3))

	cfg, err := c.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.EqualValues(t, 2, hits.Load())

	err = c.SendMessage(context.Background(), "room-1", "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.EqualValues(t, 3, hits.Load(), "replies are never retried")
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, strings.Repeat("x", 600), http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Decrypt(context.Background(), "blob")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Retryable())
	assert.Len(t, apiErr.Body, 512)
	assert.EqualValues(t, 1, hits.Load())
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(0))
	assert.Equal(t, 400*time.Millisecond, backoff(3))
	assert.Equal(t, backoff(6), backoff(20))
}

func TestMessageIdentity(t *testing.T) {
	name := " alice "
	m := &Message{Sender: &name}
	assert.Equal(t, "alice", m.SenderName())
	assert.Equal(t, "", m.UserID(), "display names are not identities")

	m.JSON = &MessageJSON{UserID: "42"}
	assert.Equal(t, "42", m.UserID())
	assert.Equal(t, "", (&Message{}).UserID())
}

func TestHTTPEgressDryRunAndFailureHook(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	require.NoError(t, NewEgress("http", true, c, nil, nil, nil).SendText(context.Background(), "r", "x"))
	assert.EqualValues(t, 0, hits.Load())

	var failed []string
	e := NewEgress("auto", false, c, NewWebSocket("ws://unused", 0, 0), nil, func(tr string) { failed = append(failed, tr) })
	require.Error(t, e.SendText(context.Background(), "r", "x"))
	assert.Equal(t, []string{"http"}, failed, "auto mode goes straight to http while ws is down")
}

// wsServer pushes one chat event to the bot and forwards every frame it reads to frames.
func wsServer(t *testing.T, frames chan<- ReplyRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Session-Id") != "s-1" {
			http.Error(w, "missing session", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		sender := "alice"
		if err := wsjson.Write(ctx, conn, Message{Msg: "/signup", Room: "room-1", Sender: &sender, JSON: &MessageJSON{UserID: "42"}}); err != nil {
			return
		}
		for {
			var rr ReplyRequest
			if err := wsjson.Read(ctx, conn, &rr); err != nil {
				return
			}
			frames <- rr
		}
	}))
}

func TestWebSocketRoundTrip(t *testing.T) {
	frames := make(chan ReplyRequest, 1)
	srv := wsServer(t, frames)
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), 0, 0)
	ws.SetHeaderProvider(func() map[string]string { return map[string]string{"X-Session-Id": "s-1"} })
	var states []WebSocketState
	ws.OnStateChange(func(s WebSocketState) { states = append(states, s) })
	inbound := make(chan *Message, 1)
	ws.OnMessage(func(m *Message) { inbound <- m })

	require.NoError(t, ws.Connect(context.Background()))
	assert.True(t, ws.Connected())

	select {
	case m := <-inbound:
		assert.Equal(t, "/signup", m.Msg)
		assert.Equal(t, "42", m.UserID())
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound message")
	}

	e := NewEgress("ws", false, nil, ws, nil, nil)
	require.NoError(t, e.SendText(context.Background(), "room-1", "Signed up"))
	select {
	case rr := <-frames:
		assert.Equal(t, ReplyRequest{Type: "text", Room: "room-1", Data: "Signed up"}, rr)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply frame")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ws.Close(ctx))
	assert.False(t, ws.Connected())
	require.ErrorIs(t, e.SendText(context.Background(), "room-1", "late"), ErrNotConnected)
	assert.Equal(t, []WebSocketState{WSStateConnecting, WSStateConnected, WSStateDisconnected}, states)
}

func TestWebSocketHandshakeFailure(t *testing.T) {
	srv := wsServer(t, make(chan ReplyRequest, 1))
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), 0, 0)
	require.Error(t, ws.Connect(context.Background()))
	assert.Equal(t, WSStateFailed, ws.State())
}
