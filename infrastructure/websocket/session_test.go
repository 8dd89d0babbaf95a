package websocket

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/projection"
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var identity = domain.Identity{ID: 1, Token: "alice-token"}

// fakeBackend accepts websocket connections and hands each one to serve.
type fakeBackend struct {
	server      *httptest.Server
	connections atomic.Int32
	authHeaders chan string
}

func newFakeBackend(t *testing.T, serve func(conn *websocket.Conn)) *fakeBackend {
	backend := &fakeBackend{authHeaders: make(chan string, 8)}
	upgrader := websocket.Upgrader{}
	backend.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case backend.authHeaders <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		backend.connections.Add(1)
		serve(conn)
	}))
	t.Cleanup(backend.server.Close)
	return backend
}

func (b *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// Server side helpers run outside the test goroutine: failures show up as missing frames.
func readFrame(conn *websocket.Conn) Frame {
	var frame Frame
	_ = conn.ReadJSON(&frame)
	return frame
}

func writeFrame(conn *websocket.Conn, frameType string, data any) {
	payload, _ := json.Marshal(data)
	_ = conn.WriteJSON(Frame{Type: frameType, Data: payload, Timestamp: time.Now().UnixMilli()})
}

func newTestSession(url string) *Session {
	return NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), identity, Settings{
		URL:               url,
		ReconnectDelay:    20 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
		HandshakeTimeout:  time.Second,
	})
}

func runSession(t *testing.T, session *Session) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return cancel
}

func TestSession_SubscribesAndReceives(t *testing.T) {
	req := require.New(t)
	subscribed := make(chan Frame, 1)
	backend := newFakeBackend(t, func(conn *websocket.Conn) {
		subscribed <- readFrame(conn)
		writeFrame(conn, FrameMessage, map[string]any{"id": 5, "senderId": 2, "receiverId": 1, "content": "hey"})
		writeFrame(conn, FrameTyping, map[string]any{"senderId": 2, "receiverId": 1})
		writeFrame(conn, "presence", map[string]any{"userId": 2})
		_, _, _ = conn.ReadMessage()
	})
	session := newTestSession(backend.url())
	runSession(t, session)

	// Then the session authenticates and subscribes to the personal channel
	req.Equal("Bearer alice-token", <-backend.authHeaders)
	frame := <-subscribed
	req.Equal(FrameSubscribe, frame.Type)
	req.Equal("/user/1/queue/messages", frame.Destination)

	// And routes inbound frames by type
	select {
	case raw := <-session.Messages():
		req.Equal("hey", raw["content"])
		req.Equal(json.Number("2"), raw["senderId"])
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	select {
	case raw := <-session.Typing():
		req.Equal(json.Number("1"), raw["receiverId"])
	case <-time.After(time.Second):
		t.Fatal("no typing signal received")
	}
	req.True(session.Connected())
}

func TestSession_LargeIDsStayDistinct(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend(t, func(conn *websocket.Conn) {
		readFrame(conn)
		// Two ids that collapse to the same float64
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"message","data":{"id":9007199254740993,"senderId":2,"receiverId":1,"content":"first"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"message","data":{"id":9007199254740992,"senderId":2,"receiverId":1,"content":"second"}}`))
		_, _, _ = conn.ReadMessage()
	})
	session := newTestSession(backend.url())
	runSession(t, session)
	reconciler := projection.NewReconciler(logs.GetLoggerFromLevel(slog.LevelDebug), identity)

	// When both frames are received and merged
	for range 2 {
		select {
		case raw := <-session.Messages():
			outcome, _ := reconciler.RecordIncoming(raw)
			req.Equal(projection.OutcomeAppended, outcome)
		case <-time.After(time.Second):
			t.Fatal("message not received")
		}
	}

	// Then both entries exist with their exact ids
	conversation := reconciler.GetConversation(1, 2)
	req.Len(conversation, 2)
	req.Equal("9007199254740993", conversation[0].ID)
	req.Equal("9007199254740992", conversation[1].ID)
}

func TestSession_PublishRoundTrip(t *testing.T) {
	req := require.New(t)
	published := make(chan Frame, 1)
	backend := newFakeBackend(t, func(conn *websocket.Conn) {
		readFrame(conn)
		published <- readFrame(conn)
		_, _, _ = conn.ReadMessage()
	})
	session := newTestSession(backend.url())
	runSession(t, session)
	req.Eventually(session.Connected, time.Second, 10*time.Millisecond)

	// When a message is published
	err := session.Publish(context.Background(), event.DestinationSend, event.OutgoingMessage{
		SenderID: 1, ReceiverID: 2, Content: "Xin chào", TempID: "t1",
	})
	req.NoError(err)

	// Then the backend gets a send frame for the destination
	frame := <-published
	req.Equal(FrameSend, frame.Type)
	req.Equal(event.DestinationSend, frame.Destination)
	var data map[string]any
	req.NoError(json.Unmarshal(frame.Data, &data))
	req.Equal("Xin chào", data["content"])
	req.Equal("t1", data["tempId"])
	req.Equal(float64(2), data["receiverId"])
}

func TestSession_PublishWithoutConnection(t *testing.T) {
	req := require.New(t)
	session := newTestSession("ws://127.0.0.1:1")

	err := session.Publish(context.Background(), event.DestinationTyping, event.OutgoingTyping{SenderID: 1, ReceiverID: 2})
	req.True(stdErrors.Is(err, errors.ErrNotConnected))
	req.False(session.Connected())
}

func TestSession_ReconnectsAfterDrop(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend(t, func(conn *websocket.Conn) {
		readFrame(conn)
		// Drop the connection right after the subscription
	})
	session := newTestSession(backend.url())
	runSession(t, session)

	req.Eventually(func() bool {
		return backend.connections.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_RejectedHandshakeKeepsRetrying(t *testing.T) {
	req := require.New(t)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	session := newTestSession("ws" + strings.TrimPrefix(server.URL, "http"))
	runSession(t, session)

	req.Eventually(func() bool { return attempts.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	req.False(session.Connected())
}

func TestSession_CloseStopsRun(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend(t, func(conn *websocket.Conn) {
		readFrame(conn)
		_, _, _ = conn.ReadMessage()
	})
	session := newTestSession(backend.url())

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()
	req.Eventually(session.Connected, time.Second, 10*time.Millisecond)

	req.NoError(session.Close())

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("session did not stop on Close")
	}
	err := session.Publish(context.Background(), event.DestinationSend, map[string]any{})
	req.True(stdErrors.Is(err, errors.ErrNotConnected))
	req.True(stdErrors.Is(err, errors.ErrTransportClosed))
}
