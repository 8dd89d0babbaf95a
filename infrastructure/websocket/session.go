// Package websocket is the messaging transport of the chat client.
// A Session keeps one authenticated websocket connection to the backend,
// subscribed to the personal channel of the local participant.
package websocket

import (
	"bytes"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultBufferSize        = 64
)

// Frame types of the envelope exchanged with the backend.
const (
	FrameSubscribe = "subscribe"
	FrameSend      = "send"
	FrameMessage   = "message"
	FrameTyping    = "typing"
)

// Frame is the JSON envelope of every websocket text message.
type Frame struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

type Settings struct {
	URL               string
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	BufferSize        int
}

type Session struct {
	log      *slog.Logger
	identity domain.Identity
	settings Settings
	dialer   *websocket.Dialer

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	messages  chan event.RawPayload
	typing    chan event.RawPayload
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSession(log *slog.Logger, identity domain.Identity, settings Settings) *Session {
	if settings.ReconnectDelay <= 0 {
		settings.ReconnectDelay = DefaultReconnectDelay
	}
	if settings.HeartbeatInterval <= 0 {
		settings.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if settings.HandshakeTimeout <= 0 {
		settings.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if settings.BufferSize <= 0 {
		settings.BufferSize = DefaultBufferSize
	}
	return &Session{
		log:      log,
		identity: identity,
		settings: settings,
		dialer:   &websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout},
		messages: make(chan event.RawPayload, settings.BufferSize),
		typing:   make(chan event.RawPayload, settings.BufferSize),
		closed:   make(chan struct{}),
	}
}

func (s *Session) Messages() <-chan event.RawPayload {
	return s.messages
}

func (s *Session) Typing() <-chan event.RawPayload {
	return s.typing
}

func (s *Session) Connected() bool {
	return s.current() != nil
}

// Run connects, and reconnects after ReconnectDelay each time the connection
// is lost, until ctx is canceled or the session is closed.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-s.closed:
			return nil
		default:
		}

		err := s.connectAndServe(ctx)
		if ctx.Err() != nil || s.isClosed() {
			s.log.Debug("Context done, stopping transport session")
			return nil
		}
		s.log.Warn("Connection lost, reconnecting", "delay", s.settings.ReconnectDelay, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil
		case <-time.After(s.settings.ReconnectDelay):
		}
	}
}

func (s *Session) connectAndServe(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.identity.Token)

	conn, _, err := s.dialer.DialContext(ctx, s.settings.URL, header)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	pongWait := 2 * s.settings.HeartbeatInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := s.write(conn, Frame{Type: FrameSubscribe, Destination: event.PersonalChannel(s.identity.ID)}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	s.setConn(conn)
	defer s.setConn(nil)
	s.log.Info("Connected", "url", s.settings.URL, "participant", s.identity.ID)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(connCtx, conn)
	go func() {
		select {
		case <-connCtx.Done():
		case <-s.closed:
		}
		_ = conn.Close()
	}()

	return s.readLoop(connCtx, conn, pongWait)
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, pongWait time.Duration) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("Dropping unreadable frame", "error", err)
			continue
		}
		raw, err := decodePayload(frame.Data)
		if err != nil || raw == nil {
			s.log.Warn("Dropping frame without payload", "type", frame.Type, "error", err)
			continue
		}

		switch frame.Type {
		case FrameMessage:
			select {
			case s.messages <- raw:
			case <-ctx.Done():
				return ctx.Err()
			}
		case FrameTyping:
			select {
			case s.typing <- raw:
			default:
				s.log.Debug("Typing channel full, signal dropped")
			}
		default:
			s.log.Debug("Ignoring frame", "type", frame.Type)
		}
	}
}

func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.settings.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.settings.HeartbeatInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Debug("Ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// Publish sends payload to destination over the live connection.
// Without one it fails with errors.ErrNotConnected; nothing is queued.
func (s *Session) Publish(ctx context.Context, destination string, payload any) error {
	if s.isClosed() {
		return fmt.Errorf("%w: %w", errors.ErrNotConnected, errors.ErrTransportClosed)
	}
	conn := s.current()
	if conn == nil {
		return errors.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	if err := s.write(conn, Frame{Type: FrameSend, Destination: destination, Data: data}); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrNotConnected, err)
	}
	return nil
}

// Close stops the session for good. The live connection, if any, is closed by its watcher.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

func (s *Session) write(conn *websocket.Conn, frame Frame) error {
	frame.Timestamp = time.Now().UnixMilli()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.settings.HeartbeatInterval))
	return conn.WriteJSON(frame)
}

func (s *Session) current() *websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// decodePayload keeps numbers as json.Number so ids beyond 2^53 survive intact.
func decodePayload(data json.RawMessage) (event.RawPayload, error) {
	var raw event.RawPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
