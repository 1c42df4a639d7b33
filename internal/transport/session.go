// ABOUTME: WebSocket-backed session implementing the bus Session contract
// ABOUTME: One read pump and one write pump per connection; sends never block

package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/swarmlink/agentbus/internal/bus"
)

const (
	// sendBufferSize is the outbound channel buffer per session. Messages
	// are assumed bounded and small; overflow drops for that session only.
	sendBufferSize = 64

	// writeTimeout bounds a single frame write to a client.
	writeTimeout = 5 * time.Second
)

// session is one live client connection. The transport owns its lifecycle;
// the bus only holds it as a membership reference.
type session struct {
	id     string
	conn   *websocket.Conn
	send   chan bus.Event
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

func newSession(conn *websocket.Conn, logger *slog.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &session{
		id:     id,
		conn:   conn,
		send:   make(chan bus.Event, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("connection_id", id),
	}
}

// ID returns the unique connection identifier.
func (s *session) ID() string { return s.id }

// Send enqueues an event for the write pump. Non-blocking: returns false
// when the session is closed or its buffer is full, so a broadcast to a
// dead or slow connection is silent loss rather than a broadcaster error.
func (s *session) Send(ev bus.Event) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}

	select {
	case s.send <- ev:
		return true
	default:
		s.logger.Debug("dropping event for slow session", "event", ev.Kind())
		return false
	}
}

// writePump drains the send channel onto the wire until the session closes.
func (s *session) writePump() {
	defer func() { _ = s.conn.Close(websocket.StatusNormalClosure, "") }()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.send:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("failed to marshal outbound event", "event", ev.Kind(), "error", err)
				continue
			}
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err = s.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.cancel()
				return
			}
		}
	}
}

// readPump reads inbound frames and dispatches them to the bus until the
// connection drops. It returns only once the connection is finished, so the
// caller's leave-all runs synchronously with the close notification.
func (s *session) readPump(svc *bus.Service) {
	defer s.cancel()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return
		}
		s.dispatch(svc, data)
	}
}

// clientMessage is the inbound wire contract.
type clientMessage struct {
	Type          string          `json:"type"`
	AgentID       string          `json:"agentId,omitempty"`
	SourceAgentID string          `json:"sourceAgentId,omitempty"`
	TargetAgentID string          `json:"targetAgentId,omitempty"`
	Action        string          `json:"action,omitempty"`
	Context       json.RawMessage `json:"context,omitempty"`
}

// Inbound message types.
const (
	msgSubscribe     = "subscribe-agent-preview"
	msgUnsubscribe   = "unsubscribe-agent-preview"
	msgCollabRequest = "collaboration-request"
)

func (s *session) dispatch(svc *bus.Service, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.Send(bus.NewError("Invalid JSON message"))
		return
	}

	switch msg.Type {
	case msgSubscribe:
		if msg.AgentID == "" {
			s.Send(bus.NewError("agentId is required"))
			return
		}
		svc.Subscribe(s.ctx, s, msg.AgentID)
	case msgUnsubscribe:
		if msg.AgentID == "" {
			s.Send(bus.NewError("agentId is required"))
			return
		}
		svc.Unsubscribe(s, msg.AgentID)
	case msgCollabRequest:
		svc.Collaborate(s.ctx, s, bus.CollaborationRequest{
			SourceAgentID: msg.SourceAgentID,
			TargetAgentID: msg.TargetAgentID,
			Action:        msg.Action,
			Context:       decodeContext(msg.Context),
		})
	default:
		s.Send(bus.NewError("Unknown message type: " + msg.Type))
	}
}

// decodeContext keeps the opaque context payload as decoded JSON so it
// re-marshals cleanly inside the collaboration-update fan-out.
func decodeContext(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// close tears the session down from the server side.
func (s *session) close() {
	s.cancel()
	_ = s.conn.Close(websocket.StatusGoingAway, "server shutting down")
}
