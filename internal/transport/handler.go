// ABOUTME: WebSocket accept handler bridging HTTP upgrades to bus sessions
// ABOUTME: Tracks live sessions and guarantees leave-all on every disconnect

package transport

import (
	"log/slog"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/swarmlink/agentbus/internal/bus"
)

// Handler upgrades HTTP requests to WebSocket sessions and wires them into
// the bus. Authentication, if any, happens in middleware before this point.
type Handler struct {
	svc            *bus.Service
	originPatterns []string
	logger         *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewHandler creates a transport handler. originPatterns is passed through
// to the WebSocket accept check; empty means same-origin only.
func NewHandler(svc *bus.Service, originPatterns []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:            svc,
		originPatterns: originPatterns,
		logger:         logger.With("component", "transport"),
		sessions:       make(map[string]*session),
	}
}

// HandleWebSocket is the HTTP handler for the bus endpoint. It blocks for
// the lifetime of the connection and removes the session from every room
// before the connection handle is discarded.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", "error", err)
		return
	}

	sess := newSession(conn, h.logger)
	h.track(sess)
	h.svc.Connect(sess)

	h.logger.Debug("session opened", "connection_id", sess.ID())

	go sess.writePump()
	sess.readPump(h.svc)

	// readPump has returned: this IS the close notification. Membership
	// removal happens here, synchronously, before the handle is dropped.
	h.svc.Disconnect(sess)
	h.untrack(sess)

	h.logger.Debug("session closed", "connection_id", sess.ID())
}

func (h *Handler) track(sess *session) {
	h.mu.Lock()
	h.sessions[sess.ID()] = sess
	h.mu.Unlock()
}

func (h *Handler) untrack(sess *session) {
	h.mu.Lock()
	delete(h.sessions, sess.ID())
	h.mu.Unlock()
}

// SessionCount returns the number of live sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close tears down every live session. Read pumps observe the closed
// connections and run their own leave-all on the way out.
func (h *Handler) Close() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}
