// ABOUTME: Topic-keyed room multiplexer mapping topics to subscribed sessions
// ABOUTME: Join/leave/broadcast are mutually exclusive per topic; empty rooms are reclaimed

package bus

import (
	"log/slog"
	"sort"
	"sync"
)

// TopicLLM is the fixed global topic for model/provider updates. Every
// session joins it on connect; it is not agent-scoped.
const TopicLLM = "llm:global"

// AgentTopic returns the room topic for one agent's event stream.
func AgentTopic(agentID string) string {
	return "agent:" + agentID
}

// Session is the bus's weak reference to one live connection. The transport
// owns the connection lifecycle; the bus only looks up membership and sends.
// Send must never block: it returns false when the event was dropped because
// the connection is closed or its buffer is full.
type Session interface {
	ID() string
	Send(ev Event) bool
}

// room holds the membership set for a single topic. Every membership read
// or write holds room.mu, so a broadcast snapshots membership atomically:
// a concurrent join either fully misses or fully receives the broadcast,
// and a member leaving mid-fan-out still gets the in-flight event.
type room struct {
	mu      sync.Mutex
	members map[string]Session
}

// Rooms is the multiplexer. Rooms are created lazily on first join and
// dropped when their membership becomes empty.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger *slog.Logger
}

// NewRooms creates an empty multiplexer. Pass nil logger for default.
func NewRooms(logger *slog.Logger) *Rooms {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rooms{
		rooms:  make(map[string]*room),
		logger: logger.With("component", "rooms"),
	}
}

// Join adds a session to a topic's membership set. Idempotent: re-joining
// an already joined topic is not an error. r.mu is held for the whole
// insertion so a concurrent leave cannot reclaim the room between the
// lookup and the membership write.
func (r *Rooms) Join(topic string, sess Session) {
	r.mu.Lock()
	rm, ok := r.rooms[topic]
	if !ok {
		rm = &room{members: make(map[string]Session)}
		r.rooms[topic] = rm
	}
	rm.mu.Lock()
	rm.members[sess.ID()] = sess
	rm.mu.Unlock()
	r.mu.Unlock()

	r.logger.Debug("session joined room", "topic", topic, "connection_id", sess.ID())
}

// Leave removes a session from a topic. Idempotent: leaving a topic the
// session never joined is a no-op. If the room becomes empty it is dropped.
func (r *Rooms) Leave(topic string, sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(topic, sess.ID())
}

// leaveLocked removes a member and reclaims the room if empty.
// Caller must hold r.mu for writing.
func (r *Rooms) leaveLocked(topic, connID string) {
	rm, ok := r.rooms[topic]
	if !ok {
		return
	}

	rm.mu.Lock()
	_, present := rm.members[connID]
	delete(rm.members, connID)
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		delete(r.rooms, topic)
	}

	if present {
		r.logger.Debug("session left room", "topic", topic, "connection_id", connID)
	}
}

// LeaveAll removes a session from every room it belongs to. Called
// synchronously with the transport's close notification, before the
// connection handle is discarded.
func (r *Rooms) LeaveAll(sess Session) {
	connID := sess.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	for topic := range r.rooms {
		r.leaveLocked(topic, connID)
	}
}

// Broadcast sends an event to every current member of a topic. A topic with
// no room is a no-op, not an error. Sends are non-blocking; delivery to a
// closed connection is treated as tolerable silent loss.
func (r *Rooms) Broadcast(topic string, ev Event) {
	r.BroadcastAll([]string{topic}, ev)
}

// BroadcastAll sends one event across several topics, delivering at most
// once per session even when a session is a member of more than one of the
// topics. Topics are locked in sorted order.
func (r *Rooms) BroadcastAll(topics []string, ev Event) {
	sorted := make([]string, 0, len(topics))
	seen := make(map[string]bool, len(topics))
	for _, t := range topics {
		if !seen[t] {
			seen[t] = true
			sorted = append(sorted, t)
		}
	}
	sort.Strings(sorted)

	// Collect unique recipients under the room locks so the membership
	// snapshot is consistent per topic, then send outside them.
	targets := make(map[string]Session)

	r.mu.RLock()
	for _, topic := range sorted {
		rm, ok := r.rooms[topic]
		if !ok {
			continue
		}
		rm.mu.Lock()
		for id, sess := range rm.members {
			targets[id] = sess
		}
		rm.mu.Unlock()
	}
	r.mu.RUnlock()

	for id, sess := range targets {
		if !sess.Send(ev) {
			r.logger.Debug("dropped event for slow or closed session",
				"connection_id", id,
				"event", ev.Kind())
		}
	}
}

// MemberCount returns the current membership size of a topic. Zero for
// topics with no room.
func (r *Rooms) MemberCount(topic string) int {
	r.mu.RLock()
	rm, ok := r.rooms[topic]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}
