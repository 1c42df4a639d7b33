// ABOUTME: Subscription handling and producer-facing broadcast operations
// ABOUTME: Validates targets against the directory and mutates room membership

package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/swarmlink/agentbus/internal/directory"
)

// Service is the coordination bus core. It processes subscribe and
// collaboration requests from connections and exposes the broadcast
// operations used by producers elsewhere in the system.
type Service struct {
	rooms   *Rooms
	dir     directory.Directory
	collabs *coordinator
	logger  *slog.Logger
}

// NewService creates the bus core. The directory is an explicitly passed
// dependency so the core can be exercised with a mock in tests.
func NewService(rooms *Rooms, dir directory.Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rooms:   rooms,
		dir:     dir,
		collabs: newCoordinator(),
		logger:  logger.With("component", "bus"),
	}
}

// Rooms exposes the multiplexer for transport wiring.
func (s *Service) Rooms() *Rooms {
	return s.rooms
}

// Connect registers a freshly opened session with the bus. Every session
// holds membership in the global LLM topic for its lifetime.
func (s *Service) Connect(sess Session) {
	s.rooms.Join(TopicLLM, sess)
	s.logger.Debug("session connected", "connection_id", sess.ID())
}

// Disconnect removes a session from every room. Must be called
// synchronously with the transport's close notification, before the
// session handle is discarded.
func (s *Service) Disconnect(sess Session) {
	s.rooms.LeaveAll(sess)
	s.logger.Debug("session disconnected", "connection_id", sess.ID())
}

// Subscribe processes a subscribe-agent-preview request. An unknown agent
// yields a single error event to the requesting connection and no
// membership change; a known agent yields room membership plus a
// point-in-time registration snapshot.
func (s *Service) Subscribe(ctx context.Context, sess Session, agentID string) {
	reg, err := s.dir.GetRegistration(ctx, agentID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			sess.Send(NewError(fmt.Sprintf("Agent %s not found", agentID)))
			return
		}
		s.logger.Warn("directory lookup failed",
			"agent_id", agentID,
			"connection_id", sess.ID(),
			"error", err)
		sess.Send(NewError(fmt.Sprintf("Failed to look up agent %s", agentID)))
		return
	}

	s.rooms.Join(AgentTopic(agentID), sess)

	// Advisory only: a listener registration failure never aborts the
	// subscription or surfaces to the client.
	if err := s.dir.RegisterPreviewListener(ctx, agentID, sess.ID()); err != nil {
		s.logger.Debug("preview listener registration failed",
			"agent_id", agentID,
			"connection_id", sess.ID(),
			"error", err)
	}

	sess.Send(NewPreviewState(reg))
}

// Unsubscribe leaves the agent's room. Always succeeds, even if the
// connection was never subscribed.
func (s *Service) Unsubscribe(sess Session, agentID string) {
	s.rooms.Leave(AgentTopic(agentID), sess)
}

// BroadcastAgentUpdate pushes a state delta to every connection subscribed
// to the agent. Fire-and-forget: no subscribers means a silent no-op, and
// the directory is never consulted.
func (s *Service) BroadcastAgentUpdate(agentID string, data any) {
	s.rooms.Broadcast(AgentTopic(agentID), NewAgentUpdate(agentID, data))
}

// BroadcastCapabilityUpdate pushes a capability delta to the agent's room.
func (s *Service) BroadcastCapabilityUpdate(agentID, capabilityID string, data any) {
	s.rooms.Broadcast(AgentTopic(agentID), NewCapabilityUpdate(agentID, capabilityID, data))
}

// BroadcastLLMUpdate pushes a model/provider change to the global LLM
// topic, reaching every connection regardless of agent subscriptions.
func (s *Service) BroadcastLLMUpdate(llmID string, data any) {
	s.rooms.Broadcast(TopicLLM, NewLLMUpdate(llmID, data))
}
