// ABOUTME: Outbound event types pushed to subscribed connections
// ABOUTME: Tagged union with server-stamped timestamps at the moment of emission

package bus

import (
	"time"

	"github.com/swarmlink/agentbus/internal/directory"
)

// Wire type tags for outbound events.
const (
	KindPreviewState = "agent-preview-state"
	KindError        = "error"
	KindCollabUpdate = "collaboration-update"
	KindAgentUpdate  = "agent-update"
	KindCapability   = "capability-update"
	KindLLMUpdate    = "llm-update"
)

// Event is one outbound message to a connection. Each concrete event type
// marshals directly to its wire shape; Kind returns the wire type tag.
type Event interface {
	Kind() string
}

// PreviewStateEvent is the point-in-time registration snapshot sent to a
// connection when its subscription succeeds. Freshness from that moment on
// comes only from subsequent agent-update broadcasts.
type PreviewStateEvent struct {
	Type          string    `json:"type"`
	AgentID       string    `json:"agentId"`
	Status        string    `json:"status"`
	LastActivity  time.Time `json:"lastActivity"`
	Collaborators []string  `json:"collaborators"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *PreviewStateEvent) Kind() string { return KindPreviewState }

// NewPreviewState builds a snapshot event from a directory registration.
func NewPreviewState(reg *directory.Registration) *PreviewStateEvent {
	collaborators := reg.Collaborators
	if collaborators == nil {
		collaborators = []string{}
	}
	return &PreviewStateEvent{
		Type:          KindPreviewState,
		AgentID:       reg.AgentID,
		Status:        reg.Status,
		LastActivity:  reg.LastActivity,
		Collaborators: collaborators,
		Timestamp:     time.Now(),
	}
}

// ErrorEvent is a connection-local failure reply. It is never broadcast.
type ErrorEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ErrorEvent) Kind() string { return KindError }

func NewError(message string) *ErrorEvent {
	return &ErrorEvent{Type: KindError, Message: message, Timestamp: time.Now()}
}

// CollabUpdateEvent is fanned out to both participating agents' rooms when
// a collaboration transition commits.
type CollabUpdateEvent struct {
	Type          string    `json:"type"`
	SourceAgentID string    `json:"sourceAgentId"`
	TargetAgentID string    `json:"targetAgentId"`
	Action        string    `json:"action"`
	Context       any       `json:"context,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *CollabUpdateEvent) Kind() string { return KindCollabUpdate }

func NewCollabUpdate(sourceAgentID, targetAgentID, action string, context any) *CollabUpdateEvent {
	return &CollabUpdateEvent{
		Type:          KindCollabUpdate,
		SourceAgentID: sourceAgentID,
		TargetAgentID: targetAgentID,
		Action:        action,
		Context:       context,
		Timestamp:     time.Now(),
	}
}

// AgentUpdateEvent carries a state delta for one agent.
type AgentUpdateEvent struct {
	Type      string    `json:"type"`
	AgentID   string    `json:"agentId"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *AgentUpdateEvent) Kind() string { return KindAgentUpdate }

func NewAgentUpdate(agentID string, data any) *AgentUpdateEvent {
	return &AgentUpdateEvent{Type: KindAgentUpdate, AgentID: agentID, Data: data, Timestamp: time.Now()}
}

// CapabilityUpdateEvent carries a capability delta for one agent.
type CapabilityUpdateEvent struct {
	Type         string    `json:"type"`
	AgentID      string    `json:"agentId"`
	CapabilityID string    `json:"capabilityId"`
	Data         any       `json:"data,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *CapabilityUpdateEvent) Kind() string { return KindCapability }

func NewCapabilityUpdate(agentID, capabilityID string, data any) *CapabilityUpdateEvent {
	return &CapabilityUpdateEvent{
		Type:         KindCapability,
		AgentID:      agentID,
		CapabilityID: capabilityID,
		Data:         data,
		Timestamp:    time.Now(),
	}
}

// LLMUpdateEvent carries a model/provider change. It is not agent-scoped;
// it goes to the global LLM topic.
type LLMUpdateEvent struct {
	Type      string    `json:"type"`
	LLMID     string    `json:"llmId"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *LLMUpdateEvent) Kind() string { return KindLLMUpdate }

func NewLLMUpdate(llmID string, data any) *LLMUpdateEvent {
	return &LLMUpdateEvent{Type: KindLLMUpdate, LLMID: llmID, Data: data, Timestamp: time.Now()}
}
