// ABOUTME: Agent Directory contract and data types consumed by the coordination bus
// ABOUTME: Defines Registration snapshots and the Directory interface boundary

package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested agent does not exist.
var ErrNotFound = errors.New("agent not found")

// ErrAgentUnavailable is returned when a collaboration cannot start because
// a participant is offline or otherwise unreachable.
var ErrAgentUnavailable = errors.New("agent unavailable")

// Agent status values.
const (
	StatusActive  = "active"
	StatusIdle    = "idle"
	StatusOffline = "offline"
)

// Registration is an immutable snapshot of one agent's directory state at
// query time. The bus never mutates it.
type Registration struct {
	AgentID       string
	Status        string
	LastActivity  time.Time
	Collaborators []string
}

// Directory is the read-mostly boundary the coordination bus depends on.
// Implementations must be safe for concurrent use.
type Directory interface {
	// GetRegistration looks up one agent. Returns ErrNotFound when the
	// agent does not exist.
	GetRegistration(ctx context.Context, agentID string) (*Registration, error)

	// StartCollaboration records the beginning of a collaboration between
	// two agents. Fails when either agent is missing or unreachable.
	StartCollaboration(ctx context.Context, sourceAgentID, targetAgentID string) error

	// RegisterPreviewListener records that a connection is observing an
	// agent's state stream. Advisory and best-effort: callers must not let
	// its failure abort a subscription.
	RegisterPreviewListener(ctx context.Context, agentID, connectionID string) error
}
