// ABOUTME: Mock Directory implementation for testing
// ABOUTME: Allows bus and server tests to run without SQLite

package directory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockDirectory is an in-memory Directory implementation for testing.
type MockDirectory struct {
	mu            sync.RWMutex
	registrations map[string]*Registration
	listeners     map[string][]string // agentID -> connection IDs

	// StartErr, when set, is returned by StartCollaboration.
	StartErr error
	// ListenerErr, when set, is returned by RegisterPreviewListener.
	ListenerErr error

	startCalls [][2]string
}

// NewMockDirectory creates an empty MockDirectory.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		registrations: make(map[string]*Registration),
		listeners:     make(map[string][]string),
	}
}

// AddRegistration stores a registration, defaulting the activity timestamp.
func (m *MockDirectory) AddRegistration(reg *Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *reg
	if r.LastActivity.IsZero() {
		r.LastActivity = time.Now().UTC()
	}
	if r.Collaborators == nil {
		r.Collaborators = []string{}
	}
	m.registrations[r.AgentID] = &r
}

// GetRegistration returns a copy of the stored registration.
func (m *MockDirectory) GetRegistration(ctx context.Context, agentID string) (*Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, ok := m.registrations[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *reg
	return &result, nil
}

// UpsertRegistration stores a registration copy.
func (m *MockDirectory) UpsertRegistration(ctx context.Context, reg *Registration) error {
	m.AddRegistration(reg)
	return nil
}

// ListRegistrations returns copies of all registrations.
func (m *MockDirectory) ListRegistrations(ctx context.Context) ([]*Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	regs := make([]*Registration, 0, len(m.registrations))
	for _, reg := range m.registrations {
		result := *reg
		regs = append(regs, &result)
	}
	return regs, nil
}

// TouchActivity bumps last activity for an agent.
func (m *MockDirectory) TouchActivity(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.registrations[agentID]
	if !ok {
		return ErrNotFound
	}
	reg.LastActivity = time.Now().UTC()
	return nil
}

// StartCollaboration validates both agents and records the call.
func (m *MockDirectory) StartCollaboration(ctx context.Context, sourceAgentID, targetAgentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StartErr != nil {
		return m.StartErr
	}
	for _, agentID := range []string{sourceAgentID, targetAgentID} {
		reg, ok := m.registrations[agentID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, agentID)
		}
		if reg.Status == StatusOffline {
			return fmt.Errorf("%w: %s", ErrAgentUnavailable, agentID)
		}
	}
	m.startCalls = append(m.startCalls, [2]string{sourceAgentID, targetAgentID})
	return nil
}

// StartCalls returns the recorded StartCollaboration invocations.
func (m *MockDirectory) StartCalls() [][2]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([][2]string, len(m.startCalls))
	copy(calls, m.startCalls)
	return calls
}

// RegisterPreviewListener records the observer unless ListenerErr is set.
func (m *MockDirectory) RegisterPreviewListener(ctx context.Context, agentID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListenerErr != nil {
		return m.ListenerErr
	}
	m.listeners[agentID] = append(m.listeners[agentID], connectionID)
	return nil
}

// PreviewListeners returns the recorded listener connection IDs for an agent.
func (m *MockDirectory) PreviewListeners(agentID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, len(m.listeners[agentID]))
	copy(ids, m.listeners[agentID])
	return ids
}
