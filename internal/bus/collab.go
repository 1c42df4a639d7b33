// ABOUTME: Collaboration coordinator driving the start/accept/reject/end handshake
// ABOUTME: Serializes transitions per agent pair and fans updates out to both rooms

package bus

import (
	"context"
	"fmt"
	"sync"
)

// Collaboration actions.
const (
	ActionStart  = "start"
	ActionAccept = "accept"
	ActionReject = "reject"
	ActionEnd    = "end"
)

// CollaborationRequest is one inbound collaboration transition. Transient:
// it exists only until the broadcast it triggers.
type CollaborationRequest struct {
	SourceAgentID string
	TargetAgentID string
	Action        string
	Context       any
}

// collabState tracks the non-terminal states of a collaboration. Rejected
// and ended collaborations release their bookkeeping instead.
type collabState int

const (
	collabRequested collabState = iota
	collabAccepted
)

// collaboration is the coordinator-held record of one in-flight handshake.
type collaboration struct {
	seq   uint64
	state collabState
}

// pairKey identifies the unordered agent pair of a collaboration.
type pairKey struct {
	lo, hi string
}

func makePairKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// pairEntry serializes all transitions for one agent pair. Holding mu
// across the directory call and the fan-out guarantees that updates for a
// collaboration are broadcast in commit order and that racing transitions
// are decided by whichever one locks first.
type pairEntry struct {
	mu      sync.Mutex
	nextSeq uint64
	current *collaboration
}

// coordinator owns the per-pair bookkeeping.
type coordinator struct {
	mu    sync.Mutex
	pairs map[pairKey]*pairEntry
}

func newCoordinator() *coordinator {
	return &coordinator{pairs: make(map[pairKey]*pairEntry)}
}

// entry returns the serialization point for a pair, creating it on first
// use. Entries are never removed so every goroutine always locks the same
// one; the per-collaboration record inside is what gets released.
func (c *coordinator) entry(k pairKey) *pairEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pairs[k]
	if !ok {
		e = &pairEntry{}
		c.pairs[k] = e
	}
	return e
}

// Collaborate processes one collaboration transition on behalf of the
// requesting connection. Failures surface as an error event to that
// connection only; committed transitions broadcast a collaboration-update
// to both agents' rooms with no connection receiving it twice.
func (s *Service) Collaborate(ctx context.Context, sess Session, req CollaborationRequest) {
	if req.SourceAgentID == "" || req.TargetAgentID == "" {
		sess.Send(NewError("Collaboration request requires sourceAgentId and targetAgentId"))
		return
	}

	e := s.collabs.entry(makePairKey(req.SourceAgentID, req.TargetAgentID))
	e.mu.Lock()
	defer e.mu.Unlock()

	switch req.Action {
	case ActionStart:
		s.startCollaboration(ctx, sess, e, req)
	case ActionAccept:
		if !s.requireState(sess, e, req, collabRequested) {
			return
		}
		e.current.state = collabAccepted
		s.fanOutCollab(req)
	case ActionReject:
		if !s.requireState(sess, e, req, collabRequested) {
			return
		}
		e.current = nil
		s.fanOutCollab(req)
	case ActionEnd:
		if !s.requireState(sess, e, req, collabAccepted) {
			return
		}
		e.current = nil
		s.fanOutCollab(req)
	default:
		sess.Send(NewError(fmt.Sprintf("Unknown collaboration action %q", req.Action)))
	}
}

// startCollaboration drives the directory call and, on success, commits the
// new collaboration record. On failure no local state is left behind, so no
// partial view ever reaches other subscribers.
func (s *Service) startCollaboration(ctx context.Context, sess Session, e *pairEntry, req CollaborationRequest) {
	if err := s.dir.StartCollaboration(ctx, req.SourceAgentID, req.TargetAgentID); err != nil {
		s.logger.Warn("collaboration start failed",
			"source_agent_id", req.SourceAgentID,
			"target_agent_id", req.TargetAgentID,
			"error", err)
		sess.Send(NewError(fmt.Sprintf(
			"Failed to start collaboration between %s and %s", req.SourceAgentID, req.TargetAgentID)))
		return
	}

	e.nextSeq++
	e.current = &collaboration{seq: e.nextSeq, state: collabRequested}
	s.fanOutCollab(req)
}

// requireState checks that the pair's newest collaboration is in the given
// state; otherwise it emits a conflict error to the requester.
func (s *Service) requireState(sess Session, e *pairEntry, req CollaborationRequest, want collabState) bool {
	if e.current == nil {
		sess.Send(NewError(fmt.Sprintf(
			"No active collaboration between %s and %s", req.SourceAgentID, req.TargetAgentID)))
		return false
	}
	if e.current.state != want {
		msg := fmt.Sprintf("Collaboration between %s and %s already left the requested state",
			req.SourceAgentID, req.TargetAgentID)
		if want == collabAccepted {
			msg = fmt.Sprintf("Collaboration between %s and %s has not been accepted",
				req.SourceAgentID, req.TargetAgentID)
		}
		sess.Send(NewError(msg))
		return false
	}
	return true
}

// fanOutCollab broadcasts one committed transition to both participants'
// rooms, deduplicated so a connection subscribed to both agents receives a
// single event.
func (s *Service) fanOutCollab(req CollaborationRequest) {
	ev := NewCollabUpdate(req.SourceAgentID, req.TargetAgentID, req.Action, req.Context)
	s.rooms.BroadcastAll([]string{
		AgentTopic(req.SourceAgentID),
		AgentTopic(req.TargetAgentID),
	}, ev)
}
