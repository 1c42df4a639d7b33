// ABOUTME: HTTP API handlers for agent registration and producer broadcasts
// ABOUTME: Provides /api/agents and the fire-and-forget /api/broadcast endpoints

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/swarmlink/agentbus/internal/directory"
)

// AgentResponse is the JSON shape for a directory registration.
type AgentResponse struct {
	AgentID       string    `json:"agentId"`
	Status        string    `json:"status"`
	LastActivity  time.Time `json:"lastActivity"`
	Collaborators []string  `json:"collaborators"`
}

// UpsertAgentRequest is the JSON request body for PUT /api/agents/{id}.
type UpsertAgentRequest struct {
	Status        string   `json:"status"`
	Collaborators []string `json:"collaborators,omitempty"`
}

// BroadcastAgentRequest is the JSON request body for POST /api/broadcast/agent.
type BroadcastAgentRequest struct {
	AgentID string          `json:"agentId"`
	Data    json.RawMessage `json:"data"`
}

// BroadcastCapabilityRequest is the JSON request body for POST /api/broadcast/capability.
type BroadcastCapabilityRequest struct {
	AgentID      string          `json:"agentId"`
	CapabilityID string          `json:"capabilityId"`
	Data         json.RawMessage `json:"data"`
}

// BroadcastLLMRequest is the JSON request body for POST /api/broadcast/llm.
type BroadcastLLMRequest struct {
	LLMID string          `json:"llmId"`
	Data  json.RawMessage `json:"data"`
}

func toAgentResponse(reg *directory.Registration) AgentResponse {
	collaborators := reg.Collaborators
	if collaborators == nil {
		collaborators = []string{}
	}
	return AgentResponse{
		AgentID:       reg.AgentID,
		Status:        reg.Status,
		LastActivity:  reg.LastActivity,
		Collaborators: collaborators,
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleAgents handles GET /api/agents requests.
// It returns a JSON array of every registered agent.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	regs, err := s.registry.ListRegistrations(r.Context())
	if err != nil {
		s.logger.Error("failed to list registrations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]AgentResponse, 0, len(regs))
	for _, reg := range regs {
		response = append(response, toAgentResponse(reg))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// handleAgentByID handles GET and PUT on /api/agents/{id}.
func (s *Server) handleAgentByID(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	if agentID == "" || strings.Contains(agentID, "/") {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		reg, err := s.registry.GetRegistration(r.Context(), agentID)
		if errors.Is(err, directory.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "agent not found")
			return
		}
		if err != nil {
			s.logger.Error("failed to get registration", "agent_id", agentID, "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(toAgentResponse(reg))

	case http.MethodPut:
		var req UpsertAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Status == "" {
			s.sendJSONError(w, http.StatusBadRequest, "status is required")
			return
		}

		reg := &directory.Registration{
			AgentID:       agentID,
			Status:        req.Status,
			LastActivity:  time.Now().UTC(),
			Collaborators: req.Collaborators,
		}
		if err := s.registry.UpsertRegistration(r.Context(), reg); err != nil {
			s.logger.Error("failed to upsert registration", "agent_id", agentID, "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		// Subscribers see directory changes as agent-update events.
		s.bus.BroadcastAgentUpdate(agentID, map[string]any{"status": req.Status})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(toAgentResponse(reg))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleBroadcastAgent handles POST /api/broadcast/agent requests.
// Fire-and-forget: delivery is not acknowledged and a missing agent or
// empty room is not an error.
func (s *Server) handleBroadcastAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req BroadcastAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	// Best-effort activity tracking; the broadcast itself never consults
	// the directory.
	if err := s.registry.TouchActivity(r.Context(), req.AgentID); err != nil && !errors.Is(err, directory.ErrNotFound) {
		s.logger.Debug("failed to touch activity", "agent_id", req.AgentID, "error", err)
	}

	s.bus.BroadcastAgentUpdate(req.AgentID, decodeData(req.Data))
	w.WriteHeader(http.StatusAccepted)
}

// handleBroadcastCapability handles POST /api/broadcast/capability requests.
func (s *Server) handleBroadcastCapability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req BroadcastCapabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" || req.CapabilityID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agentId and capabilityId are required")
		return
	}

	s.bus.BroadcastCapabilityUpdate(req.AgentID, req.CapabilityID, decodeData(req.Data))
	w.WriteHeader(http.StatusAccepted)
}

// handleBroadcastLLM handles POST /api/broadcast/llm requests.
func (s *Server) handleBroadcastLLM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req BroadcastLLMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.LLMID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "llmId is required")
		return
	}

	s.bus.BroadcastLLMUpdate(req.LLMID, decodeData(req.Data))
	w.WriteHeader(http.StatusAccepted)
}

// decodeData keeps opaque payloads as decoded JSON so they re-marshal
// cleanly inside outbound events.
func decodeData(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
