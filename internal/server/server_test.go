// ABOUTME: Tests for the HTTP API, auth gating, and server lifecycle
// ABOUTME: Exercises handlers directly via httptest and Run via a real listener

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmlink/agentbus/internal/auth"
	"github.com/swarmlink/agentbus/internal/bus"
	"github.com/swarmlink/agentbus/internal/config"
	"github.com/swarmlink/agentbus/internal/directory"
)

// stubSession collects delivered events for assertions.
type stubSession struct {
	id string

	mu     sync.Mutex
	events []bus.Event
}

func (s *stubSession) ID() string { return s.id }

func (s *stubSession) Send(ev bus.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *stubSession) Events() []bus.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bus.Event(nil), s.events...)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr:        "127.0.0.1:0",
			ShutdownTimeout: 2 * time.Second,
		},
		Database: config.DatabaseConfig{Path: ":memory:"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *directory.MockDirectory, http.Handler) {
	t.Helper()

	dir := directory.NewMockDirectory()
	srv, err := New(cfg, dir, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.registerRoutes(mux)
	return srv, dir, mux
}

func TestHealthEndpoints(t *testing.T) {
	_, dir, mux := newTestServer(t, testConfig())
	dir.AddRegistration(&directory.Registration{AgentID: "a1", Status: directory.StatusActive})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAgents(t *testing.T) {
	_, dir, mux := newTestServer(t, testConfig())
	dir.AddRegistration(&directory.Registration{
		AgentID:       "agent-1",
		Status:        directory.StatusActive,
		Collaborators: []string{"agent-2"},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var agents []AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-1", agents[0].AgentID)
	assert.Equal(t, []string{"agent-2"}, agents[0].Collaborators)
}

func TestGetAgentByID(t *testing.T) {
	_, dir, mux := newTestServer(t, testConfig())
	dir.AddRegistration(&directory.Registration{AgentID: "agent-1", Status: directory.StatusIdle})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/agent-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var agent AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agent))
	assert.Equal(t, "agent-1", agent.AgentID)
	assert.Equal(t, directory.StatusIdle, agent.Status)
	assert.Equal(t, []string{}, agent.Collaborators, "nil collaborators marshal as []")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertAgentBroadcastsUpdate(t *testing.T) {
	srv, dir, mux := newTestServer(t, testConfig())
	dir.AddRegistration(&directory.Registration{AgentID: "agent-1", Status: directory.StatusIdle})

	watcher := &stubSession{id: "w1"}
	srv.Bus().Subscribe(t.Context(), watcher, "agent-1")
	require.Len(t, watcher.Events(), 1, "subscription snapshot")

	body, _ := json.Marshal(UpsertAgentRequest{Status: directory.StatusActive})
	req := httptest.NewRequest(http.MethodPut, "/api/agents/agent-1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	reg, err := dir.GetRegistration(t.Context(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, directory.StatusActive, reg.Status)

	events := watcher.Events()
	require.Len(t, events, 2)
	update, ok := events[1].(*bus.AgentUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "agent-1", update.AgentID)
}

func TestBroadcastEndpoints(t *testing.T) {
	srv, dir, mux := newTestServer(t, testConfig())
	dir.AddRegistration(&directory.Registration{AgentID: "agent-1", Status: directory.StatusActive})

	watcher := &stubSession{id: "w1"}
	srv.Bus().Connect(watcher)
	srv.Bus().Subscribe(t.Context(), watcher, "agent-1")
	snapshots := len(watcher.Events())

	post := func(path, body string) int {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusAccepted,
		post("/api/broadcast/agent", `{"agentId":"agent-1","data":{"k":"v"}}`))
	assert.Equal(t, http.StatusAccepted,
		post("/api/broadcast/capability", `{"agentId":"agent-1","capabilityId":"code-awareness","data":{}}`))
	assert.Equal(t, http.StatusAccepted,
		post("/api/broadcast/llm", `{"llmId":"claude","data":{}}`))

	events := watcher.Events()[snapshots:]
	require.Len(t, events, 3)
	assert.IsType(t, &bus.AgentUpdateEvent{}, events[0])
	assert.IsType(t, &bus.CapabilityUpdateEvent{}, events[1])
	assert.IsType(t, &bus.LLMUpdateEvent{}, events[2])

	// Fire-and-forget: an unknown agent is still accepted.
	assert.Equal(t, http.StatusAccepted,
		post("/api/broadcast/agent", `{"agentId":"ghost","data":{}}`))

	// Missing required fields are rejected.
	assert.Equal(t, http.StatusBadRequest, post("/api/broadcast/agent", `{}`))
	assert.Equal(t, http.StatusBadRequest, post("/api/broadcast/capability", `{"agentId":"agent-1"}`))
	assert.Equal(t, http.StatusBadRequest, post("/api/broadcast/llm", `{}`))
}

func TestAuthGating(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	_, _, mux := newTestServer(t, cfg)

	// Health stays open.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// API requires a token.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate("client-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRun_GracefulShutdown(t *testing.T) {
	dir := directory.NewMockDirectory()
	srv, err := New(testConfig(), dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.BoundAddr() != "" },
		2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.BoundAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
