// ABOUTME: Tests for the HTTP authentication middleware
// ABOUTME: Covers header tokens, query tokens, and rejection paths

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newAuthedHandler(t *testing.T, verifier TokenVerifier) (http.Handler, *string) {
	t.Helper()

	var gotClient string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClient = ClientFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(verifier)(inner), &gotClient
}

func TestMiddleware_BearerHeader(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret-key-for-jwt-signing"))
	handler, gotClient := newAuthedHandler(t, verifier)

	token, err := verifier.Generate("client-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if *gotClient != "client-1" {
		t.Errorf("client in context = %q, want %q", *gotClient, "client-1")
	}
}

func TestMiddleware_QueryToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret-key-for-jwt-signing"))
	handler, gotClient := newAuthedHandler(t, verifier)

	token, err := verifier.Generate("ws-client", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if *gotClient != "ws-client" {
		t.Errorf("client in context = %q, want %q", *gotClient, "ws-client")
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret-key-for-jwt-signing"))
	handler, _ := newAuthedHandler(t, verifier)

	tests := []struct {
		name    string
		prepare func(r *http.Request)
	}{
		{
			name:    "no credentials",
			prepare: func(r *http.Request) {},
		},
		{
			name: "malformed header",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			},
		},
		{
			name: "garbage token in query",
			prepare: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", "not-a-jwt")
				r.URL.RawQuery = q.Encode()
			},
		},
		{
			name: "expired token",
			prepare: func(r *http.Request) {
				token, _ := verifier.Generate("client-1", -time.Hour)
				r.Header.Set("Authorization", "Bearer "+token)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestClientFromContext_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ClientFromContext(req.Context()); got != "" {
		t.Errorf("ClientFromContext() = %q, want empty", got)
	}
}
