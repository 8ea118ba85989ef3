// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, and the scope gate

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serve(t *testing.T, want Scope, header string) (*httptest.ResponseRecorder, *Claims) {
	t.Helper()
	var got *Claims
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := FromContext(r.Context()); ok {
			got = &c
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	Middleware(newTestVerifier(t), want)(handler).ServeHTTP(rec, req)
	return rec, got
}

func TestMiddleware_ValidToken(t *testing.T) {
	token, _ := newTestVerifier(t).Generate("ops", ScopeRead, time.Hour)

	rec, claims := serve(t, ScopeRead, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if claims == nil || claims.Subject != "ops" {
		t.Errorf("claims = %+v, want subject ops", claims)
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	readToken, _ := newTestVerifier(t).Generate("ops", ScopeRead, time.Hour)
	expired, _ := newTestVerifier(t).Generate("ops", ScopeAdmin, -time.Hour)

	tests := []struct {
		name   string
		want   Scope
		header string
		status int
		body   string
	}{
		{"missing header", ScopeRead, "", http.StatusUnauthorized, "missing authorization header"},
		{"basic auth", ScopeRead, "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"empty bearer", ScopeRead, "Bearer ", http.StatusUnauthorized, "empty token"},
		{"garbage", ScopeRead, "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"expired", ScopeRead, "Bearer " + expired, http.StatusUnauthorized, "token expired"},
		{"insufficient scope", ScopeAdmin, "Bearer " + readToken, http.StatusForbidden, "admin scope required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, claims := serve(t, tt.want, tt.header)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.body)
			}
			if claims != nil {
				t.Error("handler should not have run")
			}
		})
	}
}
