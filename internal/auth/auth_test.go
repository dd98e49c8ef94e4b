package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

// makeToken builds an unsigned JWT with the given claims. The client only
// reads claims, it never verifies signatures.
func makeToken(t *testing.T, sub, role string, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{
		"sub":  sub,
		"role": role,
		"exp":  exp.Unix(),
	})
	if err != nil {
		t.Fatalf("failed to encode claims: %v", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(claims)
	sig := base64.RawURLEncoding.EncodeToString([]byte("sig"))
	return fmt.Sprintf("%s.%s.%s", header, payload, sig)
}

func TestLoginPINExtractsClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("grant_type"); got != "password" {
			t.Errorf("grant_type = %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "+4915112345678@workers.internal" {
			t.Errorf("email = %q", body["email"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  makeToken(t, "user-1", "worker", exp),
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	m := NewManager(srv.URL, "anon-key", filepath.Join(t.TempDir(), "session.json"))
	session, err := m.LoginPIN(context.Background(), "+4915112345678", "1234")
	if err != nil {
		t.Fatalf("LoginPIN() error = %v", err)
	}

	if session.UserID != "user-1" || session.Role != "worker" {
		t.Errorf("session identity = %s/%s", session.UserID, session.Role)
	}
	if session.Expired() {
		t.Errorf("fresh session reports expired")
	}

	// Session survives a new manager instance.
	m2 := NewManager(srv.URL, "anon-key", m.sessionPath)
	loaded, err := m2.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if loaded.UserID != "user-1" {
		t.Errorf("persisted session = %+v", loaded)
	}
}

func TestTokenRefreshesExpiredSession(t *testing.T) {
	newExp := time.Now().Add(time.Hour)
	var refreshCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") == "refresh_token" {
			refreshCalls++
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "refresh-1" {
				t.Errorf("refresh_token = %q", body["refresh_token"])
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  makeToken(t, "user-1", "worker", newExp),
			"refresh_token": "refresh-2",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "session.json")
	m := NewManager(srv.URL, "anon-key", path)

	// Seed an expired session directly.
	expired := &Session{
		AccessToken:  makeToken(t, "user-1", "worker", time.Now().Add(-time.Hour)),
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Hour),
		UserID:       "user-1",
		Role:         "worker",
	}
	if err := m.save(expired); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh called %d times, want 1", refreshCalls)
	}
	if token == expired.AccessToken {
		t.Errorf("stale token returned")
	}

	// The rotated refresh token must be persisted.
	loaded, err := m.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if loaded.RefreshToken != "refresh-2" {
		t.Errorf("refresh token not rotated: %q", loaded.RefreshToken)
	}
}

func TestTokenWithoutSession(t *testing.T) {
	m := NewManager("http://unused", "anon-key", filepath.Join(t.TempDir(), "session.json"))
	_, err := m.Token(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("error = %v, want ErrNoSession", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	m := NewManager("http://unused", "anon-key", filepath.Join(t.TempDir(), "session.json"))
	if err := m.Logout(); err != nil {
		t.Errorf("Logout() with no session error = %v", err)
	}
}
