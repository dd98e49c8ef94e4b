// Package auth manages worker sessions against the hosted auth API.
// Field crews sign in with a phone number and a short PIN; the resulting
// token pair is cached on disk so the CLI stays signed in across
// invocations and offline stretches.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession means no cached session exists; the user must log in.
var ErrNoSession = errors.New("no session; run login first")

// ErrSessionExpired means the cached session can no longer be refreshed.
var ErrSessionExpired = errors.New("session expired; run login again")

// Session is a cached token pair plus the identity claims extracted from
// the access token.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserID       string    `json:"userId"`
	Role         string    `json:"role"`
}

// Expired reports whether the access token needs a refresh. A small skew
// margin avoids presenting a token that dies mid-request.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt.Add(-30 * time.Second))
}

// Claims are the JWT claims carried by the auth API's access tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager performs logins, refreshes, and session persistence, and
// implements the remote client's TokenSource.
type Manager struct {
	baseURL     string
	apiKey      string
	sessionPath string
	http        *http.Client
	logger      *log.Logger
}

// NewManager creates a manager storing its session file at sessionPath.
func NewManager(baseURL, apiKey, sessionPath string) *Manager {
	return &Manager{
		baseURL:     baseURL,
		apiKey:      apiKey,
		sessionPath: sessionPath,
		http:        &http.Client{Timeout: 15 * time.Second},
		logger:      log.New(os.Stderr, "[auth] ", log.LstdFlags),
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// LoginPIN exchanges a phone number and PIN for a session. Workers use
// synthetic email addresses derived from their phone number.
func (m *Manager) LoginPIN(ctx context.Context, phone, pin string) (*Session, error) {
	body := map[string]string{
		"email":    phone + "@workers.internal",
		"password": pin,
	}
	session, err := m.tokenRequest(ctx, "password", body)
	if err != nil {
		return nil, err
	}
	if err := m.save(session); err != nil {
		return nil, err
	}
	m.logger.Printf("signed in as %s (%s)", session.UserID, session.Role)
	return session, nil
}

// Logout removes the cached session.
func (m *Manager) Logout() error {
	if err := os.Remove(m.sessionPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Current loads the cached session without refreshing it.
func (m *Manager) Current() (*Session, error) {
	return m.load()
}

// Token returns a valid access token, refreshing the session if needed.
func (m *Manager) Token(ctx context.Context) (string, error) {
	session, err := m.load()
	if err != nil {
		return "", err
	}
	if !session.Expired() {
		return session.AccessToken, nil
	}

	refreshed, err := m.tokenRequest(ctx, "refresh_token",
		map[string]string{"refresh_token": session.RefreshToken})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	if err := m.save(refreshed); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (m *Manager) tokenRequest(ctx context.Context, grant string, body map[string]string) (*Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode auth request: %w", err)
	}

	url := fmt.Sprintf("%s/auth/v1/token?grant_type=%s", m.baseURL, grant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("auth rejected (HTTP %d): %s", resp.StatusCode, msg)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	return sessionFromTokens(tr)
}

// sessionFromTokens extracts identity claims from the access token. The
// signature is the server's concern; the client only reads claims to know
// who it is acting as.
func sessionFromTokens(tr tokenResponse) (*Session, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tr.AccessToken, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	session := &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		UserID:       claims.Subject,
		Role:         claims.Role,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (m *Manager) save(session *Session) error {
	if err := os.MkdirAll(filepath.Dir(m.sessionPath), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	buf, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(m.sessionPath, buf, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (m *Manager) load() (*Session, error) {
	buf, err := os.ReadFile(m.sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(buf, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}
