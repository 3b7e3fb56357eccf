package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"stravasync/pkg/logger"
)

// TokenSource hands out a valid access token, refreshing it through the
// OAuth token endpoint when the stored one is missing or expired. Refreshed
// tokens are written back through the manager so later runs skip the
// refresh round trip. Satisfies the client's token source interface.
type TokenSource struct {
	manager  *Manager
	creds    *Credentials
	tokenURL string
	client   *http.Client
	logger   logger.Logger
	mu       sync.Mutex
}

// NewTokenSource creates a token source for the given credentials.
// manager may be nil when persistence of refreshed tokens is not wanted.
func NewTokenSource(manager *Manager, creds *Credentials, tokenURL string, log logger.Logger) *TokenSource {
	if log == nil {
		log = logger.GetLogger()
	}
	return &TokenSource{
		manager:  manager,
		creds:    creds,
		tokenURL: tokenURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   log,
	}
}

// Token returns a currently valid access token.
func (t *TokenSource) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.creds.Expired() {
		return t.creds.AccessToken, nil
	}

	if err := t.refresh(); err != nil {
		return "", err
	}

	return t.creds.AccessToken, nil
}

// tokenResponse is the OAuth token endpoint's reply.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// refresh exchanges the refresh token for a fresh access token. The
// endpoint rotates the refresh token, so both are stored back.
func (t *TokenSource) refresh() error {
	form := url.Values{
		"client_id":     {t.creds.ClientID},
		"client_secret": {t.creds.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {t.creds.RefreshToken},
	}

	resp, err := t.client.Post(t.tokenURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("token refresh rejected (status %d): %w", resp.StatusCode, ErrInvalidCredentials)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("token response missing access token")
	}

	t.creds.AccessToken = token.AccessToken
	t.creds.ExpiresAt = time.Unix(token.ExpiresAt, 0)
	if token.RefreshToken != "" {
		t.creds.RefreshToken = token.RefreshToken
	}

	t.logger.DebugWithFields("access token refreshed", map[string]interface{}{
		"profile":    t.creds.Profile,
		"expires_at": t.creds.ExpiresAt,
	})

	if t.manager != nil {
		if err := t.manager.Store(t.creds); err != nil {
			// Refresh still succeeded; the next run will refresh again.
			t.logger.WithError(err).Warn("failed to persist refreshed credentials")
		}
	}

	return nil
}
