package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stravasync/pkg/logger"
)

func TestTokenSourceRefreshesExpiredToken(t *testing.T) {
	var calls int32
	var gotGrant, gotRefresh string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotGrant = r.PostForm.Get("grant_type")
		gotRefresh = r.PostForm.Get("refresh_token")

		fmt.Fprintf(w, `{
			"access_token": "fresh-access",
			"refresh_token": "rotated-refresh",
			"expires_at": %d
		}`, time.Now().Add(6*time.Hour).Unix())
	}))
	defer server.Close()

	creds := testCredentials("default")
	source := NewTokenSource(nil, creds, server.URL, logger.Nop())

	token, err := source.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	if token != "fresh-access" {
		t.Errorf("token = %q, want fresh-access", token)
	}
	if gotGrant != "refresh_token" {
		t.Errorf("grant_type = %q", gotGrant)
	}
	if gotRefresh != "refresh-value" {
		t.Errorf("refresh_token = %q", gotRefresh)
	}
	if creds.RefreshToken != "rotated-refresh" {
		t.Error("rotated refresh token not kept")
	}

	// A second call inside the validity window must not hit the endpoint.
	if _, err := source.Token(); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
}

func TestTokenSourceValidTokenSkipsRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("refresh endpoint must not be called for a valid token")
	}))
	defer server.Close()

	creds := testCredentials("default")
	creds.AccessToken = "still-good"
	creds.ExpiresAt = time.Now().Add(time.Hour)

	source := NewTokenSource(nil, creds, server.URL, logger.Nop())

	token, err := source.Token()
	if err != nil {
		t.Fatal(err)
	}
	if token != "still-good" {
		t.Errorf("token = %q", token)
	}
}

func TestTokenSourceRejectedRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	source := NewTokenSource(nil, testCredentials("default"), server.URL, logger.Nop())

	if _, err := source.Token(); err == nil {
		t.Fatal("expected an error for a rejected refresh")
	}
}
