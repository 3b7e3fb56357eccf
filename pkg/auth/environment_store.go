package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// Read-only; intended for CI and one-off runs.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(creds *Credentials) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(profile string) (*Credentials, error) {
	clientID := os.Getenv("STRAVASYNC_CLIENT_ID")
	clientSecret := os.Getenv("STRAVASYNC_CLIENT_SECRET")
	refreshToken := os.Getenv("STRAVASYNC_REFRESH_TOKEN")
	accessToken := os.Getenv("STRAVASYNC_ACCESS_TOKEN")

	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, ErrCredentialsNotFound
	}

	// Environment variables carry no profile name
	if profile == "" {
		profile = DefaultProfile
	}

	return &Credentials{
		Profile:      profile,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
		AccessToken:  accessToken,
		LastModified: time.Now(),
	}, nil
}

// List returns a single profile if environment variables are set
func (e *EnvironmentStore) List() ([]*Credentials, error) {
	creds, err := e.Retrieve("")
	if err != nil {
		return []*Credentials{}, nil
	}
	return []*Credentials{creds}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(profile string) bool {
	return os.Getenv("STRAVASYNC_CLIENT_ID") != "" &&
		os.Getenv("STRAVASYNC_CLIENT_SECRET") != "" &&
		os.Getenv("STRAVASYNC_REFRESH_TOKEN") != ""
}
