// Package credstore persists the console's credential bundle: access token,
// refresh token, and the serialized user profile.
//
// The session manager is the only writer. Drivers must replace the whole
// bundle in one step so the access and refresh tokens can never be observed
// half-updated.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Storage keys used by key-value shaped drivers (redis, sqlite). File-based
// drivers persist the same three fields as a JSON document.
const (
	KeyAccessToken  = "backoffice.access_token"
	KeyRefreshToken = "backoffice.refresh_token"
	KeyUserProfile  = "backoffice.user_profile"
)

// ErrNotFound reports that no credentials are stored.
var ErrNotFound = errors.New("credstore: no credentials stored")

// Credentials is the persisted bundle. Profile holds the serialized identity
// derived from the access token at the moment it was accepted.
type Credentials struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	Profile      json.RawMessage `json:"profile,omitempty"`
}

// Store is the durable credential storage contract.
type Store interface {
	// Save replaces any stored credentials with creds, atomically.
	Save(ctx context.Context, creds *Credentials) error

	// Load returns the stored credentials, or ErrNotFound.
	Load(ctx context.Context) (*Credentials, error)

	// Clear removes any stored credentials. Clearing an empty store is not
	// an error.
	Clear(ctx context.Context) error
}
