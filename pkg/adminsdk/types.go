package adminsdk

import (
	"encoding/json"
	"time"
)

// TokenResponse is the OAuth2 token endpoint response per RFC 6749, returned
// from POST {base}/connect/token for both password and refresh_token grants.
type TokenResponse struct {
	// AccessToken is the JWT used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque token used to obtain new access tokens
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of granted scopes
	Scope string `json:"scope,omitempty"`
}

// Envelope is the generic response wrapper every API endpoint uses.
type Envelope struct {
	StatusCode    int             `json:"statusCode"`
	Message       string          `json:"message,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Errors        []FieldError    `json:"errors,omitempty"`
	Pagination    *Pagination     `json:"pagination,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	TimestampUTC  time.Time       `json:"timestampUtc,omitzero"`
}

// Pagination describes the page window of a list response.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// UserInfo is the response of GET {base}/connect/userinfo.
type UserInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Username    string   `json:"userName"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}
