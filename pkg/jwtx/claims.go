// Package jwtx decodes access tokens issued by the back-office API.
//
// Tokens are decoded, not verified: the client trusts the server that issued
// them and only needs the payload to derive identity and expiry. Signature
// verification is the server's job.
package jwtx

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed reports a token whose payload could not be decoded.
var ErrMalformed = errors.New("jwtx: malformed token")

// StringList accepts a JWT claim that servers encode either as a single
// string or as an array of strings ("role": "admin" vs "role": ["admin"]).
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = StringList(many)
	return nil
}

// Claims are the access-token claims the console cares about. Unknown claims
// are ignored so the server can add fields without breaking older clients.
type Claims struct {
	jwt.RegisteredClaims

	Email       string     `json:"email,omitempty"`
	Username    string     `json:"unique_name,omitempty"`
	GivenName   string     `json:"given_name,omitempty"`
	FamilyName  string     `json:"family_name,omitempty"`
	Roles       StringList `json:"role,omitempty"`
	Permissions StringList `json:"permission,omitempty"`
}

// Decode extracts the claims from a bearer token without verifying its
// signature.
func Decode(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return claims, nil
}

// Expiry returns the "exp" claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Remaining reports how much validity the token has left at the given
// instant. Tokens without an "exp" claim have no remaining validity.
func (c *Claims) Remaining(now time.Time) time.Duration {
	exp := c.Expiry()
	if exp.IsZero() {
		return 0
	}
	return exp.Sub(now)
}
