package adminsdk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error taxonomy for the request pipeline and session lifecycle:
//
//   - NetworkError: transport-level failure, retried transiently first
//   - APIError with StatusCode 504: gateway timeout, also retried
//   - AuthError: token endpoint rejected a grant
//   - RefreshFailedError / ErrNoRefreshToken: refresh outcomes, session is
//     logged out when they occur
//   - ErrRefreshInProgress: a 401 arrived while another refresh was underway
//     and the coordinator is configured to reject rather than wait
//   - ValidationError: well-formed API envelope carrying field errors
//   - APIError: any other non-2xx API response

var (
	// ErrNoRefreshToken is returned by Refresh when the store holds no
	// refresh token. The session transitions to logged out.
	ErrNoRefreshToken = errors.New("adminsdk: no refresh token available")

	// ErrRefreshInProgress is returned to a request that observed a 401
	// while another refresh was already in flight, in reject mode.
	ErrRefreshInProgress = errors.New("adminsdk: token refresh already in progress")
)

// NetworkError wraps a transport-level failure (the status-0 case) after
// transient retries are exhausted.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError is a token endpoint rejection. For 400/401 responses the message
// is normalized to a generic credential failure so callers never echo
// server-side detail back at a login form.
type AuthError struct {
	// StatusCode is the HTTP status returned by the token endpoint
	StatusCode int

	// Code is the OAuth2 error code when the server supplied one
	// (e.g. "invalid_grant")
	Code string

	// Message is a human-readable description
	Message string
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("authentication failed (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Message)
}

// RefreshFailedError reports a rejected refresh_token grant. By the time the
// caller sees it the session has already been cleared.
type RefreshFailedError struct {
	Err error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// MFARequiredError is returned by Login when the account requires a second
// factor. Complete the flow with LoginOTP.
type MFARequiredError struct {
	MFAToken string
	Methods  []string
}

func (e *MFARequiredError) Error() string {
	return fmt.Sprintf("multi-factor authentication required, methods: %v", e.Methods)
}

// FieldError is one entry of the API's validation envelope.
type FieldError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

func (e FieldError) String() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// ValidationError carries the envelope's field errors. It is not a transport
// failure: the server understood the request and answered per field.
type ValidationError struct {
	StatusCode    int
	CorrelationID string
	Errors        []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// APIError is any other non-2xx API response, normalized from the envelope
// when one was present.
type APIError struct {
	StatusCode    int
	Message       string
	CorrelationID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether the error corresponds to a transient condition
// the pipeline would have retried (connectivity loss, gateway timeout).
func Temporary(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusGatewayTimeout
}
