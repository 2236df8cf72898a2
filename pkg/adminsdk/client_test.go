package adminsdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"statusCode":200,"data":{"id":"1"}}`,
			check: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name:   "created without envelope",
			status: http.StatusCreated,
			body:   `{"id":"1"}`,
			check: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name:   "field errors win over status",
			status: http.StatusOK,
			body:   `{"statusCode":200,"errors":[{"field":"email","message":"is required"}],"correlationId":"c-1"}`,
			check: func(t *testing.T, err error) {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				require.Equal(t, "c-1", vErr.CorrelationID)
				require.Len(t, vErr.Errors, 1)
				require.Equal(t, "email: is required", vErr.Errors[0].String())
			},
		},
		{
			name:   "enveloped failure",
			status: http.StatusNotFound,
			body:   `{"statusCode":404,"message":"venue not found","correlationId":"c-2"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
				require.Equal(t, "venue not found", apiErr.Message)
				require.Equal(t, "c-2", apiErr.CorrelationID)
			},
		},
		{
			name:   "bare failure falls back to status text",
			status: http.StatusInternalServerError,
			body:   "",
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				require.Equal(t, http.StatusText(http.StatusInternalServerError), apiErr.Message)
			},
		},
		{
			name:   "gateway timeout is temporary",
			status: http.StatusGatewayTimeout,
			body:   "",
			check: func(t *testing.T, err error) {
				require.True(t, Temporary(err))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, classifyResponse(tc.status, []byte(tc.body)))
		})
	}
}

func TestDecodePayload(t *testing.T) {
	type widget struct {
		Name string `json:"name"`
	}

	var w widget
	require.NoError(t, decodePayload([]byte(`{"statusCode":200,"data":{"name":"a"}}`), &w))
	require.Equal(t, "a", w.Name)

	// Endpoints without an envelope decode from the raw body.
	w = widget{}
	require.NoError(t, decodePayload([]byte(`{"name":"b"}`), &w))
	require.Equal(t, "b", w.Name)

	require.Error(t, decodePayload([]byte(`not json`), &w))
}

func TestClientSendsJSONBody(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", grantTokens(accessToken(t, now.Add(time.Hour)), "refresh-1", 3600))

	var gotBody string
	var gotContentType string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/widgets", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentType = r.Header.Get("Content-Type")
		envelopeJSON(w, http.StatusCreated, map[string]string{"id": "w-1"})
	})

	client := loggedInClient(t, te, mux, ClientConfig{})

	var out struct {
		ID string `json:"id"`
	}
	err := client.Post(context.Background(), "/api/widgets", map[string]string{"name": "a"}, &out)

	require.NoError(t, err)
	require.Equal(t, "w-1", out.ID)
	require.JSONEq(t, `{"name":"a"}`, gotBody)
	require.Equal(t, "application/json", gotContentType)
}

func TestClientNotifiesEnvelopeFailures(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", grantTokens(accessToken(t, now.Add(time.Hour)), "refresh-1", 3600))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/widgets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(Envelope{
			StatusCode: http.StatusBadRequest,
			Errors:     []FieldError{{Field: "name", Message: "is required"}},
		})
	})

	notifier := &recordingNotifier{}
	client := loggedInClient(t, te, mux, ClientConfig{Notifier: notifier})

	err := client.Post(context.Background(), "/api/widgets", map[string]string{}, nil)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, 1, notifier.failureCount())

	// A silent call still fails, without a notification.
	err = client.Post(Silent(context.Background()), "/api/widgets", map[string]string{}, nil)
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, 1, notifier.failureCount())
}

func TestClientDelete(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", grantTokens(accessToken(t, now.Add(time.Hour)), "refresh-1", 3600))

	var gotMethod string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/widgets/w-1", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	client := loggedInClient(t, te, mux, ClientConfig{})

	require.NoError(t, client.Delete(context.Background(), "/api/widgets/w-1"))
	require.Equal(t, http.MethodDelete, gotMethod)
}

func TestUserInfo(t *testing.T) {
	now := time.Now()
	access := accessToken(t, now.Add(time.Hour))
	te := newTokenEndpoint()
	te.on("password", grantTokens(access, "refresh-1", 3600))

	mux := http.NewServeMux()
	mux.HandleFunc("/connect/userinfo", func(w http.ResponseWriter, r *http.Request) {
		// Skip-listed, so the client attaches the bearer itself.
		if r.Header.Get(HeaderAuthorization) != "Bearer "+access {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		envelopeJSON(w, http.StatusOK, UserInfo{
			ID:       "user-1",
			Username: "jo.admin",
			Email:    "jo@example.com",
			Roles:    []string{"Admin"},
		})
	})

	client := loggedInClient(t, te, mux, ClientConfig{})

	info, err := client.UserInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "user-1", info.ID)
	require.Equal(t, "jo.admin", info.Username)
	require.Equal(t, []string{"Admin"}, info.Roles)
}

func TestUserInfoRequiresLogin(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := client.UserInfo(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}
