package adminsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/quietgrove/backoffice/pkg/credstore"
	"github.com/quietgrove/backoffice/pkg/jwtx"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func accessToken(t *testing.T, exp time.Time) string {
	t.Helper()

	return signToken(t, jwt.MapClaims{
		"sub":         "user-1",
		"unique_name": "jo.admin",
		"email":       "jo@example.com",
		"role":        []string{"Admin"},
		"permission":  []string{"users.read", "users.write"},
		"exp":         exp.Unix(),
	})
}

// tokenEndpoint is a fake /connect/token plus /connect/revoke. Responses are
// keyed by grant type; grants and revocations are counted.
type tokenEndpoint struct {
	mu      sync.Mutex
	grants  map[string]int
	revoked int
	respond map[string]func(w http.ResponseWriter)
}

func newTokenEndpoint() *tokenEndpoint {
	return &tokenEndpoint{
		grants:  make(map[string]int),
		respond: make(map[string]func(w http.ResponseWriter)),
	}
}

func (te *tokenEndpoint) grantCount(grant string) int {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.grants[grant]
}

func (te *tokenEndpoint) revokedCount() int {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.revoked
}

func (te *tokenEndpoint) on(grant string, respond func(w http.ResponseWriter)) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.respond[grant] = respond
}

func (te *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/connect/revoke" {
		te.mu.Lock()
		te.revoked++
		te.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.URL.Path != "/connect/token" {
		http.NotFound(w, r)
		return
	}

	_ = r.ParseForm()
	grant := r.PostForm.Get("grant_type")

	te.mu.Lock()
	te.grants[grant]++
	respond := te.respond[grant]
	te.mu.Unlock()

	if respond == nil {
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}
	respond(w)
}

func grantTokens(access, refresh string, expiresIn int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    expiresIn,
		})
	}
}

func grantRejected() func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"bad"}`))
	}
}

func (m *SessionManager) scheduledRefreshIn() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduledIn
}

func TestLoginEstablishesSession(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	access := accessToken(t, now.Add(time.Hour))
	te.on("password", grantTokens(access, "refresh-1", 3600))
	srv := httptest.NewServer(te)
	defer srv.Close()

	m := NewSessionManager(SessionConfig{
		BaseURL: srv.URL,
		Now:     func() time.Time { return now },
	})

	require.NoError(t, m.Login(context.Background(), "jo.admin", "secret"))

	require.True(t, m.IsAuthenticated())
	require.Equal(t, access, m.Token())
	require.Equal(t, "refresh-1", m.RefreshToken())

	id := m.Identity()
	require.NotNil(t, id)
	require.Equal(t, "user-1", id.ID)
	require.Equal(t, "jo.admin", id.Username)
	require.True(t, m.HasRole("Admin"))
	require.True(t, m.HasPermission("users.read"))
	require.False(t, m.HasRole("Owner"))

	// Proactive refresh lands one margin before expiry.
	require.Equal(t, 3600*time.Second-DefaultExpiryMargin, m.scheduledRefreshIn())
}

func TestLoginInvalidCredentials(t *testing.T) {
	te := newTokenEndpoint()
	te.on("password", grantRejected())
	srv := httptest.NewServer(te)
	defer srv.Close()

	m := NewSessionManager(SessionConfig{BaseURL: srv.URL})

	err := m.Login(context.Background(), "jo.admin", "wrong")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	require.Equal(t, "invalid_grant", authErr.Code)
	// Server detail is never echoed back for credential failures.
	require.Equal(t, "invalid credentials", authErr.Message)

	require.False(t, m.IsAuthenticated())
	require.Empty(t, m.Token())
}

func TestLoginMFAChallenge(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"mfa_required","mfa_token":"mfa-abc","mfa_methods":["totp"]}`))
	})
	te.on("mfa_otp", grantTokens(accessToken(t, now.Add(time.Hour)), "refresh-1", 3600))
	srv := httptest.NewServer(te)
	defer srv.Close()

	m := NewSessionManager(SessionConfig{
		BaseURL: srv.URL,
		Now:     func() time.Time { return now },
	})

	err := m.Login(context.Background(), "jo.admin", "secret")

	var mfa *MFARequiredError
	require.ErrorAs(t, err, &mfa)
	require.Equal(t, "mfa-abc", mfa.MFAToken)
	require.Equal(t, []string{"totp"}, mfa.Methods)
	require.False(t, m.IsAuthenticated())

	require.NoError(t, m.LoginOTP(context.Background(), mfa, "totp", "123456"))
	require.True(t, m.IsAuthenticated())
}

func TestTokenValidityMarginBoundary(t *testing.T) {
	now := time.Now()
	store := credstore.NewMemoryStore()
	m := NewSessionManager(SessionConfig{
		Store: store,
		Now:   func() time.Time { return now },
	})

	save := func(exp time.Time) {
		require.NoError(t, store.Save(context.Background(), &credstore.Credentials{
			AccessToken: accessToken(t, exp),
		}))
	}

	// Exactly at the margin counts as invalid.
	save(now.Add(DefaultExpiryMargin))
	require.False(t, m.IsTokenValid())

	save(now.Add(DefaultExpiryMargin + time.Second))
	require.True(t, m.IsTokenValid())

	save(now.Add(-time.Second))
	require.False(t, m.IsTokenValid())
}

func TestRefreshReplacesPairTogether(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", grantTokens(accessToken(t, now.Add(30*time.Minute)), "refresh-1", 1800))
	newExp := now.Add(time.Hour).Truncate(time.Second)
	te.on("refresh_token", grantTokens(accessToken(t, newExp), "refresh-2", 3600))
	srv := httptest.NewServer(te)
	defer srv.Close()

	m := NewSessionManager(SessionConfig{
		BaseURL: srv.URL,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, m.Login(context.Background(), "jo.admin", "secret"))

	require.NoError(t, m.Refresh(context.Background()))

	// The stored token and the exposed identity always describe the same
	// session: the identity's expiry matches the token that is stored.
	claims, err := jwtx.Decode(m.Token())
	require.NoError(t, err)
	require.Equal(t, newExp.Unix(), claims.Expiry().Unix())
	require.Equal(t, newExp.Unix(), m.Identity().ExpiresAt.Unix())
	require.Equal(t, "refresh-2", m.RefreshToken())
	require.Equal(t, 1, te.grantCount("refresh_token"))
}

func TestRefreshWithoutTokenLogsOut(t *testing.T) {
	var loggedOut int
	m := NewSessionManager(SessionConfig{
		OnLogout: func() { loggedOut++ },
	})

	err := m.Refresh(context.Background())

	require.ErrorIs(t, err, ErrNoRefreshToken)
	require.False(t, m.IsAuthenticated())
	require.Equal(t, 1, loggedOut)
}

func TestRefreshFailureClearsSession(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", grantTokens(accessToken(t, now.Add(time.Hour)), "refresh-1", 3600))
	te.on("refresh_token", grantRejected())
	srv := httptest.NewServer(te)
	defer srv.Close()

	var loggedOut int
	store := credstore.NewMemoryStore()
	m := NewSessionManager(SessionConfig{
		BaseURL:  srv.URL,
		Store:    store,
		OnLogout: func() { loggedOut++ },
		Now:      func() time.Time { return now },
	})
	require.NoError(t, m.Login(context.Background(), "jo.admin", "secret"))

	states, cancel := m.Subscribe()
	defer cancel()

	err := m.Refresh(context.Background())

	var rf *RefreshFailedError
	require.ErrorAs(t, err, &rf)
	require.False(t, m.IsAuthenticated())
	require.Nil(t, m.Identity())
	require.Equal(t, 1, loggedOut)

	_, serr := store.Load(context.Background())
	require.ErrorIs(t, serr, credstore.ErrNotFound)

	st := <-states
	require.False(t, st.Authenticated)
	require.Nil(t, st.Identity)
}

func TestLogoutIsIdempotent(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", grantTokens(accessToken(t, now.Add(time.Hour)), "refresh-1", 3600))
	srv := httptest.NewServer(te)
	defer srv.Close()

	var loggedOut int
	m := NewSessionManager(SessionConfig{
		BaseURL:  srv.URL,
		OnLogout: func() { loggedOut++ },
		Now:      func() time.Time { return now },
	})
	require.NoError(t, m.Login(context.Background(), "jo.admin", "secret"))

	m.Logout(context.Background())
	m.Logout(context.Background())

	require.False(t, m.IsAuthenticated())
	require.Empty(t, m.Token())
	require.Equal(t, 2, loggedOut)
	// The refresh token is gone after the first logout, so revocation runs
	// exactly once.
	require.Equal(t, 1, te.revokedCount())
	require.Zero(t, m.scheduledRefreshIn())
}

func TestRestoreEmptyStore(t *testing.T) {
	m := NewSessionManager(SessionConfig{})

	require.NoError(t, m.Restore(context.Background()))
	require.False(t, m.IsAuthenticated())
}

func TestRestoreValidToken(t *testing.T) {
	now := time.Now()
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &credstore.Credentials{
		AccessToken:  accessToken(t, now.Add(time.Hour)),
		RefreshToken: "refresh-1",
	}))

	m := NewSessionManager(SessionConfig{
		Store: store,
		Now:   func() time.Time { return now },
	})

	require.NoError(t, m.Restore(context.Background()))

	require.True(t, m.IsAuthenticated())
	require.Equal(t, "jo.admin", m.Identity().Username)
	require.Equal(t, time.Hour-DefaultExpiryMargin, m.scheduledRefreshIn())
}

func TestRestoreInsideMarginRefreshes(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("refresh_token", grantTokens(accessToken(t, now.Add(time.Hour)), "refresh-2", 3600))
	srv := httptest.NewServer(te)
	defer srv.Close()

	store := credstore.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &credstore.Credentials{
		AccessToken:  accessToken(t, now.Add(30*time.Second)),
		RefreshToken: "refresh-1",
	}))

	m := NewSessionManager(SessionConfig{
		BaseURL: srv.URL,
		Store:   store,
		Now:     func() time.Time { return now },
	})

	require.NoError(t, m.Restore(context.Background()))

	require.True(t, m.IsAuthenticated())
	require.Equal(t, "refresh-2", m.RefreshToken())
	require.Equal(t, 1, te.grantCount("refresh_token"))
}

func TestRestoreExpiredTokenClears(t *testing.T) {
	now := time.Now()
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &credstore.Credentials{
		AccessToken: accessToken(t, now.Add(-time.Minute)),
	}))

	m := NewSessionManager(SessionConfig{
		Store: store,
		Now:   func() time.Time { return now },
	})

	require.NoError(t, m.Restore(context.Background()))

	require.False(t, m.IsAuthenticated())
	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestRestoreUndecodableTokenClears(t *testing.T) {
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &credstore.Credentials{
		AccessToken: "not-a-jwt",
	}))

	m := NewSessionManager(SessionConfig{Store: store})

	require.NoError(t, m.Restore(context.Background()))

	require.False(t, m.IsAuthenticated())
	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestNoProactiveRefreshInsideMargin(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", grantTokens(accessToken(t, now.Add(45*time.Second)), "refresh-1", 45))
	srv := httptest.NewServer(te)
	defer srv.Close()

	m := NewSessionManager(SessionConfig{
		BaseURL: srv.URL,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, m.Login(context.Background(), "jo.admin", "secret"))

	// Lifetime under the margin arms no timer; the 401 path covers it.
	require.Zero(t, m.scheduledRefreshIn())
	m.mu.Lock()
	require.Nil(t, m.refreshTimer)
	m.mu.Unlock()
}

func TestProactiveRefreshFires(t *testing.T) {
	te := newTokenEndpoint()
	// expires_in of zero makes the schedule fall back to the claim's
	// remaining lifetime, which gives sub-second control here.
	te.on("password", grantTokens(accessToken(t, time.Now().Add(150*time.Millisecond)), "refresh-1", 0))
	te.on("refresh_token", grantTokens(accessToken(t, time.Now().Add(time.Hour)), "refresh-2", 3600))
	srv := httptest.NewServer(te)
	defer srv.Close()

	m := NewSessionManager(SessionConfig{
		BaseURL:      srv.URL,
		ExpiryMargin: 50 * time.Millisecond,
	})
	require.NoError(t, m.Login(context.Background(), "jo.admin", "secret"))

	require.Eventually(t, func() bool {
		return te.grantCount("refresh_token") == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return m.RefreshToken() == "refresh-2"
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, m.IsAuthenticated())
}

func TestSubscribeObservesTransitions(t *testing.T) {
	now := time.Now()
	te := newTokenEndpoint()
	te.on("password", grantTokens(accessToken(t, now.Add(time.Hour)), "refresh-1", 3600))
	srv := httptest.NewServer(te)
	defer srv.Close()

	m := NewSessionManager(SessionConfig{
		BaseURL: srv.URL,
		Now:     func() time.Time { return now },
	})

	states, cancel := m.Subscribe()

	require.NoError(t, m.Login(context.Background(), "jo.admin", "secret"))
	st := <-states
	require.True(t, st.Authenticated)
	require.Equal(t, "jo.admin", st.Identity.Username)

	m.Logout(context.Background())
	st = <-states
	require.False(t, st.Authenticated)
	require.Nil(t, st.Identity)

	cancel()
	_, open := <-states
	require.False(t, open)

	// Cancelling twice must not panic.
	cancel()
}

func TestRoleQueriesWhenLoggedOut(t *testing.T) {
	m := NewSessionManager(SessionConfig{})

	require.False(t, m.HasRole("Admin"))
	require.False(t, m.HasAnyRole("Admin", "Owner"))
	require.False(t, m.HasAllRoles("Admin"))
	require.False(t, m.HasPermission("users.read"))
	require.Nil(t, m.Identity())
}

func TestParseTokenErrorNormalizesCredentialFailures(t *testing.T) {
	err := parseTokenError(http.StatusUnauthorized, []byte(`{"error":"invalid_grant","error_description":"user jo.admin is locked out"}`))

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "invalid credentials", authErr.Message)
	require.NotContains(t, authErr.Error(), "locked out")
}

func TestLoginNetworkFailure(t *testing.T) {
	m := NewSessionManager(SessionConfig{
		BaseURL:    "http://127.0.0.1:1",
		HTTPClient: &http.Client{Timeout: 200 * time.Millisecond},
	})

	err := m.Login(context.Background(), "jo.admin", "secret")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.True(t, Temporary(err))
	require.False(t, errors.Is(err, ErrNoRefreshToken))
}
