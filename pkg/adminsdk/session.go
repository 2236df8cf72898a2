package adminsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/quietgrove/backoffice/pkg/credstore"
	"github.com/quietgrove/backoffice/pkg/jwtx"
)

const (
	// DefaultExpiryMargin is how much remaining validity a token must have
	// to count as usable. A request sent just under the margin would risk
	// arriving at the server already expired.
	DefaultExpiryMargin = 60 * time.Second

	tokenPath  = "/connect/token"
	revokePath = "/connect/revoke"

	// proactiveRefreshTimeout bounds timer-driven refresh calls, which have
	// no caller context to inherit.
	proactiveRefreshTimeout = 30 * time.Second
)

// State is a snapshot of the authentication state broadcast to subscribers.
type State struct {
	Authenticated bool
	Identity      *jwtx.Identity
}

// SessionConfig configures a SessionManager.
type SessionConfig struct {
	// BaseURL of the back-office API, without trailing slash.
	BaseURL string

	// Store is the credential store. Defaults to an in-memory store.
	Store credstore.Store

	// HTTPClient is used for token endpoint calls only. These must not run
	// through the authenticated pipeline, so a plain client is used.
	HTTPClient *http.Client

	// Scope requested on password grants.
	Scope string

	// ExpiryMargin overrides DefaultExpiryMargin.
	ExpiryMargin time.Duration

	// OnLogout is invoked after the session is cleared, for navigation back
	// to the login view. Must be safe to call repeatedly.
	OnLogout func()

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// SessionManager is the sole authority over the authentication lifecycle:
// login, refresh scheduling, logout, and the observable authentication
// state. It is safe for concurrent use.
type SessionManager struct {
	baseURL  string
	store    credstore.Store
	http     *http.Client
	scope    string
	margin   time.Duration
	onLogout func()
	logger   *slog.Logger
	now      func() time.Time

	// refreshVia routes timer-driven refreshes through the coordinator so
	// proactive and 401-triggered refreshes share one flight.
	refreshVia func(context.Context) error

	mu            sync.Mutex
	identity      *jwtx.Identity
	authenticated bool
	refreshTimer  *time.Timer
	scheduledIn   time.Duration
	subs          map[int]chan State
	nextSub       int
}

// NewSessionManager creates a session manager. The initial state is
// unauthenticated; call Restore to pick up persisted credentials.
func NewSessionManager(cfg SessionConfig) *SessionManager {
	m := &SessionManager{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		store:    cfg.Store,
		http:     cfg.HTTPClient,
		scope:    cfg.Scope,
		margin:   cfg.ExpiryMargin,
		onLogout: cfg.OnLogout,
		logger:   cfg.Logger,
		now:      cfg.Now,
		subs:     make(map[int]chan State),
	}
	if m.store == nil {
		m.store = credstore.NewMemoryStore()
	}
	if m.http == nil {
		m.http = &http.Client{Timeout: 10 * time.Second}
	}
	if m.margin <= 0 {
		m.margin = DefaultExpiryMargin
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.refreshVia = m.Refresh
	return m
}

// useCoordinator routes proactive refreshes through coord.
func (m *SessionManager) useCoordinator(coord *Coordinator) {
	m.refreshVia = coord.Do
}

// Login performs an OAuth2 password grant. On success the token pair is
// stored, the identity derived, and a proactive refresh scheduled. On
// failure the session state is unchanged.
func (m *SessionManager) Login(ctx context.Context, username, password string) error {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}
	if m.scope != "" {
		form.Set("scope", m.scope)
	}

	tr, err := m.requestToken(ctx, form)
	if err != nil {
		return err
	}
	return m.accept(ctx, tr)
}

// LoginOTP completes a login that was answered with an MFA challenge.
func (m *SessionManager) LoginOTP(ctx context.Context, challenge *MFARequiredError, method, code string) error {
	form := url.Values{
		"grant_type": {"mfa_otp"},
		"mfa_token":  {challenge.MFAToken},
		"method":     {method},
		"otp_code":   {code},
	}

	tr, err := m.requestToken(ctx, form)
	if err != nil {
		return err
	}
	return m.accept(ctx, tr)
}

// Refresh performs an OAuth2 refresh_token grant. Any failure, including a
// missing refresh token, transitions the session to logged out; the caller
// decides what to do with the returned error. Refresh is not retried here.
func (m *SessionManager) Refresh(ctx context.Context) error {
	rt := m.RefreshToken()
	if rt == "" {
		m.clearSession(ctx)
		return ErrNoRefreshToken
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {rt},
	}

	tr, err := m.requestToken(ctx, form)
	if err != nil {
		m.clearSession(ctx)
		return &RefreshFailedError{Err: err}
	}
	return m.accept(ctx, tr)
}

// Logout revokes the refresh token (best effort), cancels the refresh timer,
// clears the store and the authentication state, and invokes the OnLogout
// hook. It is idempotent.
func (m *SessionManager) Logout(ctx context.Context) {
	if rt := m.RefreshToken(); rt != "" {
		m.revoke(ctx, rt)
	}
	m.clearSession(ctx)
}

// Restore initializes the session from persisted credentials at startup. A
// valid token restores the authenticated state and reschedules the proactive
// refresh; a token inside the expiry margin triggers an immediate refresh;
// anything else leaves the store cleared and the state unauthenticated.
func (m *SessionManager) Restore(ctx context.Context) error {
	creds, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return nil
		}
		return err
	}

	claims, err := jwtx.Decode(creds.AccessToken)
	if err != nil {
		m.logger.Warn("stored access token is undecodable, clearing session")
		m.clearSession(ctx)
		return nil
	}

	remaining := claims.Remaining(m.now())
	switch {
	case remaining <= 0:
		m.clearSession(ctx)
		return nil
	case remaining <= m.margin:
		return m.Refresh(ctx)
	}

	m.mu.Lock()
	m.identity = claims.Identity()
	m.authenticated = true
	m.scheduleRefreshLocked(remaining)
	m.broadcastLocked()
	m.mu.Unlock()
	return nil
}

// IsAuthenticated reports the observable authentication state.
func (m *SessionManager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// Identity returns the current user identity, or nil when logged out.
func (m *SessionManager) Identity() *jwtx.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// IsTokenValid reports whether a stored token exists, decodes, and has more
// than the expiry margin of validity left. Exactly at the margin is invalid.
func (m *SessionManager) IsTokenValid() bool {
	tok := m.Token()
	if tok == "" {
		return false
	}
	claims, err := jwtx.Decode(tok)
	if err != nil {
		return false
	}
	return claims.Remaining(m.now()) > m.margin
}

// Token returns the stored access token, or "".
func (m *SessionManager) Token() string {
	creds, err := m.store.Load(context.Background())
	if err != nil {
		return ""
	}
	return creds.AccessToken
}

// RefreshToken returns the stored refresh token, or "".
func (m *SessionManager) RefreshToken() string {
	creds, err := m.store.Load(context.Background())
	if err != nil {
		return ""
	}
	return creds.RefreshToken
}

// HasRole reports whether the current identity carries the role. All role
// and permission queries answer false when logged out, they never fail.
func (m *SessionManager) HasRole(role string) bool { return m.Identity().HasRole(role) }

// HasAnyRole reports whether the current identity carries any of the roles.
func (m *SessionManager) HasAnyRole(roles ...string) bool { return m.Identity().HasAnyRole(roles...) }

// HasAllRoles reports whether the current identity carries all of the roles.
func (m *SessionManager) HasAllRoles(roles ...string) bool { return m.Identity().HasAllRoles(roles...) }

// HasPermission reports whether the current identity carries the permission.
func (m *SessionManager) HasPermission(p string) bool { return m.Identity().HasPermission(p) }

// Subscribe registers an observer of authentication state changes. The
// returned cancel func must be called to release the subscription. Slow
// readers miss intermediate states rather than block the session manager.
func (m *SessionManager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// accept processes a successful token response: persist the pair, derive the
// identity, flip the state, and reschedule the proactive refresh. The store
// write and the state flip happen under one lock so no reader can observe a
// new token alongside the old identity.
func (m *SessionManager) accept(ctx context.Context, tr *TokenResponse) error {
	claims, err := jwtx.Decode(tr.AccessToken)
	if err != nil {
		return fmt.Errorf("token endpoint returned an undecodable access token: %w", err)
	}
	identity := claims.Identity()

	profile, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to serialize user profile: %w", err)
	}

	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if tr.ExpiresIn == 0 {
		expiresIn = claims.Remaining(m.now())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, &credstore.Credentials{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Profile:      profile,
	}); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}

	m.identity = identity
	m.authenticated = true
	m.scheduleRefreshLocked(expiresIn)
	m.broadcastLocked()

	m.logger.Info("session established",
		"user", identity.Username,
		"expires_at", identity.ExpiresAt,
		"proactive_refresh_in", m.scheduledIn,
	)
	return nil
}

// clearSession cancels the refresh timer, clears the store, drops the
// identity, broadcasts the unauthenticated state, and invokes the logout
// hook. Safe to call in any state.
func (m *SessionManager) clearSession(ctx context.Context) {
	m.mu.Lock()
	m.stopTimerLocked()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear credential store", "error", err)
	}
	m.identity = nil
	m.authenticated = false
	m.broadcastLocked()
	m.mu.Unlock()

	if m.onLogout != nil {
		m.onLogout()
	}
}

// scheduleRefreshLocked arms the proactive refresh timer for expiresIn minus
// the margin. A lifetime at or under the margin arms nothing: the reactive
// 401 path covers it. At most one timer is ever pending.
func (m *SessionManager) scheduleRefreshLocked(expiresIn time.Duration) {
	m.stopTimerLocked()

	d := expiresIn - m.margin
	if d <= 0 {
		return
	}
	m.scheduledIn = d
	m.refreshTimer = time.AfterFunc(d, m.proactiveRefresh)
}

func (m *SessionManager) stopTimerLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	m.scheduledIn = 0
}

func (m *SessionManager) proactiveRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), proactiveRefreshTimeout)
	defer cancel()

	if err := m.refreshVia(ctx); err != nil {
		m.logger.Warn("proactive token refresh failed", "error", err)
	}
}

func (m *SessionManager) broadcastLocked() {
	st := State{Authenticated: m.authenticated, Identity: m.identity}
	for _, ch := range m.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// requestToken posts a form to the token endpoint and decodes the response.
func (m *SessionManager) requestToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		m.baseURL+tokenPath,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseTokenError(resp.StatusCode, body)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &tr, nil
}

// revoke invalidates the refresh token server-side. Failures are logged and
// swallowed: revocation must never block a logout.
func (m *SessionManager) revoke(ctx context.Context, refreshToken string) {
	form := url.Values{"token": {refreshToken}}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		m.baseURL+revokePath,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		m.logger.Debug("token revocation failed", "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		m.logger.Debug("token revocation rejected", "status", resp.StatusCode)
	}
}

// parseTokenError maps a token endpoint failure to a typed error. 400/401
// responses collapse to a normalized credential failure; a 409 carrying an
// mfa_token is an MFA challenge, not a rejection.
func parseTokenError(status int, body []byte) error {
	if status == http.StatusConflict {
		var mfa struct {
			Error    string   `json:"error"`
			MFAToken string   `json:"mfa_token"`
			Methods  []string `json:"mfa_methods"`
		}
		if err := json.Unmarshal(body, &mfa); err == nil && mfa.MFAToken != "" {
			return &MFARequiredError{MFAToken: mfa.MFAToken, Methods: mfa.Methods}
		}
	}

	var oauthErr struct {
		Code        string `json:"error"`
		Description string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &oauthErr)

	msg := oauthErr.Description
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		msg = "invalid credentials"
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &AuthError{StatusCode: status, Code: oauthErr.Code, Message: msg}
}
