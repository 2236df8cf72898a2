package adminsdk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quietgrove/backoffice/pkg/credstore"
)

func restoredSession(t *testing.T, exp time.Time, now time.Time) *SessionManager {
	t.Helper()

	store := credstore.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &credstore.Credentials{
		AccessToken:  accessToken(t, exp),
		RefreshToken: "refresh-1",
	}))

	m := NewSessionManager(SessionConfig{
		Store: store,
		Now:   func() time.Time { return now },
	})
	require.NoError(t, m.Restore(context.Background()))
	return m
}

func TestGuardDeniesLoggedOut(t *testing.T) {
	g := NewGuard(NewSessionManager(SessionConfig{}))

	require.False(t, g.Allowed(RouteMeta{}))
	require.False(t, g.Allowed(RouteMeta{Roles: []string{"Admin"}}))
}

func TestGuardAllowsAuthenticated(t *testing.T) {
	now := time.Now()
	g := NewGuard(restoredSession(t, now.Add(time.Hour), now))

	require.True(t, g.Allowed(RouteMeta{}))
}

func TestGuardRolesAreAnyOf(t *testing.T) {
	now := time.Now()
	g := NewGuard(restoredSession(t, now.Add(time.Hour), now))

	require.True(t, g.Allowed(RouteMeta{Roles: []string{"Owner", "Admin"}}))
	require.False(t, g.Allowed(RouteMeta{Roles: []string{"Owner"}}))
}

func TestGuardPermissionsAreAllOf(t *testing.T) {
	now := time.Now()
	g := NewGuard(restoredSession(t, now.Add(time.Hour), now))

	require.True(t, g.Allowed(RouteMeta{Permissions: []string{"users.read", "users.write"}}))
	require.False(t, g.Allowed(RouteMeta{Permissions: []string{"users.read", "users.delete"}}))
}

func TestGuardDeniesTokenInsideMargin(t *testing.T) {
	now := time.Now()
	m := restoredSession(t, now.Add(time.Hour), now)

	// The session is still flagged authenticated, but the stored token has
	// slipped inside the expiry margin.
	require.NoError(t, m.store.Save(context.Background(), &credstore.Credentials{
		AccessToken: accessToken(t, now.Add(30*time.Second)),
	}))

	g := NewGuard(m)
	require.True(t, m.IsAuthenticated())
	require.False(t, g.Allowed(RouteMeta{}))
}
