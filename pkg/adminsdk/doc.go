/*
Package adminsdk is the client for the back-office admin API: it owns the
authentication session lifecycle and the HTTP request pipeline every API
call flows through.

# Client, SessionManager, Coordinator

Create a Client and log in:

	client := adminsdk.NewClient(adminsdk.ClientConfig{
		BaseURL: "https://admin.example.com",
		Store:   store, // any credstore.Store
	})

	err := client.Session.Login(ctx, "jo", "secret")

The SessionManager is the sole authority over authentication state: it
stores the token pair, derives the user identity from the access token's
claims, and schedules a proactive refresh for 60 seconds before expiry.
Access and refresh tokens are always replaced together; readers can never
observe a new token alongside an old identity.

The Coordinator guarantees at most one in-flight refresh. By default,
requests that hit a 401 while a refresh is underway wait for the shared
result and replay; RejectConcurrentRefresh restores the historical policy
of failing them with ErrRefreshInProgress.

# The request pipeline

Every outgoing request passes through an ordered chain of transports:

 1. skip-list check: token, authorize, userinfo, registration, and
    password-reset endpoints get neither a bearer header nor 401 handling
 2. bearer attachment on a clone of the request
 3. transient retry: network failures and 504s are retried twice with
    1s and 2s backoff
 4. refresh-on-401: one shared refresh, then one replay with the new token
 5. failure logging and notification

The pipeline never swallows an error: every call returns a response or a
typed error from the taxonomy in errors.go.

# Startup

Call Session.Restore at bootstrap to pick up persisted credentials. A token
with more than the expiry margin left restores the authenticated state and
reschedules the refresh; one inside the margin is refreshed immediately;
anything else clears the store.

# Observation

Session.Subscribe delivers authentication state changes to any number of
independent readers. A Notifier (see the notify package) observes request
failures without ever participating in authentication state. Use
adminsdk.Silent(ctx) to opt one call out of notifications.
*/
package adminsdk
