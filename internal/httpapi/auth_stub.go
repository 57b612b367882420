package httpapi

import (
	"encoding/json"
	"net/http"
)

// Authenticator is the seam the OAuth/session layer plugs into. spec.md §1
// marks that layer out of scope ("the HTTP authentication/session layer
// (OAuth callback, cookie session, login/relogin/logout)"); the routes
// still need to exist on the wire (spec.md §6), so Authenticator lets a
// real implementation be supplied without httpapi depending on any
// particular identity provider. Grounded on the teacher's ClerkAuth shape
// (internal/middleware/auth.go), generalized from a concrete Clerk binding
// to this interface.
type Authenticator interface {
	// Login redirects to (or starts) the provider's sign-in flow.
	Login(w http.ResponseWriter, r *http.Request)
	// Authorized handles the provider's OAuth callback.
	Authorized(w http.ResponseWriter, r *http.Request)
	// Relogin refreshes an expiring session.
	Relogin(w http.ResponseWriter, r *http.Request)
	// Logout clears the session.
	Logout(w http.ResponseWriter, r *http.Request)
	// CheckAuthorization reports whether the caller's session/token is
	// still valid, used by the bidder UI to poll session health.
	CheckAuthorization(w http.ResponseWriter, r *http.Request)
	// KickClient forcibly ends a bidder's session (operator action).
	KickClient(w http.ResponseWriter, r *http.Request)
}

// NoopAuthenticator answers every route with 501, making the delegation
// boundary explicit rather than silently pretending to authenticate. A real
// deployment supplies its own Authenticator through Deps.
type NoopAuthenticator struct{}

func (NoopAuthenticator) Login(w http.ResponseWriter, r *http.Request)              { notImplemented(w) }
func (NoopAuthenticator) Authorized(w http.ResponseWriter, r *http.Request)         { notImplemented(w) }
func (NoopAuthenticator) Relogin(w http.ResponseWriter, r *http.Request)            { notImplemented(w) }
func (NoopAuthenticator) Logout(w http.ResponseWriter, r *http.Request)             { notImplemented(w) }
func (NoopAuthenticator) CheckAuthorization(w http.ResponseWriter, r *http.Request) { notImplemented(w) }
func (NoopAuthenticator) KickClient(w http.ResponseWriter, r *http.Request)         { notImplemented(w) }

func notImplemented(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotImplemented)
	json.NewEncoder(w).Encode(map[string]string{"error": "authentication layer not configured"})
}

type authHandlers struct {
	deps Deps
}

func (a *authHandlers) login(w http.ResponseWriter, r *http.Request) {
	a.deps.Authenticator.Login(w, r)
}

func (a *authHandlers) authorized(w http.ResponseWriter, r *http.Request) {
	a.deps.Authenticator.Authorized(w, r)
}

func (a *authHandlers) relogin(w http.ResponseWriter, r *http.Request) {
	a.deps.Authenticator.Relogin(w, r)
}

func (a *authHandlers) logout(w http.ResponseWriter, r *http.Request) {
	a.deps.Authenticator.Logout(w, r)
}

func (a *authHandlers) checkAuthorization(w http.ResponseWriter, r *http.Request) {
	a.deps.Authenticator.CheckAuthorization(w, r)
}

func (a *authHandlers) kickClient(w http.ResponseWriter, r *http.Request) {
	a.deps.Authenticator.KickClient(w, r)
}
