package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opentexas/auction-worker/internal/datasource"
)

// sessionClaims is the payload carried in a bidder's session token: just
// enough to answer "who is this bidder" for the lifetime of one auction.
// Grounded on the teacher's ClerkClaims (internal/middleware/auth.go),
// trimmed from a Clerk-identity claim set to the one fact this domain
// actually needs downstream (the bidder id the participation URL named).
type sessionClaims struct {
	jwt.RegisteredClaims
	BidderID string `json:"bidder_id"`
}

// JWTAuthenticator is a self-contained Authenticator for the participation
// links C3 hands bidders (spec.md §4.3: ParticipationURL = "<auctions_url>
// /login?bidder_id=X&hash=Y"): it verifies the hash the same way the
// datasource computed it, then issues a signed session token in its place.
// Grounded on the teacher's ClerkAuth shape (bearer parse, context
// attachment) with the identity-provider round trip and the Postgres user
// lookup removed — there is no user table here, only bidders authenticated
// by the procurement system's own per-auction hash.
type JWTAuthenticator struct {
	secret     []byte
	ttl        time.Duration
	mu         sync.Mutex
	kicked     map[string]struct{}
	cookieName string
}

// NewJWTAuthenticator builds an Authenticator that trusts the same shared
// secret the datasource used to sign participation-url hashes.
func NewJWTAuthenticator(secret string, ttl time.Duration) *JWTAuthenticator {
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	return &JWTAuthenticator{
		secret:     []byte(secret),
		ttl:        ttl,
		kicked:     make(map[string]struct{}),
		cookieName: "auction_session",
	}
}

func (a *JWTAuthenticator) issue(bidderID string) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		BidderID: bidderID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *JWTAuthenticator) parse(tokenString string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	_, kicked := a.kicked[claims.BidderID]
	a.mu.Unlock()
	if kicked {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (a *JWTAuthenticator) bearerToken(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// Login verifies the participation-url hash (spec.md §4.3) and issues a
// session token as both a cookie and a JSON body, for clients that prefer
// to carry it as a bearer token instead.
func (a *JWTAuthenticator) Login(w http.ResponseWriter, r *http.Request) {
	bidderID := r.URL.Query().Get("bidder_id")
	hash := r.URL.Query().Get("hash")
	if bidderID == "" || hash == "" || !datasource.VerifyParticipationHash(bidderID, hash, string(a.secret)) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid participation link"})
		return
	}

	token, err := a.issue(bidderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not issue session"})
		return
	}

	http.SetCookie(w, &http.Cookie{Name: a.cookieName, Value: token, Path: "/", HttpOnly: true, Expires: time.Now().Add(a.ttl)})
	writeJSON(w, http.StatusOK, map[string]string{"bidder_id": bidderID, "token": token})
}

// Authorized is the OAuth-callback-shaped route; since Login already issues
// the session directly (there is no third-party identity provider to round
// trip through), Authorized just confirms the caller's current session.
func (a *JWTAuthenticator) Authorized(w http.ResponseWriter, r *http.Request) {
	claims, err := a.parse(a.bearerToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bidder_id": claims.BidderID})
}

// Relogin reissues a session token with a fresh expiry for an already-valid
// session, so a bidder's browser tab can silently extend its session.
func (a *JWTAuthenticator) Relogin(w http.ResponseWriter, r *http.Request) {
	claims, err := a.parse(a.bearerToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authorized"})
		return
	}
	token, err := a.issue(claims.BidderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not issue session"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: a.cookieName, Value: token, Path: "/", HttpOnly: true, Expires: time.Now().Add(a.ttl)})
	writeJSON(w, http.StatusOK, map[string]string{"bidder_id": claims.BidderID, "token": token})
}

// Logout clears the session cookie. A stateless JWT can't be revoked by the
// server clearing a cookie alone, but the common case (same browser, same
// cookie jar) is handled the same way the teacher's session model is.
func (a *JWTAuthenticator) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: a.cookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// CheckAuthorization reports whether the caller's current session is valid,
// used by the bidder UI to poll session health without triggering a 401
// that would redirect it away from the bidding page.
func (a *JWTAuthenticator) CheckAuthorization(w http.ResponseWriter, r *http.Request) {
	_, err := a.parse(a.bearerToken(r))
	writeJSON(w, http.StatusOK, map[string]bool{"authorized": err == nil})
}

// KickClient forcibly invalidates a bidder's session (operator action,
// e.g. a disqualified bidder). Since sessions are stateless JWTs, the
// revocation is tracked in an in-memory set checked on every parse.
func (a *JWTAuthenticator) KickClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BidderID string `json:"bidder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BidderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bidder_id required"})
		return
	}

	a.mu.Lock()
	a.kicked[req.BidderID] = struct{}{}
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "kicked", "bidder_id": req.BidderID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

var _ Authenticator = (*JWTAuthenticator)(nil)
