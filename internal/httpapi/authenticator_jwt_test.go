package httpapi_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentexas/auction-worker/internal/httpapi"
)

func TestJWTAuthenticator_LoginRejectsForgedHash(t *testing.T) {
	auth := httpapi.NewJWTAuthenticator("top-secret", time.Minute)

	req := httptest.NewRequest("GET", "/login?bidder_id=bidder-a&hash=bogus", nil)
	rec := httptest.NewRecorder()
	auth.Login(rec, req)

	assert.Equal(t, 401, rec.Code)
}

func TestJWTAuthenticator_LoginIssuesSessionForValidHash(t *testing.T) {
	secret := "top-secret"
	auth := httpapi.NewJWTAuthenticator(secret, time.Minute)

	valid := signHashForTest("bidder-a", secret)
	req := httptest.NewRequest("GET", "/login?bidder_id=bidder-a&hash="+valid, nil)
	rec := httptest.NewRecorder()
	auth.Login(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bidder-a", resp["bidder_id"])
	assert.NotEmpty(t, resp["token"])

	// Authorized should now accept the issued bearer token.
	authReq := httptest.NewRequest("GET", "/authorized", nil)
	authReq.Header.Set("Authorization", "Bearer "+resp["token"])
	authRec := httptest.NewRecorder()
	auth.Authorized(authRec, authReq)
	assert.Equal(t, 200, authRec.Code)
}

func TestJWTAuthenticator_KickClientInvalidatesFutureChecks(t *testing.T) {
	secret := "top-secret"
	auth := httpapi.NewJWTAuthenticator(secret, time.Minute)
	valid := signHashForTest("bidder-b", secret)

	loginReq := httptest.NewRequest("GET", "/login?bidder_id=bidder-b&hash="+valid, nil)
	loginRec := httptest.NewRecorder()
	auth.Login(loginRec, loginReq)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &resp))

	kickReq := httptest.NewRequest("POST", "/kickclient", bytes.NewReader(mustJSON(map[string]string{"bidder_id": "bidder-b"})))
	kickRec := httptest.NewRecorder()
	auth.KickClient(kickRec, kickReq)
	assert.Equal(t, 200, kickRec.Code)

	checkReq := httptest.NewRequest("POST", "/check_authorization", nil)
	checkReq.Header.Set("Authorization", "Bearer "+resp["token"])
	checkRec := httptest.NewRecorder()
	auth.CheckAuthorization(checkRec, checkReq)

	var checkResp map[string]bool
	require.NoError(t, json.Unmarshal(checkRec.Body.Bytes(), &checkResp))
	assert.False(t, checkResp["authorized"])
}

// signHashForTest reproduces datasource's unexported calculateHash: the
// same HMAC-SHA256-hex a real participation link would carry.
func signHashForTest(bidderID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(bidderID))
	return hex.EncodeToString(mac.Sum(nil))
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
