package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminalabs/keygate/internal/admission"
	"github.com/luminalabs/keygate/internal/api/http/dto"
	"github.com/luminalabs/keygate/internal/auth"
	"github.com/luminalabs/keygate/internal/keystore"
	"github.com/luminalabs/keygate/internal/notify"
	"github.com/luminalabs/keygate/internal/pending"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "handler-test-secret"

type fixture struct {
	router  *gin.Engine
	keys    *keystore.Store
	pending *pending.Store
	engine  *admission.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	keys := keystore.New(keystore.Config{TTL: 24 * time.Hour})
	engine := admission.NewEngine(admission.Config{
		MaxKeysPerIP:       1,
		MaxAttemptsPerHour: 10,
		Cooldown:           30 * time.Minute,
		FraudThreshold:     5,
		MinPassingChecks:   5,
		FraudRetention:     24 * time.Hour,
		MinUserAgentLength: 10,
		UpstreamDomain:     "lootlabs.gg",
		PlatformTag:        "lootlabs",
	}, keys)
	pendingStore := pending.New(30 * time.Minute)
	jwtCfg := auth.JWTConfig{Secret: testSecret}

	r := gin.New()
	tokenHandler := NewTokenHandler(pendingStore, jwtCfg, "https://loot-link.example/s")
	verifyHandler := NewVerifyHandler(keys, pendingStore, engine, notify.Nop{}, jwtCfg)
	statsHandler := NewStatsHandler(keys, engine)
	r.GET("/api/v1/token", tokenHandler.Issue)
	r.GET("/api/v1/verify", verifyHandler.Verify)
	r.GET("/api/v1/stats", statsHandler.Stats)

	return &fixture{router: r, keys: keys, pending: pendingStore, engine: engine}
}

func (f *fixture) get(t *testing.T, path, ip, userAgent, referer string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest("GET", path, nil)
	require.NoError(t, err)
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const (
	browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"
	upstream  = "https://lootlabs.gg/s/abc123"
)

func (f *fixture) startVerification(t *testing.T, ip string) dto.TokenResponse {
	t.Helper()
	w := f.get(t, "/api/v1/token", ip, browserUA, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

func TestTokenIssuesBootstrapToken(t *testing.T) {
	f := newFixture(t)

	resp := f.startVerification(t, "1.2.3.4")
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.VerificationID)
	assert.Contains(t, resp.RedirectURL, "ref=")
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), resp.Expires, 5*time.Second)
}

func TestTokenRejectsConcurrentFlow(t *testing.T) {
	f := newFixture(t)

	f.startVerification(t, "1.2.3.4")

	w := f.get(t, "/api/v1/token", "1.2.3.4", browserUA, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrVerificationPending, resp.Error)
}

func TestCompleteVerificationIssuesKey(t *testing.T) {
	f := newFixture(t)

	tok := f.startVerification(t, "1.2.3.4")

	w := f.get(t, "/api/v1/verify?token="+tok.Token+"&verified=true&platform=lootlabs",
		"1.2.3.4", browserUA, upstream)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.KeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Regexp(t, `^[0-9A-F]{32}$`, resp.Key)
	assert.False(t, resp.Reused)
}

func TestCompleteVerificationReplayRejected(t *testing.T) {
	f := newFixture(t)

	tok := f.startVerification(t, "1.2.3.4")
	path := "/api/v1/verify?token=" + tok.Token + "&verified=true&platform=lootlabs"

	w := f.get(t, path, "1.2.3.4", browserUA, upstream)
	require.Equal(t, http.StatusOK, w.Code)

	// Re-delivery of the same callback: the pending record is gone.
	w = f.get(t, path, "1.2.3.4", browserUA, upstream)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrNoPendingVerification, resp.Error)
}

func TestCompleteVerificationReusesActiveKey(t *testing.T) {
	f := newFixture(t)

	tok := f.startVerification(t, "1.2.3.4")
	w := f.get(t, "/api/v1/verify?token="+tok.Token+"&verified=true&platform=lootlabs",
		"1.2.3.4", browserUA, upstream)
	require.Equal(t, http.StatusOK, w.Code)
	var first dto.KeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	tok = f.startVerification(t, "1.2.3.4")
	w = f.get(t, "/api/v1/verify?token="+tok.Token+"&verified=true&platform=lootlabs",
		"1.2.3.4", browserUA, upstream)
	require.Equal(t, http.StatusOK, w.Code)
	var second dto.KeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	assert.Equal(t, first.Key, second.Key)
	assert.True(t, second.Reused)
}

func TestCompleteVerificationDenied(t *testing.T) {
	f := newFixture(t)

	tok := f.startVerification(t, "1.2.3.4")

	// No callback flags, scripted user agent, foreign referer: 4 of 7.
	w := f.get(t, "/api/v1/verify?token="+tok.Token,
		"1.2.3.4", "curl/8.4.0 something", "https://evil.example.com/")
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrAccessDenied, resp.Error)
	assert.Contains(t, resp.Message, "failed security checks")

	// Each denial bumps the fraud score exactly once.
	assert.Equal(t, 1, f.engine.FraudScore("1.2.3.4"))
}

func TestCompleteVerificationBadToken(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/v1/verify?token=not.a.jwt&verified=true&platform=lootlabs",
		"1.2.3.4", browserUA, upstream)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrMalformedInput, resp.Error)
}

func TestVerifyMissingParams(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/v1/verify", "1.2.3.4", browserUA, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateKey(t *testing.T) {
	f := newFixture(t)

	cred, _, err := f.keys.Issue("1.2.3.4", browserUA)
	require.NoError(t, err)

	w := f.get(t, "/api/v1/verify?key="+cred.Key, "5.6.7.8", browserUA, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Data.Uses)

	w = f.get(t, "/api/v1/verify?key="+cred.Key, "5.6.7.8", browserUA, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Uses)
}

func TestValidateKeyUnknown(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/v1/verify?key=AAAA1111BBBB2222CCCC3333DDDD4444", "1.2.3.4", browserUA, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrAccessDenied, resp.Error)
	assert.Equal(t, "key not found", resp.Message)
}

func TestValidateKeyRevoked(t *testing.T) {
	f := newFixture(t)

	cred, _, err := f.keys.Issue("1.2.3.4", browserUA)
	require.NoError(t, err)
	require.True(t, f.keys.Revoke(cred.Key))

	w := f.get(t, "/api/v1/verify?key="+cred.Key, "1.2.3.4", browserUA, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "key revoked", resp.Message)
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	cred, _, err := f.keys.Issue("1.2.3.4", browserUA)
	require.NoError(t, err)
	_, _, err = f.keys.Issue("5.6.7.8", browserUA)
	require.NoError(t, err)
	_, err = f.keys.Validate(cred.Key)
	require.NoError(t, err)

	w := f.get(t, "/api/v1/stats", "9.9.9.9", browserUA, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Data.TotalKeys)
	assert.Equal(t, 2, resp.Data.ActiveKeys)
	assert.Equal(t, 2, resp.Data.UniqueIPs)
	assert.Equal(t, 1, resp.Data.TotalUses)
	assert.Equal(t, "100%", resp.Data.SuccessRate)
}
