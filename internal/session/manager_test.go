package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patientsync/pkg/interfaces"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Secret = []byte("test-secret")
	m, err := NewManager(cfg, nil)
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	m, err := NewManager(Config{TTL: time.Minute}, nil)
	require.NoError(t, err)
	assert.Len(t, m.secret, 32, "missing secret is generated")
	assert.Equal(t, "PatientSyncAuthCookie", m.CookieName())
}

func TestManager_IssueAndValidate(t *testing.T) {
	m := newTestManager(t)

	token, expires, err := m.Issue(1, "Admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expires, 5*time.Second)

	p, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Principal{UserID: 1, Username: "Admin"}, p)
	assert.Equal(t, "1", p.Key())

	_, _, err = m.Issue(0, "nobody")
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestManager_RejectsBadTokens(t *testing.T) {
	m := newTestManager(t)
	token, _, err := m.Issue(1, "admin")
	require.NoError(t, err)

	other, err := NewManager(Config{TTL: time.Minute, Secret: []byte("other-secret")}, nil)
	require.NoError(t, err)
	_, err = other.Validate(token)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized, "signed with a different secret")

	_, err = m.Validate("not-a-token")
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		UserID:   1,
		Username: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "x",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Validate(none)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized, "alg none is refused")
}

func TestManager_Expiry(t *testing.T) {
	m := newTestManager(t)
	start := time.Now()
	m.now = func() time.Time { return start }

	token, _, err := m.Issue(1, "admin")
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(29 * time.Minute) }
	_, err = m.Validate(token)
	assert.NoError(t, err)

	m.now = func() time.Time { return start.Add(31 * time.Minute) }
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
}

func TestManager_RevokeIsPrunedOnExpiry(t *testing.T) {
	m := newTestManager(t)
	start := time.Now()
	m.now = func() time.Time { return start }

	token, _, err := m.Issue(1, "admin")
	require.NoError(t, err)
	keep, _, err := m.Issue(1, "admin")
	require.NoError(t, err)

	m.Revoke(token)
	m.Revoke("garbage")
	assert.Equal(t, 1, m.RevokedCount())

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	_, err = m.Validate(keep)
	assert.NoError(t, err, "other tokens of the same user stay valid")

	m.now = func() time.Time { return start.Add(time.Hour) }
	assert.Zero(t, m.RevokedCount())
}

func TestMiddleware_AttachesPrincipal(t *testing.T) {
	m := newTestManager(t)
	token, expires, err := m.Issue(3, "nurse")
	require.NoError(t, err)

	var seen interfaces.Principal
	var seenToken string
	protected := m.Middleware(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		seenToken, _ = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized","code":401,"message":"Authentication required"}`, rec.Body.String())

	setter := httptest.NewRecorder()
	m.SetCookie(setter, token, expires)
	cookie := setter.Result().Cookies()[0]
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "PatientSyncAuthCookie", cookie.Name)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, interfaces.Principal{UserID: 3, Username: "nurse"}, seen)
	assert.Equal(t, token, seenToken)

	m.Revoke(token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClearCookie(t *testing.T) {
	m := newTestManager(t)
	rec := httptest.NewRecorder()
	m.ClearCookie(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
