package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdashboard/pkg/auth"
	apperrors "opsdashboard/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsBlacklisted(_ context.Context, token string) (bool, error) {
	return f.revoked[token], f.err
}

func newEngine(jwt *auth.JWTManager, revoked RevocationChecker, perm auth.Permission) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(jwt, revoked)}
	if perm != "" {
		handlers = append(handlers, RequirePermission(auth.NewRBACManager(), perm))
	}
	handlers = append(handlers, func(c *gin.Context) {
		claims, _ := GetClaims(c)
		c.JSON(http.StatusOK, gin.H{"user": claims.Username, "org": c.GetString("org_slug")})
	})
	r.GET("/x", handlers...)
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func reason(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Reason
}

func TestAuthMiddleware(t *testing.T) {
	jwt := auth.NewJWTManager("secret", time.Hour)
	token, _, err := jwt.GenerateAccessToken("usr_1", "carol", auth.RoleClient, "acme")
	require.NoError(t, err)

	r := newEngine(jwt, &fakeRevocations{revoked: map[string]bool{}}, "")

	w := do(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"carol","org":"acme"}`, w.Body.String())

	w = do(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.ReasonUnauthorized, reason(t, w))

	w = do(r, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_Revoked(t *testing.T) {
	jwt := auth.NewJWTManager("secret", time.Hour)
	token, _, err := jwt.GenerateAccessToken("usr_1", "carol", auth.RoleClient, "acme")
	require.NoError(t, err)

	r := newEngine(jwt, &fakeRevocations{revoked: map[string]bool{token: true}}, "")
	w := do(r, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.ReasonTokenRevoked, reason(t, w))

	r = newEngine(jwt, &fakeRevocations{err: errors.New("redis down")}, "")
	w = do(r, token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequirePermission(t *testing.T) {
	jwt := auth.NewJWTManager("secret", time.Hour)
	client, _, err := jwt.GenerateAccessToken("usr_1", "carol", auth.RoleClient, "acme")
	require.NoError(t, err)
	master, _, err := jwt.GenerateAccessToken("usr_2", "root", auth.RoleMaster, "")
	require.NoError(t, err)

	r := newEngine(jwt, nil, auth.PermissionReadLicenseKeys)

	w := do(r, client)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperrors.ReasonForbidden, reason(t, w))

	w = do(r, master)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterByIP(t *testing.T) {
	counter := NewMemoryCounter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	counter.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/x", RateLimiterByIP(RateLimiterConfig{Counter: counter, MaxRequests: 2, Window: time.Minute}),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		w := do(r, "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	w := do(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, apperrors.ReasonTooManyRequests, reason(t, w))

	now = now.Add(time.Minute)
	w = do(r, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
