package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 24*time.Hour)
}

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()

	token, err := mgr.GenerateToken(userID, "ref@test.com", domain.RoleReferee)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, domain.RoleReferee, claims.Role)
	assert.Equal(t, "ref@test.com", claims.Email)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, id)
}

func TestGenerateToken_UnknownRole(t *testing.T) {
	_, err := newTestJWTManager().GenerateToken(uuid.New(), "", domain.Role("admin"))
	assert.ErrorContains(t, err, "unknown role")
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", time.Hour)
	mgr2 := NewJWTManager("secret-2", time.Hour)

	token, err := mgr1.GenerateToken(uuid.New(), "", domain.RoleLeague)
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", -time.Minute)

	token, err := mgr.GenerateToken(uuid.New(), "", domain.RoleLeague)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestForeignAlgorithmRejected(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleLeague,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestJWTManager().ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()
	token, err := mgr.GenerateToken(userID, "l@test.com", domain.RoleLeague)
	require.NoError(t, err)

	var seen Principal
	h := Authenticate(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}

	assert.Equal(t, userID, seen.UserID)
	assert.Equal(t, domain.RoleLeague, seen.Role)
}

func TestRequireRole(t *testing.T) {
	mgr := newTestJWTManager()
	refToken, _ := mgr.GenerateToken(uuid.New(), "", domain.RoleReferee)
	leagueToken, _ := mgr.GenerateToken(uuid.New(), "", domain.RoleLeague)

	h := Authenticate(mgr)(RequireRole(domain.RoleLeague)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/games", nil)
	req.Header.Set("Authorization", "Bearer "+refToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "requires league role")

	req = httptest.NewRequest(http.MethodPost, "/games", nil)
	req.Header.Set("Authorization", "Bearer "+leagueToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	RequireRole(domain.RoleLeague)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQueryOrBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/messages/ws/inbox?token=abc", nil)
	tok, err := QueryOrBearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	req = httptest.NewRequest(http.MethodGet, "/messages/ws/inbox", nil)
	req.Header.Set("Authorization", "Bearer xyz")
	tok, err = QueryOrBearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	_, err = QueryOrBearerToken(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}
