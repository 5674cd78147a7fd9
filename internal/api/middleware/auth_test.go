package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/mocks"
	"github.com/phrazzld/relay-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityHandler echoes the identity the middleware stored.
func identityHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, elevated, ok := shared.Identity(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "%s:%t", userID, elevated)
	})
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		claims     *auth.Claims
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid user token",
			header:     "Bearer good",
			claims:     &auth.Claims{UserID: "user-1", TokenType: "access"},
			wantStatus: http.StatusOK,
			wantBody:   "user-1:false",
		},
		{
			name:       "admin token is elevated",
			header:     "bearer good",
			claims:     &auth.Claims{UserID: "ops", Role: auth.RoleAdmin, TokenType: "access"},
			wantStatus: http.StatusOK,
			wantBody:   "ops:true",
		},
		{
			name:       "missing header",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Authorization header required",
		},
		{
			name:       "wrong scheme",
			header:     "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid authorization format",
		},
		{
			name:       "empty token",
			header:     "Bearer ",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid authorization format",
		},
		{
			name:       "expired token",
			header:     "Bearer old",
			err:        auth.ErrExpiredToken,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Token expired",
		},
		{
			name:       "invalid token",
			header:     "Bearer forged",
			err:        fmt.Errorf("%w: signature is invalid", auth.ErrInvalidToken),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token",
		},
		{
			name:       "wrong token type",
			header:     "Bearer refresh",
			err:        auth.ErrWrongTokenType,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token",
		},
		{
			name:       "unexpected validation failure",
			header:     "Bearer x",
			err:        errors.New("key store unavailable"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Authentication error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jwtService := &mocks.MockJWTService{Claims: tc.claims, ValidateErr: tc.err}
			handler := NewAuthMiddleware(jwtService).Authenticate(identityHandler(t))

			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantBody)
			if tc.err != nil {
				assert.NotContains(t, w.Body.String(), tc.err.Error())
			}
		})
	}
}

func TestAuthMiddleware_PassesTokenToService(t *testing.T) {
	var got string
	jwtService := &mocks.MockJWTService{
		ValidateTokenFn: func(_ context.Context, token string) (*auth.Claims, error) {
			got = token
			return &auth.Claims{UserID: "u"}, nil
		},
	}
	handler := NewAuthMiddleware(jwtService).Authenticate(identityHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "abc.def.ghi", got)
}

func TestAuthMiddleware_WithRealJWTService(t *testing.T) {
	jwtService, err := auth.NewJWTService(testAuthConfig())
	require.NoError(t, err)

	token, err := jwtService.GenerateToken(context.Background(), "user-42", auth.RoleAdmin)
	require.NoError(t, err)

	handler := NewAuthMiddleware(jwtService).Authenticate(identityHandler(t))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42:true", w.Body.String())
}
