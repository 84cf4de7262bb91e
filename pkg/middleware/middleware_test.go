package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlens/spendlens/pkg/config"
)

func captureUserID(captured **string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = UserIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledRunsUnscoped(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: false}
	var captured *string

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	request.Header.Set(UserIDHeader, "ignored")

	Auth(cfg)(captureUserID(&captured)).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Nil(t, captured, "disabled auth must not scope requests")
}

func TestAuthEnabledRequiresHeader(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: true}

	t.Run("missing header is rejected", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)

		var captured *string
		Auth(cfg)(captureUserID(&captured)).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Nil(t, captured)
	})

	t.Run("header propagates to the context", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
		request.Header.Set(UserIDHeader, "  user-42  ")

		var captured *string
		Auth(cfg)(captureUserID(&captured)).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
		require.NotNil(t, captured)
		assert.Equal(t, "user-42", *captured)
	})
}

func TestRequireAdmin(t *testing.T) {
	cfg := &config.AuthConfig{
		Enabled:      true,
		AdminUserIDs: map[string]struct{}{"admin-1": {}},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("admin passes", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		userID := "admin-1"
		request := httptest.NewRequest(http.MethodPost, "/api/v1/rules", nil)
		request = request.WithContext(WithUserID(request.Context(), &userID))

		RequireAdmin(cfg)(next).ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusNoContent, recorder.Code)
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		userID := "user-1"
		request := httptest.NewRequest(http.MethodPost, "/api/v1/rules", nil)
		request = request.WithContext(WithUserID(request.Context(), &userID))

		RequireAdmin(cfg)(next).ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("everyone is admin when auth is disabled", func(t *testing.T) {
		open := &config.AuthConfig{Enabled: false}
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/api/v1/rules", nil)
		request = request.WithContext(WithUserID(request.Context(), nil))

		RequireAdmin(open)(next).ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusNoContent, recorder.Code)
	})
}
