package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lottoledger/lotto-engine/internal/httputil"
)

func authRouter(secret []byte, seen *string) *mux.Router {
	router := mux.NewRouter()
	router.Use(CallerAuth(secret))
	router.HandleFunc("/cmd", func(w http.ResponseWriter, r *http.Request) {
		*seen = r.Header.Get(httputil.CallerAddressHeader)
		w.WriteHeader(http.StatusOK)
	})
	return router
}

func TestCallerAuth(t *testing.T) {
	secret := []byte("test-secret")

	t.Run("valid token propagates the address", func(t *testing.T) {
		var seen string
		router := authRouter(secret, &seen)

		token, err := IssueToken(secret, "addr-alice", jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/cmd", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "addr-alice", seen)
	})

	t.Run("missing token", func(t *testing.T) {
		var seen string
		router := authRouter(secret, &seen)

		req := httptest.NewRequest(http.MethodGet, "/cmd", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		var seen string
		router := authRouter(secret, &seen)

		token, err := IssueToken(secret, "addr-alice", jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/cmd", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		var seen string
		router := authRouter(secret, &seen)

		token, err := IssueToken([]byte("other-secret"), "addr-alice", jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/cmd", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("spoofed caller header never reaches the handler", func(t *testing.T) {
		var seen string
		router := mux.NewRouter()
		router.Use(CallerAuth(secret))
		handlerRan := false
		router.HandleFunc("/cmd", func(w http.ResponseWriter, r *http.Request) {
			handlerRan = true
			seen = r.Header.Get(httputil.CallerAddressHeader)
		})

		req := httptest.NewRequest(http.MethodGet, "/cmd", nil)
		req.Header.Set(httputil.CallerAddressHeader, "addr-forged")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, handlerRan)
		assert.Empty(t, seen)
	})
}
