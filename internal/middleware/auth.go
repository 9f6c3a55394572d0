// Package middleware provides HTTP middleware for the engine's API surface.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/lottoledger/lotto-engine/internal/httputil"
)

// Claims carries the authenticated on-ledger address of the caller.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// CallerAuth validates the bearer token on command requests and propagates
// the authenticated address to handlers via the X-Caller-Address header.
// Address equality against the configured manager or oracle address is
// checked by the engine itself, not here.
func CallerAuth(secret []byte) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Never trust a caller-supplied address header.
			r.Header.Del(httputil.CallerAddressHeader)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				httputil.Unauthorized(w, "missing authorization")
				return
			}

			address, err := validateToken(authHeader[len("Bearer "):], secret)
			if err != nil {
				httputil.Unauthorized(w, "invalid token")
				return
			}

			r.Header.Set(httputil.CallerAddressHeader, address)
			next.ServeHTTP(w, r)
		})
	}
}

func validateToken(tokenString string, secret []byte) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if strings.TrimSpace(claims.Address) == "" {
		return "", fmt.Errorf("token missing address claim")
	}
	return claims.Address, nil
}

// IssueToken mints a caller token for the given address. Used by operational
// tooling and tests.
func IssueToken(secret []byte, address string, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Address:          address,
		RegisteredClaims: claims,
	})
	return token.SignedString(secret)
}
