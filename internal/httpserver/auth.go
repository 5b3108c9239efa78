package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// apiAuthOK accepts the password as a ?password= query value, an
// X-Auth-Token header or a bearer token. An empty expected value disables
// the check.
func apiAuthOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	candidates := []string{
		r.URL.Query().Get("password"),
		r.Header.Get("X-Auth-Token"),
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		candidates = append(candidates, strings.TrimSpace(auth[7:]))
	}
	for _, c := range candidates {
		if c != "" && subtle.ConstantTimeCompare([]byte(c), []byte(expected)) == 1 {
			return true
		}
	}
	return false
}

func apiAuth(expected string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !apiAuthOK(c.Request(), expected) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
