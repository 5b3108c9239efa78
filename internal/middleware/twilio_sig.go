// Package middleware holds Echo middleware shared by the webhook routes.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/client"
)

// ParamsKey is the echo.Context key under which verified webhook form
// parameters are stored.
const ParamsKey = "twilioParams"

// TwilioAuth rejects /twilio/ requests whose X-Twilio-Signature does not
// match. publicURL returns the URL Twilio was configured to call, query
// included; when nil the request host is used.
func TwilioAuth(getAuthToken func() string, publicURL func(r *http.Request) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if !strings.HasPrefix(r.URL.Path, "/twilio/") {
				return next(c)
			}

			authToken := getAuthToken()
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			form, err := url.ParseQuery(string(body))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}
			params := make(map[string]string, len(form))
			for key, values := range form {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			signed := "https://" + r.Host + r.URL.RequestURI()
			if publicURL != nil {
				signed = publicURL(r)
			}
			validator := client.NewRequestValidator(authToken)
			signature := r.Header.Get("X-Twilio-Signature")
			if signature == "" || !validator.Validate(signed, params, signature) {
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			c.Set(ParamsKey, params)
			return next(c)
		}
	}
}
