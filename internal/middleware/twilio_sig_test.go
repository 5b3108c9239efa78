package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newEcho(token string) *echo.Echo {
	e := echo.New()
	publicURL := func(r *http.Request) string { return "https://screen.example" + r.URL.RequestURI() }
	e.Use(TwilioAuth(func() string { return token }, publicURL))
	e.POST("/twilio/resume", func(c echo.Context) error {
		params := c.Get(ParamsKey).(map[string]string)
		return c.String(http.StatusOK, params["CallSid"]+":"+c.QueryParam("token"))
	})
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e
}

func TestTwilioAuth(t *testing.T) {
	form := url.Values{"CallSid": {"CA1"}, "From": {"+15550001111"}}
	target := "/twilio/resume?token=abc"

	cases := []struct {
		name      string
		token     string
		signature string
		want      int
	}{
		{"valid", "secret", sign("secret", "https://screen.example"+target, form), http.StatusOK},
		{"wrong signature", "secret", sign("other", "https://screen.example"+target, form), http.StatusUnauthorized},
		{"query not signed", "secret", sign("secret", "https://screen.example/twilio/resume", form), http.StatusUnauthorized},
		{"missing token", "", "x", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
			req.Header.Set("X-Twilio-Signature", tc.signature)
			rec := httptest.NewRecorder()
			newEcho(tc.token).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusOK && rec.Body.String() != "CA1:abc" {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestTwilioAuthSkipsOtherRoutes(t *testing.T) {
	rec := httptest.NewRecorder()
	newEcho("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
