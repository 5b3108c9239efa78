package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCerebras_NoKey(t *testing.T) {
	c := NewCerebrasClient("", "model")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, "hi"); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestCerebras_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) },
			func(err error) bool { var se *StatusError; return errors.As(err, &se) && se.Code == 500 }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("not-json")) },
			func(err error) bool { return err != nil }},
		{"empty_choices", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}, func(err error) bool { return errors.Is(err, ErrNoAnswer) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewCerebrasClient("key", "model")
			c.HTTPClient = &http.Client{Timeout: 1 * time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				req.URL.Scheme = "http"
				req.URL.Host = srv.Listener.Addr().String()
				return http.DefaultTransport.RoundTrip(req)
			})}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.Complete(ctx, "hi"); !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCerebras_Complete(t *testing.T) {
	var got chatCompletionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  Bob Smith \n"}}]}`))
	}))
	defer srv.Close()

	c := NewCerebrasClient("key", "llama3.1-8b")
	c.HTTPClient = &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
	out, err := c.Complete(context.Background(), "its bob smith")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Bob Smith" {
		t.Fatalf("got %q", out)
	}
	if got.Model != "llama3.1-8b" || len(got.Messages) != 2 || got.Messages[1].Content != "its bob smith" || got.MaxTokens != 128 {
		t.Fatalf("request = %+v", got)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
