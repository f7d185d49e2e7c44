package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ivo-toby/mcp-openapi-server/pkg/mcperr"
)

type retryingProvider struct {
	calls     int32
	authorize bool
}

func (p *retryingProvider) AuthHeaders(context.Context) map[string]string {
	n := atomic.AddInt32(&p.calls, 1)
	return map[string]string{"Authorization": "Bearer token-" + itoa(int(n))}
}

func (p *retryingProvider) HandleAuthError(context.Context, int) bool {
	return p.authorize
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return string(b)
}

func TestExecuteRetriesOnceOn401(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("secret upstream detail"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	provider := &retryingProvider{authorize: true}
	bound := &BoundRequest{Method: "GET", Path: "/widgets"}
	client := NewClient(false)

	result, err := Execute(context.Background(), client, srv.URL, bound, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success after retry, got error result: %s", result.Text)
	}
	if attempts != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
	if provider.calls != 2 {
		t.Errorf("expected auth headers fetched fresh per attempt, got %d", provider.calls)
	}
}

func TestExecuteDoesNotRetryWhenProviderDeclines(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	provider := &retryingProvider{authorize: false}
	bound := &BoundRequest{Method: "GET", Path: "/widgets"}
	client := NewClient(false)

	result, err := Execute(context.Background(), client, srv.URL, bound, provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts)
	}
	if !strings.Contains(result.Text, "redacted") {
		t.Errorf("expected redacted 401 body, got %q", result.Text)
	}
}

func TestExecuteRedacts403Body(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("you are not allowed to see widget-42's internal owner id 99887"))
	}))
	defer srv.Close()

	bound := &BoundRequest{Method: "GET", Path: "/widgets"}
	client := NewClient(false)

	result, err := Execute(context.Background(), client, srv.URL, bound, &retryingProvider{authorize: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(result.Text, "99887") {
		t.Errorf("expected upstream body to be redacted, got %q", result.Text)
	}
}

func TestExecuteTruncatesLongNonAuthErrorBody(t *testing.T) {
	long := strings.Repeat("x", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(long))
	}))
	defer srv.Close()

	bound := &BoundRequest{Method: "GET", Path: "/widgets"}
	client := NewClient(false)

	result, err := Execute(context.Background(), client, srv.URL, bound, &retryingProvider{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Text, "truncated") {
		t.Errorf("expected truncation marker, got length %d", len(result.Text))
	}
}

func TestExecuteRejectsOversizedRequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("upstream should never be reached for an oversized body")
	}))
	defer srv.Close()

	bound := &BoundRequest{Method: "POST", Path: "/widgets", HasBody: true, Body: strings.Repeat("x", maxBodyBytes+1)}
	client := NewClient(false)

	_, err := Execute(context.Background(), client, srv.URL, bound, &retryingProvider{})
	if err == nil {
		t.Fatalf("expected an error for an oversized request body")
	}
	if err.Kind != mcperr.BodyTooLarge {
		t.Errorf("expected BodyTooLarge, got %v", err.Kind)
	}
}

func TestExecuteRejectsOversizedResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(strings.Repeat("x", maxBodyBytes+1)))
	}))
	defer srv.Close()

	bound := &BoundRequest{Method: "GET", Path: "/widgets"}
	client := NewClient(false)

	_, err := Execute(context.Background(), client, srv.URL, bound, &retryingProvider{})
	if err == nil {
		t.Fatalf("expected an error for an oversized response body")
	}
	if err.Kind != mcperr.BodyTooLarge {
		t.Errorf("expected BodyTooLarge, got %v", err.Kind)
	}
}

func TestExecuteSendsCommaJoinedQueryArrayUnescaped(t *testing.T) {
	var gotRawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	query := url.Values{"tags": {"a,b"}}
	bound := &BoundRequest{Method: "GET", Path: "/widgets", Query: query}
	client := NewClient(false)

	_, err := Execute(context.Background(), client, srv.URL, bound, &retryingProvider{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotRawQuery != "tags=a,b" {
		t.Errorf("raw query = %q, want %q", gotRawQuery, "tags=a,b")
	}
}

func TestExecuteRejectsUnsafeHeader(t *testing.T) {
	bound := &BoundRequest{Method: "GET", Path: "/widgets", Headers: map[string]string{"Host": "evil"}}
	client := NewClient(false)

	_, err := Execute(context.Background(), client, "http://example.invalid", bound, &retryingProvider{})
	if err == nil {
		t.Fatalf("expected header-safety error")
	}
}
