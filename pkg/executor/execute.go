package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ivo-toby/mcp-openapi-server/pkg/auth"
	"github.com/ivo-toby/mcp-openapi-server/pkg/mcperr"
)

const (
	requestTimeout  = 30 * time.Second
	maxBodyBytes    = 50 * 1024 * 1024 // 50 MiB
	maxRedirects    = 5
)

// NewClient builds the bounded outbound HTTP client used for every tool
// call: 30s timeout, a 5-redirect cap, and a cookie jar only when the
// caller says the OpenAPI document declares cookie parameters.
func NewClient(useCookieJar bool) *http.Client {
	client := &http.Client{
		Timeout: requestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	if useCookieJar {
		jar, _ := cookiejar.New(nil)
		client.Jar = jar
	}
	return client
}

// Result is the outcome of one tool invocation, ready for the dispatcher to
// wrap in the MCP content envelope.
type Result struct {
	Text    string
	IsError bool
}

// Execute performs exactly one logical tool call for an already bound
// request against baseURL, retrying at most once on 401/403 when provider
// authorises it.
func Execute(ctx context.Context, client *http.Client, baseURL string, bound *BoundRequest, provider auth.Provider) (*Result, *mcperr.Error) {
	if provider == nil {
		provider = auth.NoopProvider{}
	}
	providerConfigured := !isNoop(provider)

	if err := CheckHeaderSafety(bound.Headers, providerConfigured); err != nil {
		return nil, err
	}

	resp, attemptErr := attempt(ctx, client, baseURL, bound, provider)
	if attemptErr != nil {
		return nil, attemptErr
	}
	defer resp.Body.Close()

	if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) &&
		provider.HandleAuthError(ctx, resp.StatusCode) {
		resp.Body.Close()
		resp, attemptErr = attempt(ctx, client, baseURL, bound, provider)
		if attemptErr != nil {
			return nil, attemptErr
		}
		defer resp.Body.Close()
	}

	return readResult(resp)
}

func attempt(ctx context.Context, client *http.Client, baseURL string, bound *BoundRequest, provider auth.Provider) (*http.Response, *mcperr.Error) {
	authHeaders := provider.AuthHeaders(ctx)
	mergedHeaders, mergeErr := MergeAuthHeaders(bound.Headers, authHeaders)
	if mergeErr != nil {
		return nil, mergeErr
	}

	req, err := buildRequest(ctx, baseURL, bound, mergedHeaders)
	if err != nil {
		if mcErr, ok := err.(*mcperr.Error); ok {
			return nil, mcErr
		}
		return nil, mcperr.Wrap(mcperr.NetworkError, err, "building outbound request")
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, mcperr.Wrap(mcperr.Timeout, ctxErr, "outbound request cancelled")
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, mcperr.Wrap(mcperr.Timeout, err, "outbound request timed out")
		}
		return nil, mcperr.Wrap(mcperr.NetworkError, err, "outbound request failed")
	}
	return resp, nil
}

func buildRequest(ctx context.Context, baseURL string, bound *BoundRequest, headers map[string]string) (*http.Request, error) {
	fullURL := strings.TrimRight(baseURL, "/") + bound.Path
	if len(bound.Query) > 0 {
		fullURL += "?" + encodeQuery(bound.Query)
	}

	var bodyReader io.Reader
	var contentType string
	if bound.HasBody {
		data, err := json.Marshal(bound.Body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}
		if len(data) > maxBodyBytes {
			return nil, mcperr.New(mcperr.BodyTooLarge, fmt.Sprintf("request body of %d bytes exceeds the %d byte limit", len(data), maxBodyBytes))
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, bound.Method, fullURL, bodyReader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	var cookieParts []string
	for name, value := range bound.Cookies {
		cookieParts = append(cookieParts, fmt.Sprintf("%s=%s", name, value))
	}
	if len(cookieParts) > 0 {
		req.Header.Set("Cookie", strings.Join(cookieParts, "; "))
	}
	return req, nil
}

// encodeQuery renders query the way url.Values.Encode does, except commas
// are left unescaped: a comma-joined array value comes out as "a,b" on the
// wire instead of "a%2Cb", matching what an upstream expecting a literal
// comma-separated list typically wants, while staying a legal query
// component (commas are sub-delims, valid unencoded there per RFC 3986).
func encodeQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		escapedKey := url.QueryEscape(k)
		for _, v := range query[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escapedKey)
			b.WriteByte('=')
			b.WriteString(strings.ReplaceAll(url.QueryEscape(v), "%2C", ","))
		}
	}
	return b.String()
}

func readResult(resp *http.Response) (*Result, *mcperr.Error) {
	limited := io.LimitReader(resp.Body, maxBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, mcperr.Wrap(mcperr.NetworkError, err, "reading response body")
	}
	if len(data) > maxBodyBytes {
		return nil, mcperr.New(mcperr.BodyTooLarge, fmt.Sprintf("response body exceeds the %d byte limit", maxBodyBytes))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Result{Text: string(data)}, nil
	}

	return &Result{Text: sanitizeErrorBody(resp.StatusCode, data), IsError: true}, nil
}

// sanitizeErrorBody redacts 401/403 bodies outright and truncates
// everything else to 1000 characters, so an upstream error never leaks
// more of its response than a caller needs to diagnose the failure.
func sanitizeErrorBody(statusCode int, body []byte) string {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return "[Authentication/Authorization error — details redacted]"
	}
	text := string(body)
	if len(text) > 1000 {
		text = text[:1000] + "… [truncated]"
	}
	return fmt.Sprintf("HTTP %d: %s", statusCode, text)
}

func isNoop(p auth.Provider) bool {
	_, ok := p.(auth.NoopProvider)
	return ok
}
