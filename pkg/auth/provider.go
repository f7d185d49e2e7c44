// Package auth defines the pluggable authentication provider the request
// executor consults before every outbound call.
package auth

import (
	"context"
	"strings"
)

// Provider supplies request-time authentication headers and decides
// whether a failed call should be retried once. This is the core's only
// authentication contract; token refresh, credential storage and scheme
// negotiation belong in a concrete implementation, not here.
type Provider interface {
	// AuthHeaders returns the headers to merge over the bound request.
	// Called fresh before every outbound call, including the retry.
	AuthHeaders(ctx context.Context) map[string]string
	// HandleAuthError is consulted only after a 401/403 response. Returning
	// true authorises exactly one retry with freshly fetched headers.
	HandleAuthError(ctx context.Context, statusCode int) bool
}

// NoopProvider supplies no headers and never retries. It is the default
// when no authentication is configured.
type NoopProvider struct{}

func (NoopProvider) AuthHeaders(context.Context) map[string]string { return nil }
func (NoopProvider) HandleAuthError(context.Context, int) bool     { return false }

// StaticProvider returns a fixed set of headers parsed once at startup
// (typically from repeated --headers Name:Value flags) and never retries,
// since there is no fresher credential to fetch.
type StaticProvider struct {
	headers map[string]string
}

// NewStaticProvider builds a StaticProvider from "Name:Value" pairs.
func NewStaticProvider(pairs []string) *StaticProvider {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return &StaticProvider{headers: headers}
}

func (p *StaticProvider) AuthHeaders(context.Context) map[string]string {
	out := make(map[string]string, len(p.headers))
	for k, v := range p.headers {
		out[k] = v
	}
	return out
}

func (p *StaticProvider) HandleAuthError(context.Context, int) bool { return false }
