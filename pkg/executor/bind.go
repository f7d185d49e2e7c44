// Package executor translates a tool invocation into exactly one outbound
// HTTP transaction: parameter binding, header safety, authentication with
// single retry, and error-response sanitisation.
package executor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cast"
	"github.com/yosida95/uritemplate/v3"

	"github.com/ivo-toby/mcp-openapi-server/pkg/mcperr"
	"github.com/ivo-toby/mcp-openapi-server/pkg/openapi2mcp"
	"github.com/ivo-toby/mcp-openapi-server/pkg/toolid"
)

// systemHeaders are never settable by a caller-supplied header parameter;
// they are controlled by the transport layer and could otherwise enable
// request smuggling or host-header injection.
var systemHeaders = map[string]bool{
	"host":             true,
	"content-length":   true,
	"transfer-encoding": true,
	"connection":       true,
	"upgrade":          true,
	"te":               true,
	"trailer":          true,
	"proxy-connection": true,
	"keep-alive":       true,
}

// BoundRequest is the fully bound, not-yet-authenticated request.
type BoundRequest struct {
	Method  string
	Path    string // interpolated, URL-escaped path (no leading host)
	Query   url.Values
	Headers map[string]string
	Cookies map[string]string
	Body    any
	HasBody bool
}

func bodylessMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "DELETE", "HEAD", "OPTIONS":
		return true
	default:
		return false
	}
}

// Bind maps a tool's declared parameters and any remainder arguments
// into path, query, header, cookie, and body locations on one request.
func Bind(tool *openapi2mcp.Tool, args map[string]any) (*BoundRequest, *mcperr.Error) {
	declared := make(map[string]bool, len(tool.ParametersMeta))
	query := url.Values{}
	headers := map[string]string{}
	cookies := map[string]string{}
	body := map[string]any{}
	hasBody := false
	pathParams := map[string]string{}
	var wholeBody any
	wholeBodySet := false

	for _, pm := range tool.ParametersMeta {
		declared[pm.Name] = true
		val, present := args[pm.Name]
		if !present {
			if pm.Required {
				return nil, mcperr.New(mcperr.MissingParameter, fmt.Sprintf("missing required parameter %q", pm.Name))
			}
			continue
		}
		switch pm.Location {
		case openapi2mcp.LocationPath:
			pathParams[pm.Name] = cast.ToString(val)
		case openapi2mcp.LocationQuery:
			addQueryValue(query, pm.Name, val)
		case openapi2mcp.LocationHeader:
			headers[pm.Name] = cast.ToString(val)
		case openapi2mcp.LocationCookie:
			cookies[pm.Name] = cast.ToString(val)
		case openapi2mcp.LocationBody:
			if pm.BodyWhole {
				wholeBody = val
				wholeBodySet = true
			} else {
				field := pm.BodyField
				if field == "" {
					field = pm.Name
				}
				body[field] = val
			}
			hasBody = true
		}
	}

	for name, val := range args {
		if declared[name] {
			continue
		}
		if bodylessMethod(tool.HTTPMethod) {
			addQueryValue(query, name, val)
		} else {
			body[name] = val
			hasBody = true
		}
	}

	interpolated := toolid.Interpolate(tool.OriginalPath, escapePathParams(pathParams))

	bound := &BoundRequest{
		Method:  strings.ToUpper(tool.HTTPMethod),
		Path:    interpolated,
		Query:   query,
		Headers: headers,
		Cookies: cookies,
		HasBody: hasBody,
	}
	if wholeBodySet {
		bound.Body = wholeBody
	} else if hasBody {
		bound.Body = body
	}
	return bound, nil
}

func escapePathParams(params map[string]string) map[string]string {
	escaped := make(map[string]string, len(params))
	for k, v := range params {
		escaped[k] = url.PathEscape(v)
	}
	return escaped
}

// addQueryValue accumulates val under name, comma-joining array values
// using RFC 6570's unexploded list-expansion form, so a name that happens
// to be a valid URI template varname gets exactly the same comma-joined
// rendering a template engine would produce; names that aren't valid
// varnames (hyphens, etc.) fall back to a literal strings.Join of the
// same parts.
func addQueryValue(query url.Values, name string, val any) {
	if arr, ok := val.([]any); ok {
		parts := make([]string, len(arr))
		for i, v := range arr {
			parts[i] = cast.ToString(v)
		}
		query.Set(name, joinArrayParts(name, parts))
		return
	}
	query.Set(name, cast.ToString(val))
}

func joinArrayParts(name string, parts []string) string {
	tmpl, err := uritemplate.New("{" + name + "}")
	if err != nil {
		return strings.Join(parts, ",")
	}
	values := uritemplate.Values{}
	values.Set(name, uritemplate.List(parts...))
	expanded, err := tmpl.Expand(values)
	if err != nil {
		return strings.Join(parts, ",")
	}
	return expanded
}

// CheckHeaderSafety enforces CRLF rejection, the system-header blocklist,
// and the auth-header back-door rule: a caller header literally named
// Authorization or Cookie is only permitted when providerConfigured is
// false.
func CheckHeaderSafety(headers map[string]string, providerConfigured bool) *mcperr.Error {
	for name, value := range headers {
		if strings.ContainsAny(value, "\r\n") {
			return mcperr.New(mcperr.HeaderInjection, fmt.Sprintf("header %q contains CR or LF", name))
		}
		lname := strings.ToLower(name)
		if systemHeaders[lname] {
			return mcperr.New(mcperr.SystemHeaderConflict, fmt.Sprintf("header %q is system-controlled", name))
		}
		if providerConfigured && (lname == "authorization" || lname == "cookie") {
			return mcperr.New(mcperr.AuthHeaderConflict, fmt.Sprintf("header %q may only be set by the caller when no auth provider is configured", name))
		}
	}
	return nil
}

// MergeAuthHeaders merges authHeaders over bound, rejecting any name
// collision (case-insensitive) with AuthHeaderConflict. Provider-supplied
// headers in the system-controlled set are skipped rather than merged: a
// provider has no business setting Host, Content-Length, and the like.
func MergeAuthHeaders(bound map[string]string, authHeaders map[string]string) (map[string]string, *mcperr.Error) {
	merged := make(map[string]string, len(bound)+len(authHeaders))
	for k, v := range bound {
		merged[k] = v
	}
	for name, value := range authHeaders {
		lname := strings.ToLower(name)
		if systemHeaders[lname] {
			continue
		}
		for existing := range bound {
			if strings.ToLower(existing) == lname {
				return nil, mcperr.New(mcperr.AuthHeaderConflict, fmt.Sprintf("auth provider header %q collides with a caller-supplied header", name))
			}
		}
		merged[name] = value
	}
	return merged, nil
}
