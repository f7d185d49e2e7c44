// Package toolid implements the bidirectional encoding between an OpenAPI
// (method, path) pair and the opaque token used as an MCP tool id.
package toolid

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	paramPattern       = regexp.MustCompile(`\{([^{}]*)\}`)
	placeholderPattern = regexp.MustCompile("\x00(\\d+)\x00")
	decodeParamPattern = regexp.MustCompile(`---([a-zA-Z0-9_]+)`)
)

// Encode turns (method, path) into a token of the form METHOD::rest, where
// the literal path text in rest is reduced to [a-z0-9_:-] and each path
// parameter becomes "---" followed by its name spelled exactly as in the
// path (so "{widgetId}" encodes as "---widgetId"). It rejects any path
// already containing "::", which would collide with the method separator.
func Encode(method, path string) (string, error) {
	if method == "" {
		return "", fmt.Errorf("toolid: method must not be empty")
	}
	if strings.Contains(path, "::") {
		return "", fmt.Errorf("toolid: path %q must not contain \"::\"", path)
	}

	var names []string
	p := strings.TrimPrefix(path, "/")
	p = paramPattern.ReplaceAllStringFunc(p, func(m string) string {
		name := m[1 : len(m)-1]
		idx := len(names)
		names = append(names, name)
		return fmt.Sprintf("\x00%d\x00", idx)
	})
	p = strings.ReplaceAll(p, "/", "__")
	p = sanitizeOutsidePlaceholders(p)
	p = placeholderPattern.ReplaceAllStringFunc(p, func(m string) string {
		sub := placeholderPattern.FindStringSubmatch(m)
		idx := 0
		fmt.Sscanf(sub[1], "%d", &idx)
		return "---" + names[idx]
	})

	return strings.ToUpper(method) + "::" + p, nil
}

// Decode recovers (method, path) from a token produced by Encode.
func Decode(id string) (method string, path string, err error) {
	idx := strings.Index(id, "::")
	if idx < 0 {
		return "", "", fmt.Errorf("toolid: %q has no method separator \"::\"", id)
	}
	method = id[:idx]
	if method == "" {
		return "", "", fmt.Errorf("toolid: %q has empty method", id)
	}
	remainder := id[idx+2:]
	remainder = strings.ReplaceAll(remainder, "__", "/")
	remainder = decodeParamPattern.ReplaceAllString(remainder, "{$1}")
	return method, "/" + remainder, nil
}

// Interpolate substitutes path parameters into template, matching the
// original "/a/{x}" style template (before encoding) as well as an encoded
// "---x" style template, using the lookahead rules required to keep
// Google-RPC colon suffixes intact: "/x/---id:act" + id=5 -> "/x/5:act".
func Interpolate(template string, params map[string]string) string {
	result := template
	for name, value := range params {
		re := regexp.MustCompile(
			`\{` + regexp.QuoteMeta(name) + `\}` +
				`|:` + regexp.QuoteMeta(name) + `(?:/|$)` +
				`|---` + regexp.QuoteMeta(name) + `(?:__|/|:|$)`,
		)
		result = re.ReplaceAllStringFunc(result, func(m string) string {
			switch {
			case strings.HasPrefix(m, "{"):
				return value
			case strings.HasPrefix(m, ":"):
				return value + m[len(":"+name):]
			default: // ---name<suffix>
				suffix := m[len("---"+name):]
				return value + suffix
			}
		})
	}
	return result
}

// sanitizeOutsidePlaceholders lower-cases and replaces characters outside
// [a-z0-9_:-] with '-' in every run of text that is not a \x00..\x00
// placeholder, collapsing hyphen runs and trimming each such run's own
// leading/trailing hyphens. Placeholder content (path-parameter names) is
// left untouched so that decoding recovers the original name verbatim.
func sanitizeOutsidePlaceholders(s string) string {
	var sb strings.Builder
	last := 0
	for _, m := range placeholderPattern.FindAllStringIndex(s, -1) {
		sb.WriteString(sanitizeSegment(s[last:m[0]]))
		sb.WriteString(s[m[0]:m[1]])
		last = m[1]
	}
	sb.WriteString(sanitizeSegment(s[last:]))
	return sb.String()
}

func sanitizeSegment(s string) string {
	var sb strings.Builder
	prevDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == ':':
			sb.WriteRune(r)
			prevDash = false
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r + ('a' - 'A'))
			prevDash = false
		case r == '-':
			if !prevDash {
				sb.WriteByte('-')
			}
			prevDash = true
		default:
			if !prevDash {
				sb.WriteByte('-')
			}
			prevDash = true
		}
	}
	return strings.Trim(sb.String(), "-")
}
