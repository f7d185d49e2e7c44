// Package abbrev derives a stable, collision-resistant MCP tool display
// name from an OpenAPI operationId (or a synthesised METHOD-path fallback).
package abbrev

import (
	"crypto/sha1"
	"fmt"
	"regexp"
	"strings"
)

const maxNameLength = 64

var fillerTokens = map[string]bool{
	"controller": true,
	"api":        true,
	"service":    true,
	"method":     true,
	"the":        true,
	"and":        true,
	"for":        true,
	"with":       true,
}

var abbreviations = map[string]string{
	"management":    "mgmt",
	"user":          "usr",
	"service":       "svc",
	"resource":      "resrc",
	"update":        "upd",
	"configuration": "config",
	"authority":     "auth",
	"list":          "lst",
}

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	splitRunes    = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	nameCharset   = regexp.MustCompile(`^[a-z0-9_-]+$`)
	dashRuns      = regexp.MustCompile(`-{2,}`)
)

// Abbreviate derives the display name for operationID. When disabled is
// true, steps that drop filler tokens, apply the abbreviation dictionary,
// and strip vowels are skipped; only tokenisation and final validation
// still run, and an error is returned if the result violates the MCP name
// constraints.
func Abbreviate(operationID string, disabled bool) (string, error) {
	tokens := tokenize(operationID)

	if disabled {
		name := finalize(strings.Join(tokens, "-"))
		if name == "" {
			name = fallbackName(operationID)
		}
		if !nameCharset.MatchString(name) || len(name) > maxNameLength {
			return "", fmt.Errorf("abbrev: %q does not fit the MCP name constraints with abbreviation disabled", name)
		}
		return name, nil
	}

	filtered := dropFillers(tokens)
	name := finalize(strings.Join(filtered, "-"))
	if len(name) <= maxNameLength {
		return nonEmpty(name, operationID), nil
	}

	abbreviated := applyDictionary(filtered)
	name = finalize(strings.Join(abbreviated, "-"))
	if len(name) <= maxNameLength {
		return nonEmpty(name, operationID), nil
	}

	stripped := stripVowels(abbreviated)
	name = finalize(strings.Join(stripped, "-"))
	if len(name) <= maxNameLength {
		return nonEmpty(name, operationID), nil
	}

	name = truncateWithDigest(name, operationID)
	return nonEmpty(name, operationID), nil
}

func nonEmpty(name, operationID string) string {
	if name == "" {
		return fallbackName(operationID)
	}
	return name
}

func fallbackName(operationID string) string {
	return "tool-" + digest(operationID, 8)
}

// tokenize implements step 1: lowercase, split on camel-case boundaries,
// digits, underscores and hyphens.
func tokenize(s string) []string {
	s = camelBoundary.ReplaceAllString(s, "$1 $2")
	s = splitRunes.ReplaceAllString(s, " ")
	fields := strings.Fields(s)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

func dropFillers(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !fillerTokens[t] {
			out = append(out, t)
		}
	}
	return out
}

func applyDictionary(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if abbr, ok := abbreviations[t]; ok {
			out[i] = abbr
		} else {
			out[i] = t
		}
	}
	return out
}

func stripVowels(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if len(t) <= 4 {
			out[i] = t
			continue
		}
		first := t[:1]
		rest := t[1:]
		var sb strings.Builder
		sb.WriteString(first)
		for _, r := range rest {
			switch r {
			case 'a', 'e', 'i', 'o', 'u':
				continue
			default:
				sb.WriteRune(r)
			}
		}
		out[i] = sb.String()
	}
	return out
}

func truncateWithDigest(name, operationID string) string {
	const keep = 59
	if len(name) > keep {
		name = name[:keep]
	}
	return finalize(name) + "-" + digest(operationID, 4)
}

func digest(s string, hexChars int) string {
	sum := sha1.Sum([]byte(s))
	hex := fmt.Sprintf("%x", sum)
	if hexChars > len(hex) {
		hexChars = len(hex)
	}
	return hex[:hexChars]
}

// finalize implements step 7: collapse repeated hyphens, strip leading and
// trailing hyphens.
func finalize(s string) string {
	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
