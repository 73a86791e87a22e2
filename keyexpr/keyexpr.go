// Package keyexpr provides hierarchical, wildcard-matchable key expressions.
//
// A key expression is a '/'-separated path such as "fleet/vehicle/12/speed".
// Two wildcard chunks are supported:
//   - "*" matches exactly one chunk
//   - "**" matches any number of chunks, including none
//
// Key expressions are the addressing unit for subscriptions, publications and
// queries. The package offers validation plus the two set relations the rest
// of the system needs: Includes (superset) and Intersects (non-empty overlap).
package keyexpr

import (
	"fmt"
	"strings"
)

// KeyExpr is a validated key expression. The zero value is invalid; use New.
type KeyExpr string

// New validates and canonicalizes a key expression.
// Returns an error for empty expressions, empty chunks, leading or trailing
// separators, and wildcards embedded inside a chunk ("foo*" is rejected,
// "foo/*" is not).
func New(s string) (KeyExpr, error) {
	if s == "" {
		return "", fmt.Errorf("key expression cannot be empty")
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return "", fmt.Errorf("key expression %q cannot start or end with '/'", s)
	}
	chunks := strings.Split(s, "/")
	for _, c := range chunks {
		if c == "" {
			return "", fmt.Errorf("key expression %q contains an empty chunk", s)
		}
		if strings.ContainsAny(c, " \t\n?#$") {
			return "", fmt.Errorf("key expression %q contains forbidden characters", s)
		}
		if strings.Contains(c, "*") && c != "*" && c != "**" {
			return "", fmt.Errorf("key expression %q: wildcard must be a whole chunk", s)
		}
	}
	return KeyExpr(canonicalize(chunks)), nil
}

// MustNew is New for static expressions; it panics on invalid input.
func MustNew(s string) KeyExpr {
	ke, err := New(s)
	if err != nil {
		panic(err)
	}
	return ke
}

// canonicalize collapses redundant wildcard runs: "**/**" -> "**" and
// "**/*" -> "*/**" so equal expressions compare equal as strings.
func canonicalize(chunks []string) string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c == "**" && len(out) > 0 && out[len(out)-1] == "**" {
			continue
		}
		if c == "*" && len(out) > 0 && out[len(out)-1] == "**" {
			out[len(out)-1] = "*"
			c = "**"
		}
		out = append(out, c)
	}
	return strings.Join(out, "/")
}

// String returns the expression text.
func (ke KeyExpr) String() string { return string(ke) }

// Chunks returns the '/'-separated chunks of the expression.
func (ke KeyExpr) Chunks() []string { return strings.Split(string(ke), "/") }

// IsWild reports whether the expression contains any wildcard chunk.
func (ke KeyExpr) IsWild() bool {
	for _, c := range ke.Chunks() {
		if c == "*" || c == "**" {
			return true
		}
	}
	return false
}

// Join appends a sub-expression, validating the result.
func (ke KeyExpr) Join(sub string) (KeyExpr, error) {
	return New(string(ke) + "/" + sub)
}
