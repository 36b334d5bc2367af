package domain

import (
	"net/http"
	"strings"
	"time"
)

// PolicyInput is the serializable structure evaluated by the policy engine.
// It is built once per request before the authorization stage.
type PolicyInput struct {
	Caller      CallerIdentity    `json:"caller"`
	OperationID string            `json:"operation_id"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Environment string            `json:"environment,omitempty"`
	Context     map[string]any    `json:"context,omitempty"`
}

// secretHeaders lists credential-bearing headers that must never reach the
// policy engine. Matching is case-insensitive on the canonical name.
var secretHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
	"X-Api-Key":           true,
}

// FilterHeaders copies headers into a policy-safe map, stripping
// secret-bearing values. Multi-valued headers are joined with ", ".
func FilterHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		if secretHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}

// AsMap converts the input to the generic map shape the Rego engine consumes.
func (in PolicyInput) AsMap() map[string]any {
	caller := map[string]any{
		"kind":    string(in.Caller.Kind),
		"subject": in.Caller.Subject(),
	}
	if roles := in.Caller.Roles(); len(roles) > 0 {
		rs := make([]any, len(roles))
		for i, r := range roles {
			rs[i] = r
		}
		caller["roles"] = rs
	}
	if in.Caller.Kind == IdentityUser && in.Caller.User.Tenant != "" {
		caller["tenant"] = in.Caller.User.Tenant
	}

	headers := make(map[string]any, len(in.Headers))
	for k, v := range in.Headers {
		headers[k] = v
	}

	m := map[string]any{
		"caller":       caller,
		"operation_id": in.OperationID,
		"method":       in.Method,
		"path":         in.Path,
		"headers":      headers,
		"timestamp":    in.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if in.Environment != "" {
		m["environment"] = in.Environment
	}
	if len(in.Context) > 0 {
		m["context"] = in.Context
	}
	return m
}

// PolicyDecision is the allow/deny outcome of one evaluation.
type PolicyDecision struct {
	Allow       bool           `json:"allow"`
	Reason      string         `json:"reason,omitempty"`
	Obligations map[string]any `json:"obligations,omitempty"`

	// BundleRevision records which bundle produced the decision.
	BundleRevision string `json:"bundle_revision,omitempty"`
}

// Deny builds a denial with the given reason.
func Deny(reason string) PolicyDecision {
	return PolicyDecision{Allow: false, Reason: reason}
}

// Allow builds an allowance.
func Allow() PolicyDecision {
	return PolicyDecision{Allow: true}
}
