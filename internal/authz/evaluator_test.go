package authz

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

const allowUsersPolicy = `
package authz

default allow := false

allow if {
    input.caller.kind == "user"
}
`

const allowAllPolicy = `
package authz

default allow := false

allow if true
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestEvaluator(t *testing.T, policy string, ttl time.Duration) (*Evaluator, string) {
	t.Helper()
	path := writePolicy(t, policy)
	e, err := NewEvaluator(context.Background(), Config{
		Path:     path,
		Query:    "data.authz.allow",
		CacheTTL: ttl,
	}, slog.Default())
	require.NoError(t, err)
	return e, path
}

func userInput() domain.PolicyInput {
	return domain.PolicyInput{
		Caller:      domain.UserCaller("alice", []string{"admin"}, "acme"),
		OperationID: "user.get",
		Method:      "GET",
		Path:        "/users/alice",
		Timestamp:   time.Now(),
		Environment: "test",
	}
}

func anonymousInput() domain.PolicyInput {
	in := userInput()
	in.Caller = domain.AnonymousCaller()
	return in
}

func TestEvaluate_AllowAndDeny(t *testing.T) {
	e, _ := newTestEvaluator(t, allowUsersPolicy, 0)

	decision, err := e.Evaluate(context.Background(), userInput())
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, e.Revision(), decision.BundleRevision)

	decision, err = e.Evaluate(context.Background(), anonymousInput())
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.NotEmpty(t, decision.Reason)
}

func TestEvaluate_FailClosedWhenNoRuleMatches(t *testing.T) {
	// No default rule: an unmatched input leaves the query undefined, which
	// must come out as deny, never as an implicit allow.
	policy := `
package authz

allow if {
    input.caller.kind == "user"
}
`
	e, _ := newTestEvaluator(t, policy, 0)

	decision, err := e.Evaluate(context.Background(), anonymousInput())
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, "no policy rule matched", decision.Reason)
}

func TestEvaluate_StructuredDecision(t *testing.T) {
	policy := `
package authz

default decision := {"allow": false, "reason": "workloads only"}

decision := {"allow": true, "obligations": {"log_level": "debug"}} if {
    input.caller.kind == "service"
}
`
	path := writePolicy(t, policy)
	e, err := NewEvaluator(context.Background(), Config{
		Path:  path,
		Query: "data.authz.decision",
	}, slog.Default())
	require.NoError(t, err)

	in := userInput()
	in.Caller = domain.ServiceCaller("prod.acme", "/billing/api")
	decision, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, map[string]any{"log_level": "debug"}, decision.Obligations)

	decision, err = e.Evaluate(context.Background(), anonymousInput())
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, "workloads only", decision.Reason)
}

func TestNewEvaluator_CompileFailureIsFatal(t *testing.T) {
	path := writePolicy(t, `package authz%%%broken`)
	_, err := NewEvaluator(context.Background(), Config{Path: path}, slog.Default())
	require.Error(t, err)
}

func TestNewEvaluator_EmptyBundle(t *testing.T) {
	dir := t.TempDir()
	_, err := NewEvaluator(context.Background(), Config{Path: dir}, slog.Default())
	require.Error(t, err)
}

func TestEvaluate_CachedDecision(t *testing.T) {
	e, _ := newTestEvaluator(t, allowUsersPolicy, time.Minute)

	first, err := e.Evaluate(context.Background(), userInput())
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), userInput())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReload_SwapsBundleAndClearsCache(t *testing.T) {
	e, path := newTestEvaluator(t, allowAllPolicy, time.Minute)
	oldRevision := e.Revision()

	// Warm the cache with an allow decision.
	decision, err := e.Evaluate(context.Background(), userInput())
	require.NoError(t, err)
	require.True(t, decision.Allow)

	denyAll := `
package authz

default allow := false
`
	require.NoError(t, os.WriteFile(path, []byte(denyAll), 0o644))
	require.NoError(t, e.Reload(context.Background()))
	assert.NotEqual(t, oldRevision, e.Revision())

	// The cached allow must not survive the swap: the same input now
	// evaluates against the new bundle.
	decision, err = e.Evaluate(context.Background(), userInput())
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, e.Revision(), decision.BundleRevision)
}

func TestReload_FailureKeepsLastKnownGood(t *testing.T) {
	e, path := newTestEvaluator(t, allowUsersPolicy, 0)
	oldRevision := e.Revision()

	require.NoError(t, os.WriteFile(path, []byte(`not rego at all %%%`), 0o644))
	require.Error(t, e.Reload(context.Background()))

	assert.Equal(t, oldRevision, e.Revision())
	decision, err := e.Evaluate(context.Background(), userInput())
	require.NoError(t, err)
	assert.True(t, decision.Allow)
}

func TestLoadBundle_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.rego"), []byte(allowUsersPolicy), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helpers.rego"), []byte(`
package helpers

is_admin(caller) if {
    caller.roles[_] == "admin"
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a policy"), 0o644))

	bundle, err := LoadBundle(context.Background(), dir, "data.authz.allow")
	require.NoError(t, err)
	assert.Len(t, bundle.Sources, 2)
}

func TestRevisionOf_Deterministic(t *testing.T) {
	a := map[string]string{"a.rego": "package a", "b.rego": "package b"}
	b := map[string]string{"b.rego": "package b", "a.rego": "package a"}
	assert.Equal(t, revisionOf(a), revisionOf(b))

	c := map[string]string{"a.rego": "package a", "b.rego": "package changed"}
	assert.NotEqual(t, revisionOf(a), revisionOf(c))
}

func TestCacheKey_IgnoresVolatileFields(t *testing.T) {
	a := userInput()
	b := userInput()
	b.Timestamp = b.Timestamp.Add(time.Hour)
	b.Headers = map[string]string{"x-extra": "1"}
	assert.Equal(t, cacheKey(a), cacheKey(b))

	c := userInput()
	c.OperationID = "user.delete"
	assert.NotEqual(t, cacheKey(a), cacheKey(c))
}
