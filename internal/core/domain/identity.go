package domain

import (
	"fmt"
	"strings"
)

// IdentityKind discriminates the caller identity variants.
type IdentityKind string

const (
	// IdentityService is a workload identity (trust domain + workload path).
	IdentityService IdentityKind = "service"
	// IdentityUser is an end-user identity (user id, roles, tenant).
	IdentityUser IdentityKind = "user"
	// IdentityAPIKey is a machine identity scoped by an API key.
	IdentityAPIKey IdentityKind = "api_key"
	// IdentityAnonymous is the absence of any credential.
	IdentityAnonymous IdentityKind = "anonymous"
)

// ServiceIdentity identifies a calling workload, SPIFFE-style.
type ServiceIdentity struct {
	TrustDomain  string `json:"trust_domain"`
	WorkloadPath string `json:"workload_path"`
}

// UserIdentity identifies an end user.
type UserIdentity struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
	Tenant string   `json:"tenant,omitempty"`
}

// APIKeyIdentity identifies an API-key caller.
type APIKeyIdentity struct {
	KeyID  string   `json:"key_id"`
	Scopes []string `json:"scopes,omitempty"`
}

// CallerIdentity is a closed variant over the four identity kinds. Exactly
// one variant is populated; the zero value is anonymous. Construct values
// through the ServiceCaller/UserCaller/APIKeyCaller/AnonymousCaller helpers
// so the invariant holds.
type CallerIdentity struct {
	Kind    IdentityKind     `json:"kind"`
	Service *ServiceIdentity `json:"service,omitempty"`
	User    *UserIdentity    `json:"user,omitempty"`
	APIKey  *APIKeyIdentity  `json:"api_key,omitempty"`
}

// ServiceCaller builds a service-identity caller.
func ServiceCaller(trustDomain, workloadPath string) CallerIdentity {
	return CallerIdentity{
		Kind:    IdentityService,
		Service: &ServiceIdentity{TrustDomain: trustDomain, WorkloadPath: workloadPath},
	}
}

// UserCaller builds a user-identity caller.
func UserCaller(userID string, roles []string, tenant string) CallerIdentity {
	return CallerIdentity{
		Kind: IdentityUser,
		User: &UserIdentity{UserID: userID, Roles: roles, Tenant: tenant},
	}
}

// APIKeyCaller builds an API-key caller.
func APIKeyCaller(keyID string, scopes []string) CallerIdentity {
	return CallerIdentity{
		Kind:   IdentityAPIKey,
		APIKey: &APIKeyIdentity{KeyID: keyID, Scopes: scopes},
	}
}

// AnonymousCaller builds an anonymous caller.
func AnonymousCaller() CallerIdentity {
	return CallerIdentity{Kind: IdentityAnonymous}
}

// IsAnonymous reports whether no credential was presented.
func (c CallerIdentity) IsAnonymous() bool {
	return c.Kind == IdentityAnonymous || c.Kind == ""
}

// Subject returns a stable, loggable identifier for the caller. It is also
// the identity component of policy decision cache keys, so it must be
// deterministic for equal identities.
func (c CallerIdentity) Subject() string {
	switch c.Kind {
	case IdentityService:
		return fmt.Sprintf("spiffe://%s%s", c.Service.TrustDomain, c.Service.WorkloadPath)
	case IdentityUser:
		return "user:" + c.User.UserID
	case IdentityAPIKey:
		return "apikey:" + c.APIKey.KeyID
	default:
		return "anonymous"
	}
}

// Roles returns the roles or scopes attached to the caller. Service callers
// expose their workload path as a single pseudo-role; anonymous callers have
// none.
func (c CallerIdentity) Roles() []string {
	switch c.Kind {
	case IdentityUser:
		return c.User.Roles
	case IdentityAPIKey:
		return c.APIKey.Scopes
	case IdentityService:
		return []string{strings.TrimPrefix(c.Service.WorkloadPath, "/")}
	default:
		return nil
	}
}

func (c CallerIdentity) String() string {
	return string(c.Kind) + "(" + c.Subject() + ")"
}
