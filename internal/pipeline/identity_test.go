package pipeline

import (
	"net/http"
	"reflect"
	"testing"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

func reqWithHeaders(h map[string]string) *domain.Request {
	headers := make(http.Header, len(h))
	for k, v := range h {
		headers.Set(k, v)
	}
	return &domain.Request{Method: "GET", Path: "/x", Headers: headers}
}

func TestResolveIdentity(t *testing.T) {
	tests := []struct {
		name        string
		headers     map[string]string
		wantKind    domain.IdentityKind
		wantSubject string
	}{
		{
			name:        "service identity",
			headers:     map[string]string{"X-Service-Identity": "spiffe://prod.acme/billing/api"},
			wantKind:    domain.IdentityService,
			wantSubject: "spiffe://prod.acme/billing/api",
		},
		{
			name:        "user identity",
			headers:     map[string]string{"X-User-Id": "alice", "X-User-Roles": "admin, auditor", "X-Tenant-Id": "acme"},
			wantKind:    domain.IdentityUser,
			wantSubject: "user:alice",
		},
		{
			name:        "api key identity",
			headers:     map[string]string{"X-Api-Key-Id": "key-1", "X-Api-Key-Scopes": "read"},
			wantKind:    domain.IdentityAPIKey,
			wantSubject: "apikey:key-1",
		},
		{
			name:        "anonymous",
			headers:     nil,
			wantKind:    domain.IdentityAnonymous,
			wantSubject: "anonymous",
		},
		{
			// Service identity outranks everything else.
			name: "service wins over user",
			headers: map[string]string{
				"X-Service-Identity": "spiffe://prod.acme/gateway",
				"X-User-Id":          "bob",
			},
			wantKind:    domain.IdentityService,
			wantSubject: "spiffe://prod.acme/gateway",
		},
		{
			name: "user wins over api key",
			headers: map[string]string{
				"X-User-Id":    "carol",
				"X-Api-Key-Id": "key-9",
			},
			wantKind:    domain.IdentityUser,
			wantSubject: "user:carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := resolveIdentity(reqWithHeaders(tt.headers))
			if caller.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", caller.Kind, tt.wantKind)
			}
			if caller.Subject() != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", caller.Subject(), tt.wantSubject)
			}
		})
	}
}

func TestResolveIdentity_UserRoles(t *testing.T) {
	caller := resolveIdentity(reqWithHeaders(map[string]string{
		"X-User-Id":    "alice",
		"X-User-Roles": " admin ,, auditor ",
	}))
	want := []string{"admin", "auditor"}
	if !reflect.DeepEqual(caller.Roles(), want) {
		t.Errorf("Roles = %v, want %v", caller.Roles(), want)
	}
}

func TestSplitSpiffeID(t *testing.T) {
	tests := []struct {
		id         string
		wantDomain string
		wantPath   string
	}{
		{"spiffe://prod.acme/billing/api", "prod.acme", "/billing/api"},
		{"spiffe://prod.acme", "prod.acme", "/"},
		{"prod.acme/workload", "prod.acme", "/workload"},
	}
	for _, tt := range tests {
		td, wp := splitSpiffeID(tt.id)
		if td != tt.wantDomain || wp != tt.wantPath {
			t.Errorf("splitSpiffeID(%q) = (%q, %q), want (%q, %q)", tt.id, td, wp, tt.wantDomain, tt.wantPath)
		}
	}
}
