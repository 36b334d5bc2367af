package pipeline

import (
	"strings"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// Identity headers. Credential verification (mTLS, JWT signatures, key
// hashing) is the transport's responsibility; by the time a request reaches
// the pipeline these headers carry verified claims, and this stage only
// parses and classifies them into the closed CallerIdentity variant.
const (
	serviceIdentityHeader = "X-Service-Identity"
	userIDHeader          = "X-User-Id"
	userRolesHeader       = "X-User-Roles"
	userTenantHeader      = "X-Tenant-Id"
	apiKeyIDHeader        = "X-Api-Key-Id"
	apiKeyScopesHeader    = "X-Api-Key-Scopes"
)

// resolveIdentity classifies the caller. Precedence: service identity, then
// user, then API key; absent all three the caller is anonymous. Exactly one
// variant is ever populated.
func resolveIdentity(req *domain.Request) domain.CallerIdentity {
	if svc := req.Header(serviceIdentityHeader); svc != "" {
		trustDomain, workloadPath := splitSpiffeID(svc)
		return domain.ServiceCaller(trustDomain, workloadPath)
	}

	if userID := req.Header(userIDHeader); userID != "" {
		return domain.UserCaller(userID, splitCSV(req.Header(userRolesHeader)), req.Header(userTenantHeader))
	}

	if keyID := req.Header(apiKeyIDHeader); keyID != "" {
		return domain.APIKeyCaller(keyID, splitCSV(req.Header(apiKeyScopesHeader)))
	}

	return domain.AnonymousCaller()
}

// splitSpiffeID splits "spiffe://trust.domain/workload/path" into its trust
// domain and workload path components.
func splitSpiffeID(id string) (trustDomain, workloadPath string) {
	id = strings.TrimPrefix(id, "spiffe://")
	if i := strings.Index(id, "/"); i >= 0 {
		return id[:i], id[i:]
	}
	return id, "/"
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
