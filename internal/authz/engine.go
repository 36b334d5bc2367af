package authz

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// evaluate runs the bundle's prepared query against the input and interprets
// the result. Two result shapes are supported, matching common policy styles:
//
//   - a bare boolean: `data.authz.allow`
//   - an object: `{"allow": bool, "reason": string, "obligations": object}`
//
// Anything else, including an empty result set, is a deny.
func (b *Bundle) evaluate(ctx context.Context, input map[string]any) (domain.PolicyDecision, error) {
	rs, err := b.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyDecision{}, fmt.Errorf("policy evaluation: %w", err)
	}

	decision := domain.Deny("no policy rule matched")
	decision.BundleRevision = b.Revision

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return decision, nil
	}

	switch v := rs[0].Expressions[0].Value.(type) {
	case bool:
		if v {
			decision = domain.Allow()
		} else {
			decision = domain.Deny("denied by policy")
		}
	case map[string]any:
		allow, _ := v["allow"].(bool)
		if allow {
			decision = domain.Allow()
		} else {
			reason, _ := v["reason"].(string)
			if reason == "" {
				reason = "denied by policy"
			}
			decision = domain.Deny(reason)
		}
		if obligations, ok := v["obligations"].(map[string]any); ok && len(obligations) > 0 {
			decision.Obligations = obligations
		}
	}

	decision.BundleRevision = b.Revision
	return decision, nil
}
