package registry

import (
	"context"
	"encoding/json"
	"fmt"
)

// Typed adapts a function over concrete request/response types into the
// registry's type-erased Handler. The body is decoded into Req before the
// function runs; schema validation has already passed by the time a handler
// executes, so a decode failure here means the schema and the type disagree,
// which is a server defect rather than a client error.
func Typed[Req any, Res any](fn func(ctx context.Context, inv *Invocation, req Req) (Res, error)) Handler {
	return HandlerFunc(func(ctx context.Context, inv *Invocation) (any, error) {
		var req Req
		if len(inv.Body) > 0 {
			if err := json.Unmarshal(inv.Body, &req); err != nil {
				return nil, fmt.Errorf("decode request body into %T: %w", req, err)
			}
		}
		res, err := fn(ctx, inv, req)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}

// NoBody is the request type for operations without a request body.
type NoBody struct{}
