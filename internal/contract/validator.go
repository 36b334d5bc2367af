package contract

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/portcullis-io/portcullis/internal/core/domain"
	"github.com/portcullis-io/portcullis/internal/core/ports"
)

// Validator implements ports.ContractResolver on top of a Store.
type Validator struct {
	store *Store
}

// NewValidator wraps a store.
func NewValidator(store *Store) *Validator {
	return &Validator{store: store}
}

var _ ports.ContractResolver = (*Validator)(nil)

// Snapshot pins the contract active at this instant. The caller holds the
// returned view for the whole request, so a hot reload mid-request cannot mix
// old and new routing or schemas, or withdraw an operation already routed.
func (v *Validator) Snapshot() ports.ContractSnapshot {
	return &contractView{c: v.store.Snapshot()}
}

// contractView serves routing and validation from one immutable contract
// revision.
type contractView struct {
	c *CompiledContract
}

// Resolve maps method+path to an operation.
func (cv *contractView) Resolve(method, path string) (ports.Route, bool) {
	opID, params, ok := cv.c.Resolve(method, path)
	if !ok {
		return ports.Route{}, false
	}
	return ports.Route{OperationID: opID, Params: params}, true
}

// ValidateRequest validates body against the operation's request schema.
func (cv *contractView) ValidateRequest(operationID string, body []byte) (domain.ValidationOutcome, error) {
	op, ok := cv.c.Operation(operationID)
	if !ok {
		return domain.ValidationOutcome{}, fmt.Errorf("unknown operation %q", operationID)
	}
	return validateBody(op.requestSchema, body), nil
}

// ValidateResponse validates body against the operation's response schema.
// Operations without a response schema always pass.
func (cv *contractView) ValidateResponse(operationID string, body []byte) (domain.ValidationOutcome, error) {
	op, ok := cv.c.Operation(operationID)
	if !ok {
		return domain.ValidationOutcome{}, fmt.Errorf("unknown operation %q", operationID)
	}
	return validateBody(op.responseSchema, body), nil
}

func validateBody(schema *jsonschema.Schema, body []byte) domain.ValidationOutcome {
	if schema == nil {
		return domain.ValidOutcome()
	}

	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		return domain.InvalidOutcome([]domain.ValidationError{{
			Pointer: "",
			Message: "body is not valid JSON",
		}})
	}

	err := schema.Validate(instance)
	if err == nil {
		return domain.ValidOutcome()
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return domain.InvalidOutcome([]domain.ValidationError{{
			Pointer: "",
			Message: err.Error(),
		}})
	}
	return domain.InvalidOutcome(flatten(ve))
}

// flatten collects leaf violations from the validation error tree into an
// ordered list. Sorting by pointer keeps outcomes byte-identical for equal
// inputs regardless of evaluation order inside the schema library.
func flatten(ve *jsonschema.ValidationError) []domain.ValidationError {
	var out []domain.ValidationError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, domain.ValidationError{
				Pointer: e.InstanceLocation,
				Message: e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Pointer != out[j].Pointer {
			return out[i].Pointer < out[j].Pointer
		}
		return out[i].Message < out[j].Message
	})
	return out
}
