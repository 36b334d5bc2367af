// Package contract loads the checksummed contract artifact, resolves
// requests to operations, and validates bodies against operation schemas.
package contract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// artifact is the on-disk JSON document shape.
type artifact struct {
	Service    string          `json:"service"`
	Version    string          `json:"version"`
	Checksum   string          `json:"checksum"`
	Operations json.RawMessage `json:"operations"`
}

type operationSpec struct {
	OperationID    string          `json:"operation_id"`
	Method         string          `json:"method"`
	Path           string          `json:"path"`
	RequestSchema  json.RawMessage `json:"request_schema,omitempty"`
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`
}

// Operation is one compiled contract operation.
type Operation struct {
	ID             string
	Method         string
	PathTemplate   string
	requestSchema  *jsonschema.Schema // nil when the operation declares none
	responseSchema *jsonschema.Schema
}

// HasRequestSchema reports whether a request schema is declared.
func (o *Operation) HasRequestSchema() bool { return o.requestSchema != nil }

// HasResponseSchema reports whether a response schema is declared.
func (o *Operation) HasResponseSchema() bool { return o.responseSchema != nil }

// CompiledContract is a fully built, immutable contract snapshot. It is never
// mutated after Compile returns; hot reload builds a new value and swaps the
// active pointer.
type CompiledContract struct {
	Service  string
	Version  string
	Checksum string

	ops    map[string]*Operation
	routes *routeIndex
}

// Operation looks up an operation by id.
func (c *CompiledContract) Operation(id string) (*Operation, bool) {
	op, ok := c.ops[id]
	return op, ok
}

// Operations returns the number of operations in the contract.
func (c *CompiledContract) Operations() int { return len(c.ops) }

// Resolve matches method+path against the contract's path templates,
// longest static match wins.
func (c *CompiledContract) Resolve(method, path string) (string, domain.PathParams, bool) {
	return c.routes.resolve(method, path)
}

// Load reads, checksum-verifies, and compiles the artifact at path.
// Any failure here is startup-blocking; the caller must not retry.
func Load(path string) (*CompiledContract, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract artifact %s: %w", path, err)
	}
	return Compile(raw)
}

// Compile parses and verifies raw artifact bytes, building the operation and
// route indexes and compiling every schema up front so request-time
// validation cannot hit a malformed schema.
func Compile(raw []byte) (*CompiledContract, error) {
	var art artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("parse contract artifact: %w", err)
	}
	if len(art.Operations) == 0 {
		return nil, fmt.Errorf("contract artifact declares no operations")
	}
	if err := verifyChecksum(art); err != nil {
		return nil, err
	}

	var specs []operationSpec
	if err := json.Unmarshal(art.Operations, &specs); err != nil {
		return nil, fmt.Errorf("parse contract operations: %w", err)
	}

	c := &CompiledContract{
		Service:  art.Service,
		Version:  art.Version,
		Checksum: art.Checksum,
		ops:      make(map[string]*Operation, len(specs)),
		routes:   newRouteIndex(),
	}

	for _, spec := range specs {
		if spec.OperationID == "" {
			return nil, fmt.Errorf("contract operation with empty operation_id")
		}
		if _, dup := c.ops[spec.OperationID]; dup {
			return nil, fmt.Errorf("duplicate operation id %q", spec.OperationID)
		}

		reqSchema, err := compileSchema(spec.OperationID, "request", spec.RequestSchema)
		if err != nil {
			return nil, err
		}
		respSchema, err := compileSchema(spec.OperationID, "response", spec.ResponseSchema)
		if err != nil {
			return nil, err
		}

		op := &Operation{
			ID:             spec.OperationID,
			Method:         spec.Method,
			PathTemplate:   spec.Path,
			requestSchema:  reqSchema,
			responseSchema: respSchema,
		}

		if err := c.routes.add(op); err != nil {
			return nil, err
		}
		c.ops[op.ID] = op
	}

	return c, nil
}

// verifyChecksum checks the declared sha256 against the operations document.
// The checksum covers the compact form, so reformatting the artifact does not
// invalidate it.
func verifyChecksum(art artifact) error {
	if art.Checksum == "" {
		return fmt.Errorf("contract artifact is missing its checksum")
	}
	got, err := checksumJSON(art.Operations)
	if err != nil {
		return fmt.Errorf("checksum contract operations: %w", err)
	}
	if got != art.Checksum {
		return fmt.Errorf("contract checksum mismatch: artifact declares %s, operations hash to %s", art.Checksum, got)
	}
	return nil
}

// checksumJSON hashes the compact form of a JSON document.
func checksumJSON(doc []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func compileSchema(opID, kind string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	url := fmt.Sprintf("contract://%s/%s.json", opID, kind)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("operation %q: invalid %s schema: %w", opID, kind, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("operation %q: compile %s schema: %w", opID, kind, err)
	}
	return sch, nil
}

// ChecksumOperations computes the checksum an artifact must declare for the
// given operations document. Any JSON formatting of the same document yields
// the same checksum. Exposed for artifact-producing tools and tests.
func ChecksumOperations(operations []byte) string {
	sum, err := checksumJSON(operations)
	if err != nil {
		// A non-JSON document can never verify; hash the raw bytes so the
		// result is still deterministic.
		h := sha256.Sum256(bytes.TrimSpace(operations))
		return hex.EncodeToString(h[:])
	}
	return sum
}
