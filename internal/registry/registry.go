// Package registry maps operation ids to handlers. The registry boundary is
// type-erased: every handler accepts raw bytes and returns a raw result, and
// typed deserialization happens inside the Typed adapter. This keeps the
// orchestrator agnostic of handler request/response types.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// Invocation carries everything a handler may need for one request.
type Invocation struct {
	// Method and Path echo the decoded request line.
	Method string
	Path   string

	// Headers are the decoded request headers.
	Headers http.Header

	// Body is the raw request body, already schema-validated when the
	// operation declares a request schema.
	Body []byte

	// Params holds path template parameters, e.g. {"userId": "123"}.
	Params domain.PathParams

	// RequestContext is the immutable pipeline context.
	RequestContext domain.RequestContext

	// Container is the optional dependency locator, nil when not configured.
	Container *Container
}

// Handler is the uniform capability stored in the registry.
type Handler interface {
	Handle(ctx context.Context, inv *Invocation) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv *Invocation) (any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, inv *Invocation) (any, error) {
	return f(ctx, inv)
}

// Registry holds the operation-id → handler table. Registration happens
// once, sequentially, before the server accepts traffic; Freeze marks the
// end of registration, after which the table is read-only and lookups take
// no lock.
type Registry struct {
	mu       sync.Mutex
	frozen   bool
	handlers map[string]Handler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to an operation id. Duplicate registration and
// registration after Freeze are programming errors and fail loudly.
func (r *Registry) Register(operationID string, h Handler) error {
	if operationID == "" {
		return fmt.Errorf("register handler: empty operation id")
	}
	if h == nil {
		return fmt.Errorf("register handler %q: nil handler", operationID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register handler %q: registry is frozen", operationID)
	}
	if _, dup := r.handlers[operationID]; dup {
		return fmt.Errorf("register handler %q: already registered", operationID)
	}
	r.handlers[operationID] = h
	return nil
}

// RegisterFunc binds a plain function.
func (r *Registry) RegisterFunc(operationID string, fn HandlerFunc) error {
	return r.Register(operationID, fn)
}

// Freeze ends the registration phase. Subsequent lookups are lock-free.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the handler for an operation id. Safe for concurrent use
// after Freeze.
func (r *Registry) Lookup(operationID string) (Handler, bool) {
	h, ok := r.handlers[operationID]
	return h, ok
}

// Operations returns the registered operation ids, sorted.
func (r *Registry) Operations() []string {
	ops := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ops = append(ops, id)
	}
	sort.Strings(ops)
	return ops
}
